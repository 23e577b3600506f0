package locations

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"service-dispatch/internal/domain"
)

// PositionsKey is the geo set holding the last known position of every delivery.
const PositionsKey = "deliveries:positions"

// RedisLatest caches the last fix per delivery in a hash and a geo set.
type RedisLatest struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewRedisLatest creates the cache. ttl <= 0 keeps hashes forever.
func NewRedisLatest(rdb redis.Cmdable, ttl time.Duration) *RedisLatest {
	return &RedisLatest{rdb: rdb, ttl: ttl}
}

func latestKey(deliveryID int64) string {
	return fmt.Sprintf("delivery:%d:latest", deliveryID)
}

// Save stores s as the latest fix.
func (r *RedisLatest) Save(ctx context.Context, s domain.LocationSample) error {
	key := latestKey(s.DeliveryID)
	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, map[string]interface{}{
			"driver_id": s.DriverID,
			"lat":       strconv.FormatFloat(s.Location.Lat, 'f', -1, 64),
			"lng":       strconv.FormatFloat(s.Location.Lng, 'f', -1, 64),
			"speed":     strconv.FormatFloat(s.Speed, 'f', -1, 64),
			"status":    s.Status,
			"ts":        s.Timestamp.UTC().Format(time.RFC3339Nano),
		})
		if r.ttl > 0 {
			p.Expire(ctx, key, r.ttl)
		}
		p.GeoAdd(ctx, PositionsKey, &redis.GeoLocation{
			Name:      strconv.FormatInt(s.DeliveryID, 10),
			Longitude: s.Location.Lng,
			Latitude:  s.Location.Lat,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save latest %d: %w", s.DeliveryID, err)
	}
	return nil
}

// Latest reads the cached fix or returns nil.
func (r *RedisLatest) Latest(ctx context.Context, deliveryID int64) (*domain.LocationSample, error) {
	vals, err := r.rdb.HGetAll(ctx, latestKey(deliveryID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis latest %d: %w", deliveryID, err)
	}
	if len(vals) == 0 {
		return nil, nil
	}
	return parseLatest(deliveryID, vals)
}

func parseLatest(deliveryID int64, vals map[string]string) (*domain.LocationSample, error) {
	s := &domain.LocationSample{DeliveryID: deliveryID, Status: vals["status"]}
	var err error
	if s.DriverID, err = strconv.ParseInt(vals["driver_id"], 10, 64); err != nil {
		return nil, fmt.Errorf("redis latest %d: driver_id: %w", deliveryID, err)
	}
	if s.Location.Lat, err = strconv.ParseFloat(vals["lat"], 64); err != nil {
		return nil, fmt.Errorf("redis latest %d: lat: %w", deliveryID, err)
	}
	if s.Location.Lng, err = strconv.ParseFloat(vals["lng"], 64); err != nil {
		return nil, fmt.Errorf("redis latest %d: lng: %w", deliveryID, err)
	}
	if s.Speed, err = strconv.ParseFloat(vals["speed"], 64); err != nil {
		return nil, fmt.Errorf("redis latest %d: speed: %w", deliveryID, err)
	}
	if s.Timestamp, err = time.Parse(time.RFC3339Nano, vals["ts"]); err != nil {
		return nil, fmt.Errorf("redis latest %d: ts: %w", deliveryID, err)
	}
	return s, nil
}
