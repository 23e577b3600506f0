package locations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"service-dispatch/internal/domain"
)

// ConnectMongo connects to MongoDB and verifies the connection with a ping.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

type sampleDoc struct {
	DeliveryID int64     `bson:"delivery_id"`
	DriverID   int64     `bson:"driver_id"`
	Lat        float64   `bson:"lat"`
	Lng        float64   `bson:"lng"`
	Speed      float64   `bson:"speed"`
	Status     string    `bson:"status,omitempty"`
	Timestamp  time.Time `bson:"timestamp"`
}

func toDoc(s domain.LocationSample) sampleDoc {
	return sampleDoc{
		DeliveryID: s.DeliveryID,
		DriverID:   s.DriverID,
		Lat:        s.Location.Lat,
		Lng:        s.Location.Lng,
		Speed:      s.Speed,
		Status:     s.Status,
		Timestamp:  s.Timestamp.UTC(),
	}
}

func (d sampleDoc) toDomain() domain.LocationSample {
	return domain.LocationSample{
		DeliveryID: d.DeliveryID,
		DriverID:   d.DriverID,
		Location:   domain.Location{Lat: d.Lat, Lng: d.Lng},
		Speed:      d.Speed,
		Status:     d.Status,
		Timestamp:  d.Timestamp.UTC(),
	}
}

// MongoHistory stores one document per sample.
type MongoHistory struct {
	coll *mongo.Collection
}

// NewMongoHistory ensures the (delivery_id, timestamp) index and returns the store.
func NewMongoHistory(ctx context.Context, coll *mongo.Collection) (*MongoHistory, error) {
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "delivery_id", Value: 1}, {Key: "timestamp", Value: 1}},
	})
	if err != nil {
		return nil, fmt.Errorf("mongo create index: %w", err)
	}
	return &MongoHistory{coll: coll}, nil
}

// Save inserts one sample.
func (m *MongoHistory) Save(ctx context.Context, s domain.LocationSample) error {
	if _, err := m.coll.InsertOne(ctx, toDoc(s)); err != nil {
		return fmt.Errorf("mongo insert sample %d: %w", s.DeliveryID, err)
	}
	return nil
}

// Latest returns the newest sample or nil.
func (m *MongoHistory) Latest(ctx context.Context, deliveryID int64) (*domain.LocationSample, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	var doc sampleDoc
	err := m.coll.FindOne(ctx, bson.M{"delivery_id": deliveryID}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mongo latest %d: %w", deliveryID, err)
	}
	s := doc.toDomain()
	return &s, nil
}

// History pages the trail by skip/limit, oldest first.
func (m *MongoHistory) History(ctx context.Context, deliveryID int64, page, limit int) (domain.LocationPage, error) {
	filter := bson.M{"delivery_id": deliveryID}
	total, err := m.coll.CountDocuments(ctx, filter)
	if err != nil {
		return domain.LocationPage{}, fmt.Errorf("mongo count %d: %w", deliveryID, err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: 1}}).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))
	cur, err := m.coll.Find(ctx, filter, opts)
	if err != nil {
		return domain.LocationPage{}, fmt.Errorf("mongo find %d: %w", deliveryID, err)
	}
	defer cur.Close(ctx)

	var docs []sampleDoc
	if err := cur.All(ctx, &docs); err != nil {
		return domain.LocationPage{}, fmt.Errorf("mongo decode %d: %w", deliveryID, err)
	}
	items := make([]domain.LocationSample, 0, len(docs))
	for _, d := range docs {
		items = append(items, d.toDomain())
	}
	return domain.LocationPage{Items: items, Page: page, Limit: limit, Total: total}, nil
}
