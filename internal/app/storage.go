package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"service-dispatch/internal/config"
	"service-dispatch/internal/domain"
	"service-dispatch/internal/logx"
	"service-dispatch/internal/repository"
	"service-dispatch/internal/repository/memory"
	"service-dispatch/internal/service/dispatch"
	"service-dispatch/internal/storage/locations"
)

const (
	dbConnectRetries = 10
	dbConnectDelay   = time.Second
	// latestLocationTTL expires cached fixes of deliveries nobody tracks anymore.
	latestLocationTTL = 24 * time.Hour
)

type resourceStore interface {
	dispatch.ResourceReader
	CreateDriver(ctx context.Context, d *domain.Driver) (int64, error)
	ListDrivers(ctx context.Context, limit, offset *int) ([]domain.Driver, error)
	CreateVehicle(ctx context.Context, v *domain.Vehicle) (int64, error)
	ListVehicles(ctx context.Context, limit, offset *int) ([]domain.Vehicle, error)
}

// relationalStore holds drivers, vehicles and deliveries, either in Postgres or in memory.
type relationalStore struct {
	deliveries dispatch.DeliveryRepository
	resources  resourceStore
	pool       *pgxpool.Pool
}

func newRelationalStore(ctx context.Context, cfg *config.Config, logger logx.Logger, dbConnect dbConnectFunc) (*relationalStore, error) {
	if cfg.Storage == config.StorageMemory {
		logger.Info("using in-memory storage")
		st := memory.NewStore()
		return &relationalStore{deliveries: st, resources: st}, nil
	}

	pool, err := dbConnect(ctx, logger, cfg.DB.DSN(), dbConnectRetries, dbConnectDelay)
	if err != nil {
		return nil, err
	}
	if cfg.DB.AutoMigrate {
		if err := repository.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return &relationalStore{
		deliveries: repository.NewDeliveryRepo(pool),
		resources:  repository.NewResourceRepo(pool),
		pool:       pool,
	}, nil
}

func (s *relationalStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// locationStore is the location trail plus the clients it has to close.
type locationStore struct {
	store   locations.Store
	closers []func(context.Context) error
}

func newLocationStore(ctx context.Context, cfg *config.Config, logger logx.Logger) (*locationStore, error) {
	ls := &locationStore{}

	var history locations.Store = locations.NewMemory()
	if cfg.Mongo.URI != "" {
		client, err := locations.ConnectMongo(ctx, cfg.Mongo.URI)
		if err != nil {
			return nil, err
		}
		ls.closers = append(ls.closers, client.Disconnect)
		mh, err := locations.NewMongoHistory(ctx, client.Database(cfg.Mongo.Database).Collection(cfg.Mongo.Collection))
		if err != nil {
			_ = ls.Close(ctx)
			return nil, err
		}
		history = mh
		logger.Info("location history in mongo", logx.String("database", cfg.Mongo.Database))
	}

	var cache locations.Cache
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ls.closers = append(ls.closers, func(context.Context) error { return rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = ls.Close(ctx)
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		cache = locations.NewRedisLatest(rdb, latestLocationTTL)
		logger.Info("latest location cache in redis", logx.String("addr", cfg.Redis.Addr))
	}

	ls.store = locations.NewComposite(history, cache, logger)
	return ls, nil
}

func (s *locationStore) Close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
