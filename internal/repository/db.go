package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool creates and pings a new pgx connection pool.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS drivers (
		id             BIGSERIAL PRIMARY KEY,
		name           TEXT NOT NULL,
		phone          TEXT NOT NULL,
		license_number TEXT NOT NULL UNIQUE,
		is_available   BOOLEAN NOT NULL DEFAULT TRUE,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS vehicles (
		id           BIGSERIAL PRIMARY KEY,
		number       TEXT NOT NULL UNIQUE,
		type         TEXT NOT NULL,
		capacity     INTEGER NOT NULL,
		is_available BOOLEAN NOT NULL DEFAULT TRUE,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS deliveries (
		id               BIGSERIAL PRIMARY KEY,
		order_id         TEXT NOT NULL UNIQUE,
		customer_name    TEXT NOT NULL,
		customer_address TEXT NOT NULL,
		customer_phone   TEXT NOT NULL,
		requested_date   TIMESTAMPTZ NOT NULL,
		driver_id        BIGINT REFERENCES drivers(id),
		vehicle_id       BIGINT REFERENCES vehicles(id),
		status           TEXT NOT NULL,
		assigned_at      TIMESTAMPTZ,
		started_at       TIMESTAMPTZ,
		completed_at     TIMESTAMPTZ,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS deliveries_status_idx ON deliveries (status)`,
	`CREATE INDEX IF NOT EXISTS deliveries_driver_idx ON deliveries (driver_id) WHERE driver_id IS NOT NULL`,
}

// Migrate creates the dispatch tables if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i, err)
		}
	}
	return nil
}
