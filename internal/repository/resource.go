package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"service-dispatch/internal/apperr"
	"service-dispatch/internal/domain"
)

// ResourceRepo stores drivers and vehicles. It never writes is_available after insert.
type ResourceRepo struct{ db *pgxpool.Pool }

// NewResourceRepo creates a new ResourceRepo.
func NewResourceRepo(db *pgxpool.Pool) *ResourceRepo { return &ResourceRepo{db: db} }

// CreateDriver inserts an available driver and returns its id.
func (r *ResourceRepo) CreateDriver(ctx context.Context, d *domain.Driver) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO drivers(name, phone, license_number) VALUES($1,$2,$3) RETURNING id`,
		d.Name, d.Phone, d.LicenseNumber).Scan(&id)
	if err != nil {
		if IsDuplicate(err) {
			return 0, apperr.ErrConflict
		}
		return 0, fmt.Errorf("create driver: %w", err)
	}
	return id, nil
}

// GetDriver - returns driver by its ID, nil when absent.
func (r *ResourceRepo) GetDriver(ctx context.Context, id int64) (*domain.Driver, error) {
	var d domain.Driver
	err := r.db.QueryRow(ctx,
		`SELECT id, name, phone, license_number, is_available FROM drivers WHERE id=$1`, id,
	).Scan(&d.ID, &d.Name, &d.Phone, &d.LicenseNumber, &d.IsAvailable)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get driver %d: %w", id, err)
	}
	return &d, nil
}

// ListDrivers returns drivers ordered by id. If limit/offset are nil, returns the full list.
func (r *ResourceRepo) ListDrivers(ctx context.Context, limit, offset *int) ([]domain.Driver, error) {
	q, args := paginate(`SELECT id, name, phone, license_number, is_available FROM drivers ORDER BY id`, nil, limit, offset)
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list drivers: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Driver, error) {
		var d domain.Driver
		err := row.Scan(&d.ID, &d.Name, &d.Phone, &d.LicenseNumber, &d.IsAvailable)
		return d, err
	})
}

// CreateVehicle inserts an available vehicle and returns its id.
func (r *ResourceRepo) CreateVehicle(ctx context.Context, v *domain.Vehicle) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO vehicles(number, type, capacity) VALUES($1,$2,$3) RETURNING id`,
		v.Number, string(v.Type), v.Capacity).Scan(&id)
	if err != nil {
		if IsDuplicate(err) {
			return 0, apperr.ErrConflict
		}
		return 0, fmt.Errorf("create vehicle: %w", err)
	}
	return id, nil
}

// GetVehicle - returns vehicle by its ID, nil when absent.
func (r *ResourceRepo) GetVehicle(ctx context.Context, id int64) (*domain.Vehicle, error) {
	var v domain.Vehicle
	err := r.db.QueryRow(ctx,
		`SELECT id, number, type, capacity, is_available FROM vehicles WHERE id=$1`, id,
	).Scan(&v.ID, &v.Number, &v.Type, &v.Capacity, &v.IsAvailable)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get vehicle %d: %w", id, err)
	}
	return &v, nil
}

// ListVehicles returns vehicles ordered by id.
func (r *ResourceRepo) ListVehicles(ctx context.Context, limit, offset *int) ([]domain.Vehicle, error) {
	q, args := paginate(`SELECT id, number, type, capacity, is_available FROM vehicles ORDER BY id`, nil, limit, offset)
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Vehicle, error) {
		var v domain.Vehicle
		err := row.Scan(&v.ID, &v.Number, &v.Type, &v.Capacity, &v.IsAvailable)
		return v, err
	})
}

// paginate appends LIMIT/OFFSET placeholders after the existing args.
func paginate(q string, args []any, limit, offset *int) (string, []any) {
	if limit != nil {
		q += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, *limit)
	}
	if offset != nil {
		q += fmt.Sprintf(" OFFSET $%d", len(args)+1)
		args = append(args, *offset)
	}
	return q, args
}
