package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"service-dispatch/internal/apperr"
	"service-dispatch/internal/domain"
	"service-dispatch/internal/ports/dispatchtx"
)

const deliveryColumns = `id, order_id, customer_name, customer_address, customer_phone, requested_date,
	driver_id, vehicle_id, status, assigned_at, started_at, completed_at, created_at`

// DeliveryRepo represents delivery repository.
type DeliveryRepo struct {
	db *pgxpool.Pool
}

// NewDeliveryRepo creates a new DeliveryRepo.
func NewDeliveryRepo(db *pgxpool.Pool) *DeliveryRepo {
	return &DeliveryRepo{db: db}
}

// WithTx opens a transaction and executes fn within it.
func (r *DeliveryRepo) WithTx(ctx context.Context, fn func(tx dispatchtx.Repository) error) (err error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	// roll back on panic
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(&TxRepo{tx: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback tx: %w (original error: %s)", rbErr, err.Error())
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Create inserts a pending delivery and fills its id and creation time.
func (r *DeliveryRepo) Create(ctx context.Context, d *domain.Delivery) (int64, error) {
	err := r.db.QueryRow(ctx, `
        INSERT INTO deliveries (order_id, customer_name, customer_address, customer_phone, requested_date, status)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, created_at
    `, d.OrderID, d.CustomerName, d.CustomerAddress, d.CustomerPhone, d.RequestedDate, string(d.Status),
	).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		if IsDuplicate(err) {
			return 0, apperr.ErrConflict
		}
		return 0, fmt.Errorf("insert delivery: %w", err)
	}
	return d.ID, nil
}

// Get returns a delivery by id, nil when absent.
func (r *DeliveryRepo) Get(ctx context.Context, id int64) (*domain.Delivery, error) {
	d, err := scanDelivery(r.db.QueryRow(ctx, `SELECT `+deliveryColumns+` FROM deliveries WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get delivery %d: %w", id, err)
	}
	return d, nil
}

// GetByOrderID returns a delivery by its order id, nil when absent.
func (r *DeliveryRepo) GetByOrderID(ctx context.Context, orderID string) (*domain.Delivery, error) {
	d, err := scanDelivery(r.db.QueryRow(ctx, `SELECT `+deliveryColumns+` FROM deliveries WHERE order_id = $1`, orderID))
	if err != nil {
		return nil, fmt.Errorf("get delivery by order %q: %w", orderID, err)
	}
	return d, nil
}

// List returns deliveries ordered by id.
func (r *DeliveryRepo) List(ctx context.Context, f domain.DeliveryFilter) ([]domain.Delivery, error) {
	q := `SELECT ` + deliveryColumns + ` FROM deliveries`
	var args []any
	if f.Status != nil {
		q += ` WHERE status = $1`
		args = append(args, string(*f.Status))
	}
	q, args = paginate(q+` ORDER BY id`, args, f.Limit, f.Offset)

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Delivery, error) {
		d, err := scanDelivery(row)
		if err != nil {
			return domain.Delivery{}, err
		}
		return *d, nil
	})
}

// TxRepo represents transaction repository.
type TxRepo struct {
	tx pgx.Tx
}

// GetDeliveryForUpdate locks the delivery row for the rest of the transaction.
func (r *TxRepo) GetDeliveryForUpdate(ctx context.Context, id int64) (*domain.Delivery, error) {
	d, err := scanDelivery(r.tx.QueryRow(ctx, `SELECT `+deliveryColumns+` FROM deliveries WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, fmt.Errorf("lock delivery %d: %w", id, err)
	}
	return d, nil
}

// UpdateDelivery persists status, resource references and lifecycle stamps.
func (r *TxRepo) UpdateDelivery(ctx context.Context, d *domain.Delivery) error {
	ct, err := r.tx.Exec(ctx, `
        UPDATE deliveries
        SET driver_id = $2,
            vehicle_id = $3,
            status = $4,
            assigned_at = $5,
            started_at = $6,
            completed_at = $7,
            updated_at = now()
        WHERE id = $1
    `, d.ID, d.Driver.Ptr(), d.Vehicle.Ptr(), string(d.Status), d.AssignedAt, d.StartedAt, d.CompletedAt)
	if err != nil {
		return fmt.Errorf("update delivery %d: %w", d.ID, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("update delivery %d: %w", d.ID, apperr.ErrNotFound)
	}
	return nil
}

// DeleteDelivery removes the delivery row.
func (r *TxRepo) DeleteDelivery(ctx context.Context, id int64) error {
	ct, err := r.tx.Exec(ctx, `DELETE FROM deliveries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete delivery %d: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("delete delivery %d: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// TryReserve flips is_available from true to false in a single conditional update.
// The row lock taken by the update serializes concurrent reservations of the same resource.
func (r *TxRepo) TryReserve(ctx context.Context, kind domain.ResourceKind, id int64) (bool, error) {
	table, err := resourceTable(kind)
	if err != nil {
		return false, err
	}

	var got int64
	err = r.tx.QueryRow(ctx,
		`UPDATE `+table+` SET is_available = false, updated_at = now() WHERE id = $1 AND is_available RETURNING id`, id,
	).Scan(&got)
	if err == nil {
		return true, nil
	}
	if !IsNotFound(err) {
		return false, fmt.Errorf("reserve %s %d: %w", kind, id, err)
	}

	var exists bool
	if err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("reserve %s %d: %w", kind, id, err)
	}
	if !exists {
		return false, fmt.Errorf("%s %d: %w", kind, id, apperr.ErrNotFound)
	}
	return false, nil
}

// Release unconditionally marks the resource available.
func (r *TxRepo) Release(ctx context.Context, kind domain.ResourceKind, id int64) error {
	table, err := resourceTable(kind)
	if err != nil {
		return err
	}
	ct, err := r.tx.Exec(ctx, `UPDATE `+table+` SET is_available = true, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("release %s %d: %w", kind, id, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%s %d: %w", kind, id, apperr.ErrNotFound)
	}
	return nil
}

func resourceTable(kind domain.ResourceKind) (string, error) {
	switch kind {
	case domain.ResourceDriver:
		return "drivers", nil
	case domain.ResourceVehicle:
		return "vehicles", nil
	default:
		return "", fmt.Errorf("unknown resource kind %q", kind)
	}
}

// scanDelivery returns nil, nil on pgx.ErrNoRows.
func scanDelivery(row pgx.Row) (*domain.Delivery, error) {
	var (
		d                   domain.Delivery
		driverID, vehicleID *int64
		assigned, started   *time.Time
		completed           *time.Time
	)
	err := row.Scan(&d.ID, &d.OrderID, &d.CustomerName, &d.CustomerAddress, &d.CustomerPhone, &d.RequestedDate,
		&driverID, &vehicleID, &d.Status, &assigned, &started, &completed, &d.CreatedAt)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	d.Driver = domain.RefFromPtr[domain.Driver](driverID)
	d.Vehicle = domain.RefFromPtr[domain.Vehicle](vehicleID)
	d.AssignedAt, d.StartedAt, d.CompletedAt = utcPtr(assigned), utcPtr(started), utcPtr(completed)
	d.RequestedDate = d.RequestedDate.UTC()
	d.CreatedAt = d.CreatedAt.UTC()
	return &d, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
