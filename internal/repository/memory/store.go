// Package memory is a process-local store with the same contracts as the Postgres repositories.
// Transactions are serialized behind one mutex and applied to a staged copy that replaces
// the live state only on success.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"service-dispatch/internal/apperr"
	"service-dispatch/internal/domain"
	"service-dispatch/internal/ports/dispatchtx"
)

// Store keeps drivers, vehicles and deliveries in memory.
type Store struct {
	mu  sync.Mutex
	st  state
	now func() time.Time
}

type state struct {
	drivers    map[int64]domain.Driver
	vehicles   map[int64]domain.Vehicle
	deliveries map[int64]domain.Delivery

	driverSeq, vehicleSeq, deliverySeq int64
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		st: state{
			drivers:    make(map[int64]domain.Driver),
			vehicles:   make(map[int64]domain.Vehicle),
			deliveries: make(map[int64]domain.Delivery),
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (s state) clone() state {
	out := s
	out.drivers = make(map[int64]domain.Driver, len(s.drivers))
	for k, v := range s.drivers {
		out.drivers[k] = v
	}
	out.vehicles = make(map[int64]domain.Vehicle, len(s.vehicles))
	for k, v := range s.vehicles {
		out.vehicles[k] = v
	}
	out.deliveries = make(map[int64]domain.Delivery, len(s.deliveries))
	for k, v := range s.deliveries {
		out.deliveries[k] = v
	}
	return out
}

// WithTx runs fn against a staged copy and commits it when fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(tx dispatchtx.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	staged := &txRepo{st: s.st.clone()}
	if err := fn(staged); err != nil {
		return err
	}
	s.st = staged.st
	return nil
}

// CreateDriver inserts an available driver.
func (s *Store) CreateDriver(_ context.Context, d *domain.Driver) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.st.drivers {
		if existing.LicenseNumber == d.LicenseNumber {
			return 0, apperr.ErrConflict
		}
	}
	s.st.driverSeq++
	c := *d
	c.ID = s.st.driverSeq
	c.IsAvailable = true
	s.st.drivers[c.ID] = c
	return c.ID, nil
}

// GetDriver returns nil when absent.
func (s *Store) GetDriver(_ context.Context, id int64) (*domain.Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.st.drivers[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

// ListDrivers returns drivers ordered by id.
func (s *Store) ListDrivers(_ context.Context, limit, offset *int) ([]domain.Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Driver, 0, len(s.st.drivers))
	for _, d := range s.st.drivers {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, limit, offset), nil
}

// CreateVehicle inserts an available vehicle.
func (s *Store) CreateVehicle(_ context.Context, v *domain.Vehicle) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.st.vehicles {
		if existing.Number == v.Number {
			return 0, apperr.ErrConflict
		}
	}
	s.st.vehicleSeq++
	c := *v
	c.ID = s.st.vehicleSeq
	c.IsAvailable = true
	s.st.vehicles[c.ID] = c
	return c.ID, nil
}

// GetVehicle returns nil when absent.
func (s *Store) GetVehicle(_ context.Context, id int64) (*domain.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.st.vehicles[id]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

// ListVehicles returns vehicles ordered by id.
func (s *Store) ListVehicles(_ context.Context, limit, offset *int) ([]domain.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Vehicle, 0, len(s.st.vehicles))
	for _, v := range s.st.vehicles {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, limit, offset), nil
}

// Create inserts a delivery.
func (s *Store) Create(_ context.Context, d *domain.Delivery) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.st.deliveries {
		if existing.OrderID == d.OrderID {
			return 0, apperr.ErrConflict
		}
	}
	s.st.deliverySeq++
	d.ID = s.st.deliverySeq
	d.CreatedAt = s.now()
	s.st.deliveries[d.ID] = *d
	return d.ID, nil
}

// Get returns nil when absent.
func (s *Store) Get(_ context.Context, id int64) (*domain.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.st.deliveries[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

// GetByOrderID returns nil when absent.
func (s *Store) GetByOrderID(_ context.Context, orderID string) (*domain.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.st.deliveries {
		if d.OrderID == orderID {
			return &d, nil
		}
	}
	return nil, nil
}

// List returns deliveries ordered by id.
func (s *Store) List(_ context.Context, f domain.DeliveryFilter) ([]domain.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Delivery, 0, len(s.st.deliveries))
	for _, d := range s.st.deliveries {
		if f.Status != nil && d.Status != *f.Status {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, f.Limit, f.Offset), nil
}

type txRepo struct {
	st state
}

func (t *txRepo) GetDeliveryForUpdate(_ context.Context, id int64) (*domain.Delivery, error) {
	d, ok := t.st.deliveries[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (t *txRepo) UpdateDelivery(_ context.Context, d *domain.Delivery) error {
	if _, ok := t.st.deliveries[d.ID]; !ok {
		return fmt.Errorf("update delivery %d: %w", d.ID, apperr.ErrNotFound)
	}
	t.st.deliveries[d.ID] = *d
	return nil
}

func (t *txRepo) DeleteDelivery(_ context.Context, id int64) error {
	if _, ok := t.st.deliveries[id]; !ok {
		return fmt.Errorf("delete delivery %d: %w", id, apperr.ErrNotFound)
	}
	delete(t.st.deliveries, id)
	return nil
}

func (t *txRepo) TryReserve(_ context.Context, kind domain.ResourceKind, id int64) (bool, error) {
	switch kind {
	case domain.ResourceDriver:
		d, ok := t.st.drivers[id]
		if !ok {
			return false, fmt.Errorf("%s %d: %w", kind, id, apperr.ErrNotFound)
		}
		if !d.IsAvailable {
			return false, nil
		}
		d.IsAvailable = false
		t.st.drivers[id] = d
		return true, nil
	case domain.ResourceVehicle:
		v, ok := t.st.vehicles[id]
		if !ok {
			return false, fmt.Errorf("%s %d: %w", kind, id, apperr.ErrNotFound)
		}
		if !v.IsAvailable {
			return false, nil
		}
		v.IsAvailable = false
		t.st.vehicles[id] = v
		return true, nil
	default:
		return false, fmt.Errorf("unknown resource kind %q", kind)
	}
}

func (t *txRepo) Release(_ context.Context, kind domain.ResourceKind, id int64) error {
	switch kind {
	case domain.ResourceDriver:
		d, ok := t.st.drivers[id]
		if !ok {
			return fmt.Errorf("%s %d: %w", kind, id, apperr.ErrNotFound)
		}
		d.IsAvailable = true
		t.st.drivers[id] = d
	case domain.ResourceVehicle:
		v, ok := t.st.vehicles[id]
		if !ok {
			return fmt.Errorf("%s %d: %w", kind, id, apperr.ErrNotFound)
		}
		v.IsAvailable = true
		t.st.vehicles[id] = v
	default:
		return fmt.Errorf("unknown resource kind %q", kind)
	}
	return nil
}

func page[T any](items []T, limit, offset *int) []T {
	if offset != nil {
		if *offset >= len(items) {
			return items[:0]
		}
		items = items[*offset:]
	}
	if limit != nil && *limit < len(items) {
		items = items[:*limit]
	}
	return items
}
