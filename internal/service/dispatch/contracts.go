//go:generate mockgen -source=contracts.go -destination=dispatch_mocks_test.go -package=dispatch_test

package dispatch

import (
	"context"

	"service-dispatch/internal/domain"
	"service-dispatch/internal/ports/dispatchtx"
)

// DeliveryRepository is the delivery store plus its transaction runner.
type DeliveryRepository interface {
	WithTx(ctx context.Context, fn func(tx dispatchtx.Repository) error) error
	Create(ctx context.Context, d *domain.Delivery) (int64, error)
	Get(ctx context.Context, id int64) (*domain.Delivery, error)
	GetByOrderID(ctx context.Context, orderID string) (*domain.Delivery, error)
	List(ctx context.Context, f domain.DeliveryFilter) ([]domain.Delivery, error)
}

// ResourceReader resolves driver and vehicle references.
type ResourceReader interface {
	GetDriver(ctx context.Context, id int64) (*domain.Driver, error)
	GetVehicle(ctx context.Context, id int64) (*domain.Vehicle, error)
}

// EventPublisher fans events out to live subscribers.
type EventPublisher interface {
	Publish(deliveryID int64, ev domain.Event) int
	PublishToDriver(driverID int64, ev domain.Event) int
}

// Notifier delivers driver notifications outside the process.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// Tracker controls the location feed of a delivery.
// Rebind reports false when the delivery has no feed.
type Tracker interface {
	StopTracking(deliveryID int64) bool
	Rebind(deliveryID, driverID, vehicleID int64) (bool, error)
}
