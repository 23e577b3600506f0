//go:generate mockgen -source=contracts.go -destination=orders_mocks_test.go -package=orders_test

package orders

import (
	"context"

	"service-dispatch/internal/domain"
)

// DeliveryPort abstracts the subset of dispatch operations
// needed by orders Processor when handling order events
type DeliveryPort interface {
	CreateDelivery(ctx context.Context, d *domain.Delivery) (*domain.Delivery, error)
	CancelByOrderID(ctx context.Context, orderID string) (*domain.Delivery, error)
}
