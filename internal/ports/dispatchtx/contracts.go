package dispatchtx

import (
	"context"

	"service-dispatch/internal/domain"
)

// Repository is the set of operations available inside one dispatch transaction.
// TryReserve and Release are the only writers of the availability flag.
type Repository interface {
	GetDeliveryForUpdate(ctx context.Context, id int64) (*domain.Delivery, error)
	UpdateDelivery(ctx context.Context, d *domain.Delivery) error
	DeleteDelivery(ctx context.Context, id int64) error
	TryReserve(ctx context.Context, kind domain.ResourceKind, id int64) (bool, error)
	Release(ctx context.Context, kind domain.ResourceKind, id int64) error
}

// Runner is a transaction runner
type Runner interface {
	WithTx(ctx context.Context, fn func(tx Repository) error) error
}
