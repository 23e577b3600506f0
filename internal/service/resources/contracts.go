package resources

import (
	"context"

	"service-dispatch/internal/domain"
)

// resourceRepository defines storage operations required by the business layer.
type resourceRepository interface {
	CreateDriver(ctx context.Context, d *domain.Driver) (int64, error)
	GetDriver(ctx context.Context, id int64) (*domain.Driver, error)
	ListDrivers(ctx context.Context, limit, offset *int) ([]domain.Driver, error)
	CreateVehicle(ctx context.Context, v *domain.Vehicle) (int64, error)
	GetVehicle(ctx context.Context, id int64) (*domain.Vehicle, error)
	ListVehicles(ctx context.Context, limit, offset *int) ([]domain.Vehicle, error)
}
