package handlers

import (
	"context"

	"service-dispatch/internal/domain"
	"service-dispatch/internal/service/dispatch"
	"service-dispatch/internal/service/resources"
	"service-dispatch/internal/service/tracking"
)

type resourceUsecase interface {
	CreateDriver(ctx context.Context, d *domain.Driver) (int64, error)
	GetDriver(ctx context.Context, id int64) (*domain.Driver, error)
	ListDrivers(ctx context.Context, limit, offset *int) ([]domain.Driver, error)
	CreateVehicle(ctx context.Context, v *domain.Vehicle) (int64, error)
	GetVehicle(ctx context.Context, id int64) (*domain.Vehicle, error)
	ListVehicles(ctx context.Context, limit, offset *int) ([]domain.Vehicle, error)
}

// NewResourceUsecase wires the resource service into a resourceUsecase.
func NewResourceUsecase(svc *resources.Service) resourceUsecase {
	return svc
}

type dispatchUsecase interface {
	CreateDelivery(ctx context.Context, d *domain.Delivery) (*domain.Delivery, error)
	Get(ctx context.Context, id int64) (*domain.Delivery, error)
	List(ctx context.Context, f domain.DeliveryFilter) ([]domain.Delivery, error)
	DeleteDelivery(ctx context.Context, id int64) error
	Assign(ctx context.Context, deliveryID, driverID, vehicleID int64) (domain.Assignment, error)
	EditAssignment(ctx context.Context, deliveryID, driverID, vehicleID int64) (domain.Assignment, error)
	RemoveAssignment(ctx context.Context, deliveryID int64) (*domain.Delivery, error)
	GetAssignment(ctx context.Context, deliveryID int64) (domain.Assignment, error)
	Start(ctx context.Context, deliveryID int64) (*domain.Delivery, error)
	Complete(ctx context.Context, deliveryID int64) (*domain.Delivery, error)
	Cancel(ctx context.Context, deliveryID int64) (*domain.Delivery, error)
	UpdateStatus(ctx context.Context, deliveryID int64, target domain.DeliveryStatus, notes string) (*domain.Delivery, error)
}

// NewDispatchUsecase wires the dispatch service into a dispatchUsecase.
func NewDispatchUsecase(svc *dispatch.Service) dispatchUsecase {
	return svc
}

type trackingUsecase interface {
	PublishLocation(ctx context.Context, s domain.LocationSample) error
	LatestLocation(ctx context.Context, deliveryID int64) (*domain.LocationSample, error)
	LocationHistory(ctx context.Context, deliveryID int64, page, limit int) (domain.LocationPage, error)
	Subscribers(deliveryID int64) int
	StartSimulation(deliveryID, driverID, vehicleID int64, opts tracking.SimOptions) error
	StartPassThrough(deliveryID, driverID, vehicleID int64) error
	StopTracking(deliveryID int64) bool
	ActiveFeed(deliveryID int64) (tracking.Feed, bool)
}

// NewTrackingUsecase wires the tracker into a trackingUsecase.
func NewTrackingUsecase(svc *tracking.Service) trackingUsecase {
	return svc
}
