package resources

import (
	"context"
	"strings"
	"time"

	"service-dispatch/internal/apperr"
	"service-dispatch/internal/domain"
	"service-dispatch/internal/logx"
)

// Service owns driver and vehicle registration. Availability is never written here.
type Service struct {
	repo             resourceRepository
	logger           logx.Logger
	operationTimeout time.Duration
}

// NewService creates and configures a resources Service.
func NewService(r resourceRepository, logger logx.Logger, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if logger == nil {
		logger = logx.Nop()
	}
	return &Service{repo: r, logger: logger, operationTimeout: timeout}
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.operationTimeout)
}

func validateDriver(d *domain.Driver) error {
	if d == nil {
		return apperr.Invalidf("driver is required")
	}
	d.Name = strings.TrimSpace(d.Name)
	d.LicenseNumber = strings.TrimSpace(d.LicenseNumber)
	if d.Name == "" {
		return apperr.Invalidf("name is required")
	}
	if !domain.ValidatePhone(d.Phone) {
		return apperr.Invalidf("phone must match +XXXXXXXXXXX")
	}
	if d.LicenseNumber == "" {
		return apperr.Invalidf("license_number is required")
	}
	return nil
}

func validateVehicle(v *domain.Vehicle) error {
	if v == nil {
		return apperr.Invalidf("vehicle is required")
	}
	v.Number = strings.TrimSpace(v.Number)
	if v.Number == "" {
		return apperr.Invalidf("number is required")
	}
	if !v.Type.Valid() {
		return apperr.Invalidf("unknown vehicle type %q", v.Type)
	}
	if v.Capacity <= 0 {
		return apperr.Invalidf("capacity must be positive")
	}
	return nil
}

// CreateDriver registers an available driver and returns its ID.
func (s *Service) CreateDriver(ctx context.Context, d *domain.Driver) (int64, error) {
	if err := validateDriver(d); err != nil {
		return 0, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	id, err := s.repo.CreateDriver(ctx, d)
	if err != nil {
		return 0, err
	}
	s.logger.Info("driver registered", logx.String("event", "driver_created"), logx.Int64("driver_id", id))
	return id, nil
}

// GetDriver retrieves a driver by its ID.
func (s *Service) GetDriver(ctx context.Context, id int64) (*domain.Driver, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	d, err := s.repo.GetDriver(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, apperr.ErrNotFound
	}
	return d, nil
}

// ListDrivers returns drivers with optional pagination
func (s *Service) ListDrivers(ctx context.Context, limit, offset *int) ([]domain.Driver, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.repo.ListDrivers(ctx, limit, offset)
}

// CreateVehicle registers an available vehicle and returns its ID.
func (s *Service) CreateVehicle(ctx context.Context, v *domain.Vehicle) (int64, error) {
	if err := validateVehicle(v); err != nil {
		return 0, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	id, err := s.repo.CreateVehicle(ctx, v)
	if err != nil {
		return 0, err
	}
	s.logger.Info("vehicle registered", logx.String("event", "vehicle_created"), logx.Int64("vehicle_id", id))
	return id, nil
}

// GetVehicle retrieves a vehicle by its ID.
func (s *Service) GetVehicle(ctx context.Context, id int64) (*domain.Vehicle, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	v, err := s.repo.GetVehicle(ctx, id)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, apperr.ErrNotFound
	}
	return v, nil
}

// ListVehicles returns vehicles with optional pagination
func (s *Service) ListVehicles(ctx context.Context, limit, offset *int) ([]domain.Vehicle, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.repo.ListVehicles(ctx, limit, offset)
}
