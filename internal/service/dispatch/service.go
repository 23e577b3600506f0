package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"service-dispatch/internal/apperr"
	"service-dispatch/internal/domain"
	"service-dispatch/internal/logx"
	"service-dispatch/internal/ports/dispatchtx"
)

// Deps groups the collaborators of Service. Publisher, Notifier, Tracker and the metrics are optional.
type Deps struct {
	Deliveries DeliveryRepository
	Resources  ResourceReader
	Publisher  EventPublisher
	Notifier   Notifier
	Tracker    Tracker
	Logger     logx.Logger

	OperationTimeout time.Duration
	NotifyTimeout    time.Duration

	AssignedTotal    prometheus.Counter
	TransitionsTotal *prometheus.CounterVec
}

// Service is the assignment manager: it links deliveries to a driver and a vehicle
// and drives the delivery lifecycle.
type Service struct {
	repo      DeliveryRepository
	resources ResourceReader
	publisher EventPublisher
	notifier  Notifier
	tracker   Tracker
	logger    logx.Logger

	operationTimeout time.Duration
	notifyTimeout    time.Duration

	assigned    prometheus.Counter
	transitions *prometheus.CounterVec

	now      func() time.Time
	inflight sync.WaitGroup
}

// NewService creates and configures a dispatch Service.
func NewService(d Deps) *Service {
	if d.OperationTimeout <= 0 {
		d.OperationTimeout = 3 * time.Second
	}
	if d.NotifyTimeout <= 0 {
		d.NotifyTimeout = 10 * time.Second
	}
	if d.Logger == nil {
		d.Logger = logx.Nop()
	}
	return &Service{
		repo:             d.Deliveries,
		resources:        d.Resources,
		publisher:        d.Publisher,
		notifier:         d.Notifier,
		tracker:          d.Tracker,
		logger:           d.Logger,
		operationTimeout: d.OperationTimeout,
		notifyTimeout:    d.NotifyTimeout,
		assigned:         d.AssignedTotal,
		transitions:      d.TransitionsTotal,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.operationTimeout)
}

// Wait blocks until outbound notifications started so far have finished.
func (s *Service) Wait() {
	s.inflight.Wait()
}

// CreateDelivery stores a new pending delivery. An empty order id is generated.
func (s *Service) CreateDelivery(ctx context.Context, d *domain.Delivery) (*domain.Delivery, error) {
	if err := validateDelivery(d); err != nil {
		return nil, err
	}
	if d.OrderID == "" {
		d.OrderID = newOrderID()
	}
	d.Status = domain.StatusPending
	d.Driver = domain.Ref[domain.Driver]{}
	d.Vehicle = domain.Ref[domain.Vehicle]{}
	d.AssignedAt, d.StartedAt, d.CompletedAt = nil, nil, nil

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	id, err := s.repo.Create(ctx, d)
	if err != nil {
		return nil, err
	}
	d.ID = id

	s.logger.Info("delivery created",
		logx.String("event", "delivery_created"),
		logx.Int64("delivery_id", id),
		logx.String("order_id", d.OrderID),
	)
	return d, nil
}

// Get returns a delivery by id.
func (s *Service) Get(ctx context.Context, id int64) (*domain.Delivery, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("delivery %d: %w", id, apperr.ErrNotFound)
	}
	return d, nil
}

// List returns deliveries matching the filter.
func (s *Service) List(ctx context.Context, f domain.DeliveryFilter) ([]domain.Delivery, error) {
	if f.Status != nil && !f.Status.Valid() {
		return nil, apperr.Invalidf("unknown status %q", *f.Status)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.repo.List(ctx, f)
}

// DeleteDelivery releases held resources, removes the delivery and stops its feed.
func (s *Service) DeleteDelivery(ctx context.Context, id int64) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := s.repo.WithTx(ctx, func(tx dispatchtx.Repository) error {
		d, err := loadForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if d.HoldsResources() {
			if err := releaseAll(ctx, tx, d.Driver.ID(), d.Vehicle.ID()); err != nil {
				return err
			}
		}
		return tx.DeleteDelivery(ctx, id)
	})
	if err != nil {
		return err
	}

	s.stopTracking(id)
	s.logger.Info("delivery deleted", logx.String("event", "delivery_deleted"), logx.Int64("delivery_id", id))
	return nil
}

// Assign binds a pending delivery to a driver and a vehicle.
func (s *Service) Assign(ctx context.Context, deliveryID, driverID, vehicleID int64) (domain.Assignment, error) {
	if err := validateIDs(deliveryID, driverID, vehicleID); err != nil {
		return domain.Assignment{}, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var out domain.Delivery
	err := s.repo.WithTx(ctx, func(tx dispatchtx.Repository) error {
		d, err := loadForUpdate(ctx, tx, deliveryID)
		if err != nil {
			return err
		}
		if d.Status != domain.StatusPending {
			return fmt.Errorf("%w: delivery %d is %s", apperr.ErrPreconditionFailed, d.ID, d.Status)
		}
		if err := reservePair(ctx, tx, driverID, vehicleID); err != nil {
			return err
		}
		if err := d.Assign(driverID, vehicleID, s.now()); err != nil {
			return err
		}
		if err := tx.UpdateDelivery(ctx, d); err != nil {
			return err
		}
		out = *d
		return nil
	})
	if err != nil {
		return domain.Assignment{}, err
	}

	if s.assigned != nil {
		s.assigned.Inc()
	}
	s.countTransition(out.Status)
	s.logger.Info("delivery assigned",
		logx.String("event", "delivery_assigned"),
		logx.Int64("delivery_id", out.ID),
		logx.Int64("driver_id", driverID),
		logx.Int64("vehicle_id", vehicleID),
	)

	s.publishStatus(out, "")
	s.notifyDriver(driverID, domain.Notification{
		Kind:       domain.NotificationAssignment,
		DriverID:   driverID,
		DeliveryID: out.ID,
		OrderID:    out.OrderID,
		Status:     out.Status,
		Message:    fmt.Sprintf("You have been assigned delivery %s", out.OrderID),
	})

	a, _ := domain.AssignmentOf(out)
	return a, nil
}

// EditAssignment swaps the driver and/or vehicle of an assigned or ongoing delivery.
// Only the resources that change are reserved and released.
func (s *Service) EditAssignment(ctx context.Context, deliveryID, driverID, vehicleID int64) (domain.Assignment, error) {
	if err := validateIDs(deliveryID, driverID, vehicleID); err != nil {
		return domain.Assignment{}, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		out                   domain.Delivery
		oldDriver, oldVehicle int64
	)
	err := s.repo.WithTx(ctx, func(tx dispatchtx.Repository) error {
		d, err := loadForUpdate(ctx, tx, deliveryID)
		if err != nil {
			return err
		}
		if !d.HoldsResources() {
			return fmt.Errorf("%w: delivery %d has no active assignment", apperr.ErrPreconditionFailed, d.ID)
		}
		oldDriver, oldVehicle = d.Driver.ID(), d.Vehicle.ID()

		newDriver := driverID != oldDriver
		newVehicle := vehicleID != oldVehicle
		if newDriver {
			if err := reserve(ctx, tx, domain.ResourceDriver, driverID); err != nil {
				return err
			}
		}
		if newVehicle {
			if err := reserve(ctx, tx, domain.ResourceVehicle, vehicleID); err != nil {
				if newDriver {
					if relErr := tx.Release(ctx, domain.ResourceDriver, driverID); relErr != nil {
						return fmt.Errorf("%w; release driver %d: %v", err, driverID, relErr)
					}
				}
				return err
			}
		}
		if newDriver {
			if err := tx.Release(ctx, domain.ResourceDriver, oldDriver); err != nil {
				return err
			}
		}
		if newVehicle {
			if err := tx.Release(ctx, domain.ResourceVehicle, oldVehicle); err != nil {
				return err
			}
		}
		if !newDriver && !newVehicle {
			out = *d
			return nil
		}
		if err := d.Reassign(driverID, vehicleID); err != nil {
			return err
		}
		if err := tx.UpdateDelivery(ctx, d); err != nil {
			return err
		}
		out = *d
		return nil
	})
	if err != nil {
		return domain.Assignment{}, err
	}

	if driverID != oldDriver || vehicleID != oldVehicle {
		s.logger.Info("assignment edited",
			logx.String("event", "assignment_edited"),
			logx.Int64("delivery_id", out.ID),
			logx.Int64("driver_id", driverID),
			logx.Int64("vehicle_id", vehicleID),
			logx.Int64("previous_driver_id", oldDriver),
			logx.Int64("previous_vehicle_id", oldVehicle),
		)
		s.rebindTracking(out.ID, driverID, vehicleID)
		s.publishStatus(out, "assignment updated")
	}
	if driverID != oldDriver {
		s.notifyDriver(oldDriver, domain.Notification{
			Kind:       domain.NotificationUnassigned,
			DriverID:   oldDriver,
			DeliveryID: out.ID,
			OrderID:    out.OrderID,
			Status:     out.Status,
			Message:    fmt.Sprintf("You have been removed from delivery %s", out.OrderID),
		})
		s.notifyDriver(driverID, domain.Notification{
			Kind:       domain.NotificationAssignment,
			DriverID:   driverID,
			DeliveryID: out.ID,
			OrderID:    out.OrderID,
			Status:     out.Status,
			Message:    fmt.Sprintf("You have been assigned delivery %s", out.OrderID),
		})
	}

	a, _ := domain.AssignmentOf(out)
	return a, nil
}

// RemoveAssignment releases the driver and vehicle and returns the delivery to pending.
// A pending delivery is returned unchanged.
func (s *Service) RemoveAssignment(ctx context.Context, deliveryID int64) (*domain.Delivery, error) {
	return s.transition(ctx, deliveryID, "", func(ctx context.Context, tx dispatchtx.Repository, d *domain.Delivery) (bool, error) {
		if d.Status == domain.StatusPending {
			return false, nil
		}
		return true, s.unassign(ctx, tx, d)
	})
}

// Start moves an assigned delivery to ongoing.
func (s *Service) Start(ctx context.Context, deliveryID int64) (*domain.Delivery, error) {
	return s.transition(ctx, deliveryID, "", func(_ context.Context, _ dispatchtx.Repository, d *domain.Delivery) (bool, error) {
		return true, d.Start(s.now())
	})
}

// Complete finishes an ongoing delivery and releases its resources.
func (s *Service) Complete(ctx context.Context, deliveryID int64) (*domain.Delivery, error) {
	return s.transition(ctx, deliveryID, "", s.complete)
}

// Cancel cancels a non-terminal delivery, releasing its resources if held.
func (s *Service) Cancel(ctx context.Context, deliveryID int64) (*domain.Delivery, error) {
	return s.transition(ctx, deliveryID, "", s.cancel)
}

// CancelByOrderID cancels the delivery created for an order.
func (s *Service) CancelByOrderID(ctx context.Context, orderID string) (*domain.Delivery, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, apperr.Invalidf("order_id is required")
	}
	lookupCtx, cancel := s.withTimeout(ctx)
	d, err := s.repo.GetByOrderID(lookupCtx, orderID)
	cancel()
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("order %s: %w", orderID, apperr.ErrNotFound)
	}
	return s.Cancel(ctx, d.ID)
}

// UpdateStatus maps a target status onto the matching lifecycle transition.
func (s *Service) UpdateStatus(ctx context.Context, deliveryID int64, target domain.DeliveryStatus, notes string) (*domain.Delivery, error) {
	if !target.Valid() {
		return nil, apperr.Invalidf("unknown status %q", target)
	}
	return s.transition(ctx, deliveryID, notes, func(ctx context.Context, tx dispatchtx.Repository, d *domain.Delivery) (bool, error) {
		if d.Status == target {
			return false, fmt.Errorf("%w: delivery %d is already %s", apperr.ErrPreconditionFailed, d.ID, target)
		}
		switch target {
		case domain.StatusAssigned:
			return false, fmt.Errorf("%w: use assign to move delivery %d to assigned", apperr.ErrPreconditionFailed, d.ID)
		case domain.StatusOngoing:
			return true, d.Start(s.now())
		case domain.StatusCompleted:
			return s.complete(ctx, tx, d)
		case domain.StatusCancelled:
			return s.cancel(ctx, tx, d)
		case domain.StatusPending:
			return true, s.unassign(ctx, tx, d)
		default:
			return false, apperr.Invalidf("unknown status %q", target)
		}
	})
}

// GetAssignment returns the assignment projection with driver and vehicle resolved.
func (s *Service) GetAssignment(ctx context.Context, deliveryID int64) (domain.Assignment, error) {
	d, err := s.Get(ctx, deliveryID)
	if err != nil {
		return domain.Assignment{}, err
	}
	a, ok := domain.AssignmentOf(*d)
	if !ok {
		return domain.Assignment{}, fmt.Errorf("delivery %d has no assignment: %w", deliveryID, apperr.ErrNotFound)
	}
	if s.resources == nil {
		return a, nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	driver, err := s.resources.GetDriver(ctx, a.Driver.ID())
	if err != nil {
		return domain.Assignment{}, err
	}
	if driver != nil {
		a.Driver = domain.Resolved(driver.ID, driver)
	}
	vehicle, err := s.resources.GetVehicle(ctx, a.Vehicle.ID())
	if err != nil {
		return domain.Assignment{}, err
	}
	if vehicle != nil {
		a.Vehicle = domain.Resolved(vehicle.ID, vehicle)
	}
	return a, nil
}

type transitionFn func(ctx context.Context, tx dispatchtx.Repository, d *domain.Delivery) (changed bool, err error)

// transition runs fn on a locked delivery, persists it when changed and emits the side effects after commit.
func (s *Service) transition(ctx context.Context, deliveryID int64, notes string, fn transitionFn) (*domain.Delivery, error) {
	if deliveryID <= 0 {
		return nil, apperr.Invalidf("delivery id must be positive")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		before, after domain.Delivery
		changed       bool
	)
	err := s.repo.WithTx(ctx, func(tx dispatchtx.Repository) error {
		d, err := loadForUpdate(ctx, tx, deliveryID)
		if err != nil {
			return err
		}
		before = *d
		changed, err = fn(ctx, tx, d)
		if err != nil {
			return err
		}
		if changed {
			if err := tx.UpdateDelivery(ctx, d); err != nil {
				return err
			}
		}
		after = *d
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return &after, nil
	}

	s.afterTransition(before, after, notes)
	return &after, nil
}

func (s *Service) afterTransition(before, after domain.Delivery, notes string) {
	s.countTransition(after.Status)
	s.logger.Info("delivery status changed",
		logx.String("event", "delivery_"+string(after.Status)),
		logx.Int64("delivery_id", after.ID),
		logx.String("from", string(before.Status)),
		logx.String("to", string(after.Status)),
	)

	s.publishStatus(after, notes)
	if after.Status.Terminal() || after.Status == domain.StatusPending {
		s.stopTracking(after.ID)
	}

	driverID := before.Driver.ID()
	if driverID == 0 {
		return
	}
	n := domain.Notification{
		Kind:       domain.NotificationStatus,
		DriverID:   driverID,
		DeliveryID: after.ID,
		OrderID:    after.OrderID,
		Status:     after.Status,
		Message:    fmt.Sprintf("Delivery %s is now %s", after.OrderID, after.Status),
	}
	if after.Status == domain.StatusPending {
		n.Kind = domain.NotificationUnassigned
		n.Message = fmt.Sprintf("You have been removed from delivery %s", after.OrderID)
	}
	s.notifyDriver(driverID, n)
}

func (s *Service) complete(ctx context.Context, tx dispatchtx.Repository, d *domain.Delivery) (bool, error) {
	held := d.HoldsResources()
	if err := d.Complete(s.now()); err != nil {
		return false, err
	}
	if held {
		if err := releaseAll(ctx, tx, d.Driver.ID(), d.Vehicle.ID()); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (s *Service) cancel(ctx context.Context, tx dispatchtx.Repository, d *domain.Delivery) (bool, error) {
	held := d.HoldsResources()
	if err := d.Cancel(); err != nil {
		return false, err
	}
	if held {
		if err := releaseAll(ctx, tx, d.Driver.ID(), d.Vehicle.ID()); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (s *Service) unassign(ctx context.Context, tx dispatchtx.Repository, d *domain.Delivery) error {
	driverID, vehicleID := d.Driver.ID(), d.Vehicle.ID()
	held := d.HoldsResources()
	if err := d.Unassign(); err != nil {
		return err
	}
	if held {
		return releaseAll(ctx, tx, driverID, vehicleID)
	}
	return nil
}

func (s *Service) countTransition(to domain.DeliveryStatus) {
	if s.transitions != nil {
		s.transitions.WithLabelValues(string(to)).Inc()
	}
}

func (s *Service) publishStatus(d domain.Delivery, notes string) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(d.ID, domain.Event{
		Type:       domain.EventStatusUpdate,
		DeliveryID: d.ID,
		Data:       domain.StatusUpdate{Status: d.Status, Notes: notes},
		Timestamp:  s.now(),
	})
}

// notifyDriver pushes the notification to the driver channel and hands it to the
// outbound notifier in the background. Failures are logged only.
func (s *Service) notifyDriver(driverID int64, n domain.Notification) {
	if s.publisher != nil {
		s.publisher.PublishToDriver(driverID, domain.Event{
			Type:       domain.EventNotification,
			DeliveryID: n.DeliveryID,
			DriverID:   driverID,
			Data:       n,
			Timestamp:  s.now(),
		})
	}
	if s.notifier == nil {
		return
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
		defer cancel()
		if err := s.notifier.Notify(ctx, n); err != nil {
			s.logger.Warn("driver notification failed",
				logx.Int64("driver_id", n.DriverID),
				logx.Int64("delivery_id", n.DeliveryID),
				logx.String("kind", string(n.Kind)),
				logx.Err(err),
			)
		}
	}()
}

func (s *Service) stopTracking(deliveryID int64) {
	if s.tracker != nil {
		s.tracker.StopTracking(deliveryID)
	}
}

// rebindTracking moves a running feed to the new resources. A feed that cannot follow
// the new driver is stopped so it never reports for a released driver.
func (s *Service) rebindTracking(deliveryID, driverID, vehicleID int64) {
	if s.tracker == nil {
		return
	}
	if _, err := s.tracker.Rebind(deliveryID, driverID, vehicleID); err != nil {
		s.logger.Warn("tracking feed not rebound",
			logx.Int64("delivery_id", deliveryID),
			logx.Int64("driver_id", driverID),
			logx.Err(err),
		)
		s.tracker.StopTracking(deliveryID)
	}
}

func loadForUpdate(ctx context.Context, tx dispatchtx.Repository, id int64) (*domain.Delivery, error) {
	d, err := tx.GetDeliveryForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("delivery %d: %w", id, apperr.ErrNotFound)
	}
	return d, nil
}

// reservePair reserves the driver then the vehicle. A failed vehicle reservation
// releases the driver before returning.
func reservePair(ctx context.Context, tx dispatchtx.Repository, driverID, vehicleID int64) error {
	if err := reserve(ctx, tx, domain.ResourceDriver, driverID); err != nil {
		return err
	}
	if err := reserve(ctx, tx, domain.ResourceVehicle, vehicleID); err != nil {
		if relErr := tx.Release(ctx, domain.ResourceDriver, driverID); relErr != nil {
			return fmt.Errorf("%w; release driver %d: %v", err, driverID, relErr)
		}
		return err
	}
	return nil
}

func reserve(ctx context.Context, tx dispatchtx.Repository, kind domain.ResourceKind, id int64) error {
	ok, err := tx.TryReserve(ctx, kind, id)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if kind == domain.ResourceDriver {
		return apperr.ErrDriverUnavailable
	}
	return apperr.ErrVehicleUnavailable
}

func releaseAll(ctx context.Context, tx dispatchtx.Repository, driverID, vehicleID int64) error {
	if err := tx.Release(ctx, domain.ResourceDriver, driverID); err != nil {
		return err
	}
	return tx.Release(ctx, domain.ResourceVehicle, vehicleID)
}

func validateIDs(deliveryID, driverID, vehicleID int64) error {
	if deliveryID <= 0 {
		return apperr.Invalidf("delivery id must be positive")
	}
	if driverID <= 0 {
		return apperr.Invalidf("driver_id must be positive")
	}
	if vehicleID <= 0 {
		return apperr.Invalidf("vehicle_id must be positive")
	}
	return nil
}

func validateDelivery(d *domain.Delivery) error {
	if d == nil {
		return apperr.Invalidf("delivery is required")
	}
	d.OrderID = strings.TrimSpace(d.OrderID)
	d.CustomerName = strings.TrimSpace(d.CustomerName)
	d.CustomerAddress = strings.TrimSpace(d.CustomerAddress)
	if d.CustomerName == "" {
		return apperr.Invalidf("customer_name is required")
	}
	if d.CustomerAddress == "" {
		return apperr.Invalidf("customer_address is required")
	}
	if !domain.ValidatePhone(d.CustomerPhone) {
		return apperr.Invalidf("customer_phone must match +XXXXXXXXXXX")
	}
	if d.RequestedDate.IsZero() {
		return apperr.Invalidf("requested_date is required")
	}
	return nil
}

func newOrderID() string {
	return "ORD-" + strings.ToUpper(uuid.NewString()[:8])
}
