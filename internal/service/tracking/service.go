package tracking

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"service-dispatch/internal/apperr"
	"service-dispatch/internal/domain"
	"service-dispatch/internal/logx"
	"service-dispatch/internal/storage/locations"
)

// Bus is the part of the event bus used by the tracker.
type Bus interface {
	Publish(deliveryID int64, ev domain.Event) int
	ActiveSubscriberCount(deliveryID int64) int
}

// FeedKind tells how a feed produces samples.
type FeedKind string

// List of feed kinds
const (
	FeedSimulated   FeedKind = "simulated"
	FeedPassThrough FeedKind = "pass_through"
)

// History page bounds.
const (
	MaxHistoryLimit = 100
)

// SimOptions configure a simulated feed. Zero Interval and SpeedKmh use the service defaults.
type SimOptions struct {
	Origin      domain.Location
	Waypoints   []domain.Location
	Destination domain.Location
	SpeedKmh    float64
	Interval    time.Duration
	JitterM     float64
	Seed        *int64
}

// DeviceReport is one position report from a driver device.
type DeviceReport struct {
	Location  domain.Location
	Speed     float64
	Status    string
	Timestamp time.Time
}

// Feed describes a running feed.
type Feed struct {
	DeliveryID int64
	DriverID   int64
	VehicleID  int64
	Kind       FeedKind
	StartedAt  time.Time
}

// feed DriverID and VehicleID are guarded by Service.mu while the feed is registered.
type feed struct {
	Feed
	cancel context.CancelFunc
	done   chan struct{}
}

// Service produces location samples for deliveries and pushes them into the bus.
type Service struct {
	store  locations.Store
	bus    Bus
	logger logx.Logger

	interval  time.Duration
	speedKmh  float64
	opTimeout time.Duration

	mu       sync.Mutex
	feeds    map[int64]*feed
	byDriver map[int64]int64

	now func() time.Time
}

// Config holds simulator defaults.
type Config struct {
	Interval         time.Duration
	SpeedKmh         float64
	OperationTimeout time.Duration
}

// NewService creates a tracker.
func NewService(store locations.Store, bus Bus, logger logx.Logger, cfg Config) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.SpeedKmh <= 0 {
		cfg.SpeedKmh = 30
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 3 * time.Second
	}
	if logger == nil {
		logger = logx.Nop()
	}
	return &Service{
		store:     store,
		bus:       bus,
		logger:    logger,
		interval:  cfg.Interval,
		speedKmh:  cfg.SpeedKmh,
		opTimeout: cfg.OperationTimeout,
		feeds:     make(map[int64]*feed),
		byDriver:  make(map[int64]int64),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// PublishLocation stores a sample and broadcasts it as location_update.
func (s *Service) PublishLocation(ctx context.Context, sample domain.LocationSample) error {
	if sample.DeliveryID <= 0 {
		return apperr.Invalidf("delivery id must be positive")
	}
	if !sample.Location.Valid() {
		return apperr.Invalidf("coordinates out of range")
	}
	if sample.Speed < 0 {
		return apperr.Invalidf("speed must not be negative")
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = s.now()
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	if err := s.store.Save(ctx, sample); err != nil {
		return err
	}

	s.bus.Publish(sample.DeliveryID, domain.NewLocationEvent(sample))
	return nil
}

// StartSimulation walks origin, waypoints and destination at a constant speed.
// The feed ends by itself at the destination.
func (s *Service) StartSimulation(deliveryID, driverID, vehicleID int64, opts SimOptions) error {
	if !opts.Origin.Valid() || !opts.Destination.Valid() {
		return apperr.Invalidf("origin and destination must be valid coordinates")
	}
	points := make([]domain.Location, 0, len(opts.Waypoints)+2)
	points = append(points, opts.Origin)
	for _, w := range opts.Waypoints {
		if !w.Valid() {
			return apperr.Invalidf("waypoint out of range")
		}
		points = append(points, w)
	}
	points = append(points, opts.Destination)

	if opts.SpeedKmh < 0 || opts.Interval < 0 || opts.JitterM < 0 {
		return apperr.Invalidf("speed, interval and jitter must not be negative")
	}
	if opts.SpeedKmh == 0 {
		opts.SpeedKmh = s.speedKmh
	}
	if opts.Interval == 0 {
		opts.Interval = s.interval
	}
	seed := time.Now().UnixNano()
	if opts.Seed != nil {
		seed = *opts.Seed
	}

	f, ctx, err := s.register(deliveryID, driverID, vehicleID, FeedSimulated)
	if err != nil {
		return err
	}
	go s.simulate(ctx, f, newRoute(points), opts, rand.New(rand.NewSource(seed)))

	s.logger.Info("tracking started",
		logx.String("event", "tracking_started"),
		logx.String("kind", string(FeedSimulated)),
		logx.Int64("delivery_id", deliveryID),
		logx.Int64("driver_id", driverID),
	)
	return nil
}

// StartPassThrough routes reports of the driver's device to the delivery.
func (s *Service) StartPassThrough(deliveryID, driverID, vehicleID int64) error {
	f, ctx, err := s.register(deliveryID, driverID, vehicleID, FeedPassThrough)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		close(f.done)
	}()

	s.logger.Info("tracking started",
		logx.String("event", "tracking_started"),
		logx.String("kind", string(FeedPassThrough)),
		logx.Int64("delivery_id", deliveryID),
		logx.Int64("driver_id", driverID),
	)
	return nil
}

// ReportDevice republishes a device report for the delivery currently tracked for the driver.
// NotFound when the driver has no pass-through feed.
func (s *Service) ReportDevice(ctx context.Context, driverID int64, r DeviceReport) error {
	s.mu.Lock()
	deliveryID, ok := s.byDriver[driverID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no pass-through feed for driver %d: %w", driverID, apperr.ErrNotFound)
	}
	return s.PublishLocation(ctx, domain.LocationSample{
		DeliveryID: deliveryID,
		DriverID:   driverID,
		Location:   r.Location,
		Speed:      r.Speed,
		Status:     r.Status,
		Timestamp:  r.Timestamp,
	})
}

// StopTracking ends the feed of a delivery and publishes tracking_stopped once.
// It returns false when there was no feed.
func (s *Service) StopTracking(deliveryID int64) bool {
	s.mu.Lock()
	f, ok := s.feeds[deliveryID]
	if ok {
		s.unregisterLocked(f)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}

	f.cancel()
	<-f.done
	s.stopped(f, "stopped")
	return true
}

// Rebind moves the feed of a delivery to another driver and vehicle after its assignment changed.
// It returns false when the delivery has no feed. Conflict when the new driver already
// reports for another delivery.
func (s *Service) Rebind(deliveryID, driverID, vehicleID int64) (bool, error) {
	if driverID <= 0 {
		return false, apperr.Invalidf("driver id must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.feeds[deliveryID]
	if !ok {
		return false, nil
	}
	if f.DriverID == driverID && f.VehicleID == vehicleID {
		return true, nil
	}
	if f.Kind == FeedPassThrough && f.DriverID != driverID {
		if other, ok := s.byDriver[driverID]; ok && other != deliveryID {
			return true, fmt.Errorf("driver %d already reports for delivery %d: %w", driverID, other, apperr.ErrConflict)
		}
		if s.byDriver[f.DriverID] == deliveryID {
			delete(s.byDriver, f.DriverID)
		}
		s.byDriver[driverID] = deliveryID
	}

	s.logger.Info("tracking rebound",
		logx.String("event", "tracking_rebound"),
		logx.Int64("delivery_id", deliveryID),
		logx.Int64("previous_driver_id", f.DriverID),
		logx.Int64("driver_id", driverID),
		logx.Int64("vehicle_id", vehicleID),
	)
	f.DriverID, f.VehicleID = driverID, vehicleID
	return true, nil
}

// StopAll stops every feed.
func (s *Service) StopAll() {
	s.mu.Lock()
	ids := make([]int64, 0, len(s.feeds))
	for id := range s.feeds {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.StopTracking(id)
	}
}

// ActiveFeed returns the running feed of a delivery.
func (s *Service) ActiveFeed(deliveryID int64) (Feed, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.feeds[deliveryID]
	if !ok {
		return Feed{}, false
	}
	return f.Feed, true
}

// ActiveFeeds returns the number of running feeds.
func (s *Service) ActiveFeeds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.feeds)
}

// LatestLocation returns the newest sample of a delivery.
func (s *Service) LatestLocation(ctx context.Context, deliveryID int64) (*domain.LocationSample, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	sample, err := s.store.Latest(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	if sample == nil {
		return nil, fmt.Errorf("no location for delivery %d: %w", deliveryID, apperr.ErrNotFound)
	}
	return sample, nil
}

// LocationHistory returns one page of the trail, oldest first.
func (s *Service) LocationHistory(ctx context.Context, deliveryID int64, page, limit int) (domain.LocationPage, error) {
	if page < 1 {
		return domain.LocationPage{}, apperr.Invalidf("page must be >= 1")
	}
	if limit < 1 || limit > MaxHistoryLimit {
		return domain.LocationPage{}, apperr.Invalidf("limit must be between 1 and %d", MaxHistoryLimit)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return s.store.History(ctx, deliveryID, page, limit)
}

// Subscribers returns the number of live watchers of a delivery.
func (s *Service) Subscribers(deliveryID int64) int {
	return s.bus.ActiveSubscriberCount(deliveryID)
}

func (s *Service) register(deliveryID, driverID, vehicleID int64, kind FeedKind) (*feed, context.Context, error) {
	if deliveryID <= 0 || driverID <= 0 {
		return nil, nil, apperr.Invalidf("delivery and driver ids must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.feeds[deliveryID]; ok {
		return nil, nil, fmt.Errorf("delivery %d is already tracked: %w", deliveryID, apperr.ErrConflict)
	}
	if kind == FeedPassThrough {
		if other, ok := s.byDriver[driverID]; ok {
			return nil, nil, fmt.Errorf("driver %d already reports for delivery %d: %w", driverID, other, apperr.ErrConflict)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	f := &feed{
		Feed: Feed{
			DeliveryID: deliveryID,
			DriverID:   driverID,
			VehicleID:  vehicleID,
			Kind:       kind,
			StartedAt:  s.now(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.feeds[deliveryID] = f
	if kind == FeedPassThrough {
		s.byDriver[driverID] = deliveryID
	}
	return f, ctx, nil
}

func (s *Service) unregisterLocked(f *feed) {
	delete(s.feeds, f.DeliveryID)
	if f.Kind == FeedPassThrough && s.byDriver[f.DriverID] == f.DeliveryID {
		delete(s.byDriver, f.DriverID)
	}
}

func (s *Service) simulate(ctx context.Context, f *feed, r *route, opts SimOptions, rng *rand.Rand) {
	defer close(f.done)

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	stepKm := opts.SpeedKmh * opts.Interval.Hours()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		r.step(stepKm)
		status := "moving"
		if r.arrived() {
			status = "arrived"
		}
		sample := domain.LocationSample{
			DeliveryID: f.DeliveryID,
			DriverID:   s.driverOf(f),
			Location:   r.position,
			Speed:      opts.SpeedKmh,
			Status:     status,
		}
		if !r.arrived() {
			sample.Location = jitter(rng, r.position, opts.JitterM)
		}
		if err := s.PublishLocation(ctx, sample); err != nil && ctx.Err() == nil {
			s.logger.Warn("simulated sample not published",
				logx.Int64("delivery_id", f.DeliveryID),
				logx.Err(err),
			)
		}

		if r.arrived() {
			s.finish(f)
			return
		}
	}
}

// driverOf reads the driver of a feed that may be rebound concurrently.
func (s *Service) driverOf(f *feed) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return f.DriverID
}

// finish ends a feed from inside its own goroutine. Whoever unregisters the feed
// publishes tracking_stopped.
func (s *Service) finish(f *feed) {
	s.mu.Lock()
	owned := s.feeds[f.DeliveryID] == f
	if owned {
		s.unregisterLocked(f)
	}
	s.mu.Unlock()

	if owned {
		f.cancel()
		s.stopped(f, "arrived")
	}
}

func (s *Service) stopped(f *feed, reason string) {
	s.bus.Publish(f.DeliveryID, domain.Event{
		Type:       domain.EventTrackingStopped,
		DeliveryID: f.DeliveryID,
		DriverID:   f.DriverID,
		Data:       map[string]string{"reason": reason},
		Timestamp:  s.now(),
	})
	s.logger.Info("tracking stopped",
		logx.String("event", "tracking_stopped"),
		logx.Int64("delivery_id", f.DeliveryID),
		logx.String("reason", reason),
	)
}
