package dispatch_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"service-dispatch/internal/apperr"
	"service-dispatch/internal/domain"
	"service-dispatch/internal/eventbus"
	"service-dispatch/internal/repository/memory"
	"service-dispatch/internal/service/dispatch"
	"service-dispatch/internal/service/tracking"
	"service-dispatch/internal/storage/locations"
)

type recordedEvent struct {
	channel string
	id      int64
	ev      domain.Event
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) Publish(deliveryID int64, ev domain.Event) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{"delivery", deliveryID, ev})
	return 1
}

func (p *recordingPublisher) PublishToDriver(driverID int64, ev domain.Event) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{"driver", driverID, ev})
	return 1
}

func (p *recordingPublisher) snapshot() []recordedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]recordedEvent(nil), p.events...)
}

type countingTracker struct {
	mu      sync.Mutex
	stopped map[int64]int
	rebound []int64
}

func (c *countingTracker) Rebind(deliveryID, _, _ int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rebound = append(c.rebound, deliveryID)
	return false, nil
}

func (c *countingTracker) StopTracking(deliveryID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped == nil {
		c.stopped = make(map[int64]int)
	}
	c.stopped[deliveryID]++
	return true
}

type fixture struct {
	store   *memory.Store
	svc     *dispatch.Service
	pub     *recordingPublisher
	tracker *countingTracker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	pub := &recordingPublisher{}
	tracker := &countingTracker{}
	svc := dispatch.NewService(dispatch.Deps{
		Deliveries: store,
		Resources:  store,
		Publisher:  pub,
		Tracker:    tracker,
	})
	return &fixture{store: store, svc: svc, pub: pub, tracker: tracker}
}

func (f *fixture) driver(t *testing.T, license string) int64 {
	t.Helper()
	id, err := f.store.CreateDriver(context.Background(), &domain.Driver{Name: "D", Phone: "+70000000000", LicenseNumber: license})
	require.NoError(t, err)
	return id
}

func (f *fixture) vehicle(t *testing.T, number string) int64 {
	t.Helper()
	id, err := f.store.CreateVehicle(context.Background(), &domain.Vehicle{Number: number, Type: domain.VehicleVan, Capacity: 100})
	require.NoError(t, err)
	return id
}

func (f *fixture) delivery(t *testing.T) int64 {
	t.Helper()
	d, err := f.svc.CreateDelivery(context.Background(), &domain.Delivery{
		CustomerName:    "Client",
		CustomerAddress: "Main st. 1",
		CustomerPhone:   "+70000000001",
		RequestedDate:   time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	return d.ID
}

func (f *fixture) available(t *testing.T, driverID, vehicleID int64) (bool, bool) {
	t.Helper()
	d, err := f.store.GetDriver(context.Background(), driverID)
	require.NoError(t, err)
	v, err := f.store.GetVehicle(context.Background(), vehicleID)
	require.NoError(t, err)
	return d.IsAvailable, v.IsAvailable
}

func TestLifecycle_AssignStartComplete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	d1, v1 := f.driver(t, "L-1"), f.vehicle(t, "V-1")
	id := f.delivery(t)

	a, err := f.svc.Assign(ctx, id, d1, v1)
	require.NoError(t, err)
	require.Equal(t, domain.StatusAssigned, a.Status)

	driverFree, vehicleFree := f.available(t, d1, v1)
	require.False(t, driverFree)
	require.False(t, vehicleFree)

	events := f.pub.snapshot()
	require.Len(t, events, 2)
	require.Equal(t, "delivery", events[0].channel)
	require.Equal(t, domain.EventStatusUpdate, events[0].ev.Type)
	require.Equal(t, "driver", events[1].channel)
	require.Equal(t, d1, events[1].id)
	require.Equal(t, domain.EventNotification, events[1].ev.Type)

	got, err := f.svc.GetAssignment(ctx, id)
	require.NoError(t, err)
	driver, ok := got.Driver.Entity()
	require.True(t, ok)
	require.Equal(t, d1, driver.ID)

	started, err := f.svc.Start(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.StatusOngoing, started.Status)
	require.NotNil(t, started.StartedAt)

	completed, err := f.svc.Complete(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)
	require.False(t, completed.AssignedAt.After(*completed.StartedAt))
	require.False(t, completed.StartedAt.After(*completed.CompletedAt))

	driverFree, vehicleFree = f.available(t, d1, v1)
	require.True(t, driverFree)
	require.True(t, vehicleFree)
	require.Equal(t, 1, f.tracker.stopped[id])

	_, err = f.svc.Cancel(ctx, id)
	require.ErrorIs(t, err, apperr.ErrPreconditionFailed)

	_, err = f.svc.RemoveAssignment(ctx, id)
	require.ErrorIs(t, err, apperr.ErrPreconditionFailed)
}

func TestLifecycle_ConcurrentAssignSameDriver(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	driverID := f.driver(t, "L-1")

	const n = 16
	deliveries := make([]int64, n)
	vehicles := make([]int64, n)
	for i := 0; i < n; i++ {
		deliveries[i] = f.delivery(t)
		vehicles[i] = f.vehicle(t, "V-"+string(rune('A'+i)))
	}

	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.Assign(ctx, deliveries[i], driverID, vehicles[i])
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
			continue
		}
		require.ErrorIs(t, err, apperr.ErrDriverUnavailable)
	}
	require.Equal(t, 1, wins)

	freeVehicles := 0
	for _, v := range vehicles {
		got, err := f.store.GetVehicle(ctx, v)
		require.NoError(t, err)
		if got.IsAvailable {
			freeVehicles++
		}
	}
	require.Equal(t, n-1, freeVehicles, "losing attempts must not hold a vehicle")
}

func TestLifecycle_VehicleConflictLeavesDriverFree(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	d1, d2, v1 := f.driver(t, "L-1"), f.driver(t, "L-2"), f.vehicle(t, "V-1")
	first, second := f.delivery(t), f.delivery(t)

	_, err := f.svc.Assign(ctx, first, d1, v1)
	require.NoError(t, err)

	_, err = f.svc.Assign(ctx, second, d2, v1)
	require.ErrorIs(t, err, apperr.ErrVehicleUnavailable)

	driver, err := f.store.GetDriver(ctx, d2)
	require.NoError(t, err)
	require.True(t, driver.IsAvailable)

	d, err := f.svc.Get(ctx, second)
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, d.Status)
}

func TestLifecycle_EditAssignmentSwapsOnlyChanged(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	d1, d2, v1 := f.driver(t, "L-1"), f.driver(t, "L-2"), f.vehicle(t, "V-1")
	id := f.delivery(t)

	_, err := f.svc.Assign(ctx, id, d1, v1)
	require.NoError(t, err)

	a, err := f.svc.EditAssignment(ctx, id, d2, v1)
	require.NoError(t, err)
	require.Equal(t, d2, a.Driver.ID())
	require.Equal(t, v1, a.Vehicle.ID())

	old, err := f.store.GetDriver(ctx, d1)
	require.NoError(t, err)
	require.True(t, old.IsAvailable)

	cur, err := f.store.GetDriver(ctx, d2)
	require.NoError(t, err)
	require.False(t, cur.IsAvailable)

	v, err := f.store.GetVehicle(ctx, v1)
	require.NoError(t, err)
	require.False(t, v.IsAvailable)

	f.tracker.mu.Lock()
	defer f.tracker.mu.Unlock()
	require.Equal(t, []int64{id}, f.tracker.rebound)
}

func TestLifecycle_RemoveAssignmentIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	d1, v1 := f.driver(t, "L-1"), f.vehicle(t, "V-1")
	id := f.delivery(t)

	_, err := f.svc.Assign(ctx, id, d1, v1)
	require.NoError(t, err)
	_, err = f.svc.Start(ctx, id)
	require.NoError(t, err)

	d, err := f.svc.RemoveAssignment(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, d.Status)
	require.True(t, d.Driver.IsZero())
	require.Nil(t, d.AssignedAt)
	require.Nil(t, d.StartedAt)

	again, err := f.svc.RemoveAssignment(ctx, id)
	require.NoError(t, err)
	require.Equal(t, *d, *again)

	driverFree, vehicleFree := f.available(t, d1, v1)
	require.True(t, driverFree)
	require.True(t, vehicleFree)
	require.Equal(t, 1, f.tracker.stopped[id])

	_, err = f.svc.Assign(ctx, id, d1, v1)
	require.NoError(t, err, "an unassigned delivery can be assigned again")
}

func TestLifecycle_CancelReleasesResources(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	d1, v1 := f.driver(t, "L-1"), f.vehicle(t, "V-1")
	id := f.delivery(t)

	_, err := f.svc.Assign(ctx, id, d1, v1)
	require.NoError(t, err)

	d, err := f.svc.UpdateStatus(ctx, id, domain.StatusCancelled, "customer left")
	require.NoError(t, err)
	require.Equal(t, domain.StatusCancelled, d.Status)

	driverFree, vehicleFree := f.available(t, d1, v1)
	require.True(t, driverFree)
	require.True(t, vehicleFree)

	last := f.pub.snapshot()
	var sawNotes bool
	for _, e := range last {
		if su, ok := e.ev.Data.(domain.StatusUpdate); ok && su.Status == domain.StatusCancelled {
			sawNotes = su.Notes == "customer left"
		}
	}
	require.True(t, sawNotes)
}

func TestLifecycle_DeleteReleasesFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	d1, v1 := f.driver(t, "L-1"), f.vehicle(t, "V-1")
	id := f.delivery(t)

	_, err := f.svc.Assign(ctx, id, d1, v1)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteDelivery(ctx, id))

	driverFree, vehicleFree := f.available(t, d1, v1)
	require.True(t, driverFree)
	require.True(t, vehicleFree)

	_, err = f.svc.Get(ctx, id)
	require.ErrorIs(t, err, apperr.ErrNotFound)
	require.ErrorIs(t, f.svc.DeleteDelivery(ctx, id), apperr.ErrNotFound)
}

func TestLifecycle_CancelByOrderID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)

	d, err := f.svc.CreateDelivery(ctx, &domain.Delivery{
		OrderID:         "ext-42",
		CustomerName:    "Client",
		CustomerAddress: "Main st. 1",
		CustomerPhone:   "+70000000001",
		RequestedDate:   time.Now(),
	})
	require.NoError(t, err)

	cancelled, err := f.svc.CancelByOrderID(ctx, "ext-42")
	require.NoError(t, err)
	require.Equal(t, d.ID, cancelled.ID)
	require.Equal(t, domain.StatusCancelled, cancelled.Status)

	_, err = f.svc.CreateDelivery(ctx, &domain.Delivery{
		OrderID:         "ext-42",
		CustomerName:    "Client",
		CustomerAddress: "Main st. 1",
		CustomerPhone:   "+70000000001",
		RequestedDate:   time.Now(),
	})
	require.ErrorIs(t, err, apperr.ErrConflict)
}

// blockingSub never finishes a write until release is closed.
type blockingSub struct {
	id      string
	release chan struct{}
}

func (b *blockingSub) ID() string { return b.id }

func (b *blockingSub) Send(domain.Event) error {
	<-b.release
	return nil
}

func newLiveFixture(t *testing.T) (*fixture, *eventbus.Bus, *tracking.Service) {
	t.Helper()
	store := memory.NewStore()
	bus := eventbus.New(nil, nil, nil)
	tracker := tracking.NewService(locations.NewMemory(), bus, nil, tracking.Config{})
	t.Cleanup(func() {
		tracker.StopAll()
		bus.Close()
	})
	svc := dispatch.NewService(dispatch.Deps{
		Deliveries: store,
		Resources:  store,
		Publisher:  bus,
		Tracker:    tracker,
	})
	return &fixture{store: store, svc: svc}, bus, tracker
}

func TestLifecycle_AssignDoesNotWaitForSubscribers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f, bus, _ := newLiveFixture(t)
	d1, v1 := f.driver(t, "L-1"), f.vehicle(t, "V-1")
	id := f.delivery(t)

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	bus.Subscribe(id, &blockingSub{id: "watcher", release: release})
	bus.SubscribeDriver(d1, &blockingSub{id: "driver-app", release: release})

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Assign(ctx, id, d1, v1)
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("assign waited for a stalled subscriber")
	}
}

func TestLifecycle_EditAssignmentRebindsTracking(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f, _, tracker := newLiveFixture(t)
	d1, d2, v1 := f.driver(t, "L-1"), f.driver(t, "L-2"), f.vehicle(t, "V-1")
	id := f.delivery(t)
	report := tracking.DeviceReport{Location: domain.Location{Lat: 1, Lng: 2}}

	_, err := f.svc.Assign(ctx, id, d1, v1)
	require.NoError(t, err)
	require.NoError(t, tracker.StartPassThrough(id, d1, v1))

	_, err = f.svc.EditAssignment(ctx, id, d2, v1)
	require.NoError(t, err)

	feed, ok := tracker.ActiveFeed(id)
	require.True(t, ok)
	require.Equal(t, d2, feed.DriverID)
	require.ErrorIs(t, tracker.ReportDevice(ctx, d1, report), apperr.ErrNotFound)
	require.NoError(t, tracker.ReportDevice(ctx, d2, report))

	latest, err := tracker.LatestLocation(ctx, id)
	require.NoError(t, err)
	require.Equal(t, d2, latest.DriverID)
}

func TestLifecycle_EditAssignmentStopsFeedThatCannotFollow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f, _, tracker := newLiveFixture(t)
	d1, d2, v1 := f.driver(t, "L-1"), f.driver(t, "L-2"), f.vehicle(t, "V-1")
	id := f.delivery(t)

	_, err := f.svc.Assign(ctx, id, d1, v1)
	require.NoError(t, err)
	require.NoError(t, tracker.StartPassThrough(id, d1, v1))
	// a stale feed still routes d2's device elsewhere
	require.NoError(t, tracker.StartPassThrough(id+100, d2, v1))

	_, err = f.svc.EditAssignment(ctx, id, d2, v1)
	require.NoError(t, err)

	_, ok := tracker.ActiveFeed(id)
	require.False(t, ok)
}
