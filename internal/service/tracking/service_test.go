package tracking_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"service-dispatch/internal/apperr"
	"service-dispatch/internal/domain"
	"service-dispatch/internal/service/tracking"
	"service-dispatch/internal/storage/locations"
	testlog "service-dispatch/internal/testutil"
)

type recordingBus struct {
	mu     sync.Mutex
	events []domain.Event
	subs   map[int64]int
}

func (b *recordingBus) Publish(_ int64, ev domain.Event) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
	return 1
}

func (b *recordingBus) ActiveSubscriberCount(deliveryID int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subs[deliveryID]
}

func (b *recordingBus) count(t domain.EventType) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func (b *recordingBus) last() domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.events[len(b.events)-1]
}

type failingStore struct{ locations.Store }

func (failingStore) Save(context.Context, domain.LocationSample) error { return errors.New("disk full") }

func newTracker(t *testing.T) (*tracking.Service, *recordingBus, *locations.Memory) {
	t.Helper()
	bus := &recordingBus{subs: map[int64]int{}}
	store := locations.NewMemory()
	svc := tracking.NewService(store, bus, testlog.New().Logger(), tracking.Config{
		Interval: 5 * time.Millisecond,
		SpeedKmh: 3600,
	})
	t.Cleanup(svc.StopAll)
	return svc, bus, store
}

func TestPublishLocation_StoresAndBroadcasts(t *testing.T) {
	t.Parallel()
	svc, bus, _ := newTracker(t)
	ctx := context.Background()

	err := svc.PublishLocation(ctx, domain.LocationSample{
		DeliveryID: 1, DriverID: 2, Location: domain.Location{Lat: 10, Lng: 20}, Speed: 12,
	})
	require.NoError(t, err)

	latest, err := svc.LatestLocation(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 10.0, latest.Location.Lat)
	require.False(t, latest.Timestamp.IsZero(), "timestamp defaulted")

	require.Equal(t, 1, bus.count(domain.EventLocationUpdate))
	ev := bus.last()
	require.Equal(t, int64(1), ev.DeliveryID)
	payload, ok := ev.Data.(domain.LocationUpdate)
	require.True(t, ok)
	require.Equal(t, 20.0, payload.Lng)
}

func TestPublishLocation_Validation(t *testing.T) {
	t.Parallel()
	svc, bus, _ := newTracker(t)

	cases := []struct {
		name   string
		sample domain.LocationSample
	}{
		{"zero delivery", domain.LocationSample{Location: domain.Location{Lat: 1, Lng: 1}}},
		{"lat out of range", domain.LocationSample{DeliveryID: 1, Location: domain.Location{Lat: 91}}},
		{"lng out of range", domain.LocationSample{DeliveryID: 1, Location: domain.Location{Lng: -181}}},
		{"negative speed", domain.LocationSample{DeliveryID: 1, Speed: -1}},
	}
	for _, tc := range cases {
		err := svc.PublishLocation(context.Background(), tc.sample)
		require.ErrorIs(t, err, apperr.ErrInvalid, tc.name)
	}
	require.Equal(t, 0, bus.count(domain.EventLocationUpdate))
}

func TestPublishLocation_StoreErrorNotBroadcast(t *testing.T) {
	t.Parallel()
	bus := &recordingBus{}
	svc := tracking.NewService(failingStore{locations.NewMemory()}, bus, nil, tracking.Config{})

	err := svc.PublishLocation(context.Background(), domain.LocationSample{DeliveryID: 1})
	require.Error(t, err)
	require.Equal(t, 0, bus.count(domain.EventLocationUpdate))
}

func TestLatestLocation_NotFound(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTracker(t)

	_, err := svc.LatestLocation(context.Background(), 42)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestLocationHistory_Paging(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTracker(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, svc.PublishLocation(ctx, domain.LocationSample{
			DeliveryID: 3,
			Location:   domain.Location{Lat: float64(i)},
			Timestamp:  base.Add(time.Duration(i) * time.Second),
		}))
	}

	page, err := svc.LocationHistory(ctx, 3, 2, 2)
	require.NoError(t, err)
	require.Equal(t, int64(5), page.Total)
	require.Len(t, page.Items, 2)
	require.Equal(t, 2.0, page.Items[0].Location.Lat)
	require.Equal(t, 3.0, page.Items[1].Location.Lat)

	empty, err := svc.LocationHistory(ctx, 99, 1, 10)
	require.NoError(t, err)
	require.NotNil(t, empty.Items)
	require.Empty(t, empty.Items)

	for _, bad := range [][2]int{{0, 10}, {1, 0}, {1, tracking.MaxHistoryLimit + 1}} {
		_, err := svc.LocationHistory(ctx, 3, bad[0], bad[1])
		require.ErrorIs(t, err, apperr.ErrInvalid)
	}
}

func TestStartSimulation_ArrivesAndStopsOnce(t *testing.T) {
	t.Parallel()
	svc, bus, store := newTracker(t)
	seed := int64(1)

	origin := domain.Location{Lat: 55.75, Lng: 37.61}
	dest := domain.Location{Lat: 55.7505, Lng: 37.61}
	require.NoError(t, svc.StartSimulation(7, 1, 1, tracking.SimOptions{
		Origin: origin, Destination: dest, Seed: &seed,
	}))
	require.Equal(t, 1, svc.ActiveFeeds())

	require.Eventually(t, func() bool {
		return bus.count(domain.EventTrackingStopped) == 1
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, 0, svc.ActiveFeeds())

	latest, err := store.Latest(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, dest, latest.Location)
	require.Equal(t, "arrived", latest.Status)

	require.False(t, svc.StopTracking(7), "already stopped")
	require.Equal(t, 1, bus.count(domain.EventTrackingStopped))
}

func TestStartSimulation_Rejects(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTracker(t)
	ok := tracking.SimOptions{
		Origin:      domain.Location{Lat: 1, Lng: 1},
		Destination: domain.Location{Lat: 2, Lng: 2},
		Interval:    time.Hour,
	}

	bad := ok
	bad.Destination = domain.Location{Lat: 100}
	require.ErrorIs(t, svc.StartSimulation(1, 1, 1, bad), apperr.ErrInvalid)

	bad = ok
	bad.Waypoints = []domain.Location{{Lng: 200}}
	require.ErrorIs(t, svc.StartSimulation(1, 1, 1, bad), apperr.ErrInvalid)

	bad = ok
	bad.SpeedKmh = -5
	require.ErrorIs(t, svc.StartSimulation(1, 1, 1, bad), apperr.ErrInvalid)

	require.NoError(t, svc.StartSimulation(1, 1, 1, ok))
	require.ErrorIs(t, svc.StartSimulation(1, 2, 2, ok), apperr.ErrConflict)
}

func TestStopTracking_Idempotent(t *testing.T) {
	t.Parallel()
	svc, bus, _ := newTracker(t)

	require.False(t, svc.StopTracking(5))
	require.NoError(t, svc.StartSimulation(5, 1, 1, tracking.SimOptions{
		Origin:      domain.Location{Lat: 1, Lng: 1},
		Destination: domain.Location{Lat: 2, Lng: 2},
		Interval:    time.Hour,
	}))

	var wg sync.WaitGroup
	results := make(chan bool, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- svc.StopTracking(5)
		}()
	}
	wg.Wait()
	close(results)

	stopped := 0
	for r := range results {
		if r {
			stopped++
		}
	}
	require.Equal(t, 1, stopped)
	require.Equal(t, 1, bus.count(domain.EventTrackingStopped))
	_, ok := svc.ActiveFeed(5)
	require.False(t, ok)
}

func TestPassThrough_ReportDevice(t *testing.T) {
	t.Parallel()
	svc, bus, _ := newTracker(t)
	ctx := context.Background()
	report := tracking.DeviceReport{Location: domain.Location{Lat: 3, Lng: 4}, Speed: 20}

	require.ErrorIs(t, svc.ReportDevice(ctx, 9, report), apperr.ErrNotFound)

	require.NoError(t, svc.StartPassThrough(11, 9, 1))
	require.ErrorIs(t, svc.StartPassThrough(12, 9, 2), apperr.ErrConflict, "driver already reports")

	feed, ok := svc.ActiveFeed(11)
	require.True(t, ok)
	require.Equal(t, tracking.FeedPassThrough, feed.Kind)

	require.NoError(t, svc.ReportDevice(ctx, 9, report))
	latest, err := svc.LatestLocation(ctx, 11)
	require.NoError(t, err)
	require.Equal(t, int64(9), latest.DriverID)
	require.Equal(t, 1, bus.count(domain.EventLocationUpdate))

	require.True(t, svc.StopTracking(11))
	require.ErrorIs(t, svc.ReportDevice(ctx, 9, report), apperr.ErrNotFound)
	require.NoError(t, svc.StartPassThrough(12, 9, 2), "driver free again")
}

func TestRebind_PassThroughFollowsNewDriver(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTracker(t)
	ctx := context.Background()
	report := tracking.DeviceReport{Location: domain.Location{Lat: 3, Lng: 4}, Speed: 20}

	require.NoError(t, svc.StartPassThrough(11, 1, 7))

	rebound, err := svc.Rebind(11, 2, 8)
	require.NoError(t, err)
	require.True(t, rebound)

	feed, ok := svc.ActiveFeed(11)
	require.True(t, ok)
	require.Equal(t, int64(2), feed.DriverID)
	require.Equal(t, int64(8), feed.VehicleID)

	require.ErrorIs(t, svc.ReportDevice(ctx, 1, report), apperr.ErrNotFound, "old driver no longer reports")
	require.NoError(t, svc.ReportDevice(ctx, 2, report))
	latest, err := svc.LatestLocation(ctx, 11)
	require.NoError(t, err)
	require.Equal(t, int64(2), latest.DriverID)

	require.NoError(t, svc.StartPassThrough(12, 1, 9), "old driver is free for another feed")
}

func TestRebind_NoFeedAndConflict(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTracker(t)

	rebound, err := svc.Rebind(3, 1, 1)
	require.NoError(t, err)
	require.False(t, rebound)

	require.NoError(t, svc.StartPassThrough(4, 1, 1))
	require.NoError(t, svc.StartPassThrough(5, 2, 2))

	_, err = svc.Rebind(4, 2, 1)
	require.ErrorIs(t, err, apperr.ErrConflict)
	feed, _ := svc.ActiveFeed(4)
	require.Equal(t, int64(1), feed.DriverID, "failed rebind leaves the feed untouched")

	_, err = svc.Rebind(4, 0, 1)
	require.ErrorIs(t, err, apperr.ErrInvalid)
}

func TestRebind_SimulationStampsNewDriver(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTracker(t)
	ctx := context.Background()

	require.NoError(t, svc.StartSimulation(21, 1, 1, tracking.SimOptions{
		Origin:      domain.Location{Lat: 0, Lng: 0},
		Destination: domain.Location{Lat: 10, Lng: 10},
		SpeedKmh:    1,
	}))
	rebound, err := svc.Rebind(21, 2, 1)
	require.NoError(t, err)
	require.True(t, rebound)

	require.Eventually(t, func() bool {
		latest, err := svc.LatestLocation(ctx, 21)
		return err == nil && latest.DriverID == 2
	}, time.Second, 5*time.Millisecond)
}

func TestSubscribers_ReadsBus(t *testing.T) {
	t.Parallel()
	svc, bus, _ := newTracker(t)
	bus.subs[4] = 3

	require.Equal(t, 3, svc.Subscribers(4))
	require.Equal(t, 0, svc.Subscribers(5))
}
