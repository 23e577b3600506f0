package locations

import (
	"context"
	"sort"
	"sync"

	"service-dispatch/internal/domain"
)

// Memory is a process-local Store.
type Memory struct {
	mu      sync.RWMutex
	samples map[int64][]domain.LocationSample
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{samples: make(map[int64][]domain.LocationSample)}
}

// Save appends s keeping the trail ordered by timestamp.
func (m *Memory) Save(_ context.Context, s domain.LocationSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	trail := append(m.samples[s.DeliveryID], s)
	if n := len(trail); n > 1 && trail[n-1].Timestamp.Before(trail[n-2].Timestamp) {
		sort.SliceStable(trail, func(i, j int) bool { return trail[i].Timestamp.Before(trail[j].Timestamp) })
	}
	m.samples[s.DeliveryID] = trail
	return nil
}

// Latest returns the newest sample or nil.
func (m *Memory) Latest(_ context.Context, deliveryID int64) (*domain.LocationSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	trail := m.samples[deliveryID]
	if len(trail) == 0 {
		return nil, nil
	}
	s := trail[len(trail)-1]
	return &s, nil
}

// History returns one page of the trail.
func (m *Memory) History(_ context.Context, deliveryID int64, page, limit int) (domain.LocationPage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	trail := m.samples[deliveryID]
	out := domain.LocationPage{Page: page, Limit: limit, Total: int64(len(trail)), Items: []domain.LocationSample{}}
	from := (page - 1) * limit
	if from >= len(trail) {
		return out, nil
	}
	to := from + limit
	if to > len(trail) {
		to = len(trail)
	}
	out.Items = append(out.Items, trail[from:to]...)
	return out, nil
}
