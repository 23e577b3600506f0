// Package eventbus fans events out to live subscribers grouped in channels.
// A channel is either the watchers of one delivery or the private channel of one driver.
package eventbus

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"service-dispatch/internal/domain"
	"service-dispatch/internal/logx"
)

// DefaultQueueSize is the number of events buffered per subscriber.
const DefaultQueueSize = 64

// Subscriber is a live connection that can receive events.
// The bus calls Send from one writer goroutine per subscriber; a non-nil error marks it as dead.
type Subscriber interface {
	ID() string
	Send(ev domain.Event) error
}

type scope uint8

const (
	scopeDelivery scope = iota + 1
	scopeDriver
)

func (s scope) String() string {
	if s == scopeDriver {
		return "driver"
	}
	return "delivery"
}

type key struct {
	scope scope
	id    int64
}

// channel enqueueing is serialized by sendMu so every subscriber sees publish order.
// subs is guarded by Bus.mu.
type channel struct {
	sendMu sync.Mutex
	subs   map[string]*mailbox
}

// Bus is the process-wide subscription registry.
type Bus struct {
	mu       sync.Mutex
	channels map[key]*channel
	boxes    map[string]*mailbox

	logger    logx.Logger
	published *prometheus.CounterVec
	pruned    prometheus.Counter
	queueSize int
	now       func() time.Time
}

// Option configures a Bus.
type Option func(*Bus)

// WithQueueSize sets how many events may wait for one subscriber before it is considered dead.
func WithQueueSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

// New creates an empty Bus. Metrics may be nil.
func New(logger logx.Logger, published *prometheus.CounterVec, pruned prometheus.Counter, opts ...Option) *Bus {
	if logger == nil {
		logger = logx.Nop()
	}
	b := &Bus{
		channels:  make(map[key]*channel),
		boxes:     make(map[string]*mailbox),
		logger:    logger,
		published: published,
		pruned:    pruned,
		queueSize: DefaultQueueSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe adds sub to the watchers of a delivery and acks it with subscribed.
// Subscribing twice is a no-op apart from the ack.
func (b *Bus) Subscribe(deliveryID int64, sub Subscriber) {
	b.subscribe(key{scopeDelivery, deliveryID}, sub)
}

// Unsubscribe removes sub from the watchers of a delivery and acks it with unsubscribed.
func (b *Bus) Unsubscribe(deliveryID int64, sub Subscriber) {
	b.unsubscribe(key{scopeDelivery, deliveryID}, sub)
}

// SubscribeDriver adds sub to the private channel of a driver.
func (b *Bus) SubscribeDriver(driverID int64, sub Subscriber) {
	b.subscribe(key{scopeDriver, driverID}, sub)
}

// UnsubscribeDriver removes sub from the private channel of a driver.
func (b *Bus) UnsubscribeDriver(driverID int64, sub Subscriber) {
	b.unsubscribe(key{scopeDriver, driverID}, sub)
}

// Publish queues ev for every watcher of the delivery and returns how many accepted it.
// It never waits for a subscriber to write.
func (b *Bus) Publish(deliveryID int64, ev domain.Event) int {
	return b.publish(key{scopeDelivery, deliveryID}, ev)
}

// PublishToDriver queues ev for the private channel of a driver.
func (b *Bus) PublishToDriver(driverID int64, ev domain.Event) int {
	return b.publish(key{scopeDriver, driverID}, ev)
}

// Drop removes sub from every channel and stops its writer. Used when its connection is gone.
func (b *Bus) Drop(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for k, ch := range b.channels {
		delete(ch.subs, sub.ID())
		b.dropIfEmptyLocked(k, ch)
	}
	if m, ok := b.boxes[sub.ID()]; ok {
		delete(b.boxes, sub.ID())
		m.kill()
	}
}

// Close stops every writer. Events still queued are discarded.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, m := range b.boxes {
		delete(b.boxes, id)
		m.kill()
	}
	b.channels = make(map[key]*channel)
}

// ActiveSubscriberCount returns the number of watchers of a delivery.
func (b *Bus) ActiveSubscriberCount(deliveryID int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.channels[key{scopeDelivery, deliveryID}]; ok {
		return len(ch.subs)
	}
	return 0
}

// Subscriptions returns the number of subscriptions across all channels.
func (b *Bus) Subscriptions() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, ch := range b.channels {
		n += len(ch.subs)
	}
	return n
}

func (b *Bus) subscribe(k key, sub Subscriber) {
	for {
		b.mu.Lock()
		ch, ok := b.channels[k]
		if !ok {
			ch = &channel{subs: make(map[string]*mailbox)}
			b.channels[k] = ch
		}
		b.mu.Unlock()

		// the ack is queued before any event published after the subscription
		ch.sendMu.Lock()
		b.mu.Lock()
		if b.channels[k] != ch {
			b.mu.Unlock()
			ch.sendMu.Unlock()
			continue
		}
		m := b.mailboxLocked(sub)
		ch.subs[sub.ID()] = m
		b.mu.Unlock()

		ok = m.offer(b.ack(domain.EventSubscribed, k))
		ch.sendMu.Unlock()

		if !ok {
			b.remove(k, ch, []*mailbox{m})
			return
		}
		b.logger.Debug("subscribed",
			logx.String("channel", k.scope.String()),
			logx.Int64("id", k.id),
			logx.String("subscriber", sub.ID()),
		)
		return
	}
}

func (b *Bus) unsubscribe(k key, sub Subscriber) {
	b.mu.Lock()
	if ch, ok := b.channels[k]; ok {
		delete(ch.subs, sub.ID())
		b.dropIfEmptyLocked(k, ch)
	}
	m := b.mailboxLocked(sub)
	b.mu.Unlock()

	// the caller is told even when it was not subscribed
	m.offer(b.ack(domain.EventUnsubscribed, k))
}

func (b *Bus) publish(k key, ev domain.Event) int {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = b.now()
	}
	if b.published != nil {
		b.published.WithLabelValues(string(ev.Type)).Inc()
	}

	b.mu.Lock()
	ch, ok := b.channels[k]
	b.mu.Unlock()
	if !ok {
		return 0
	}

	ch.sendMu.Lock()
	b.mu.Lock()
	snapshot := make([]*mailbox, 0, len(ch.subs))
	for _, m := range ch.subs {
		snapshot = append(snapshot, m)
	}
	b.mu.Unlock()
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].id < snapshot[j].id })

	var (
		delivered int
		dead      []*mailbox
	)
	for _, m := range snapshot {
		if !m.offer(ev) {
			dead = append(dead, m)
			continue
		}
		delivered++
	}
	ch.sendMu.Unlock()

	if len(dead) > 0 {
		b.remove(k, ch, dead)
	}
	return delivered
}

// mailboxLocked returns the live mailbox of sub, starting a writer when there is none.
func (b *Bus) mailboxLocked(sub Subscriber) *mailbox {
	if m, ok := b.boxes[sub.ID()]; ok && m.sub == sub && !m.isDead() {
		return m
	}
	m := newMailbox(sub, b.queueSize, b.logger)
	b.boxes[sub.ID()] = m
	go m.run()
	return m
}

// remove prunes dead mailboxes from ch only if they are still the registered instances.
func (b *Bus) remove(k key, ch *channel, dead []*mailbox) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, m := range dead {
		if cur, ok := ch.subs[m.id]; ok && cur == m {
			delete(ch.subs, m.id)
			b.logger.Warn("subscriber pruned",
				logx.String("channel", k.scope.String()),
				logx.Int64("id", k.id),
				logx.String("subscriber", m.id),
			)
			if b.pruned != nil {
				b.pruned.Inc()
			}
		}
		if b.boxes[m.id] == m {
			delete(b.boxes, m.id)
		}
	}
	b.dropIfEmptyLocked(k, ch)
}

func (b *Bus) dropIfEmptyLocked(k key, ch *channel) {
	if len(ch.subs) == 0 && b.channels[k] == ch {
		delete(b.channels, k)
	}
}

func (b *Bus) ack(t domain.EventType, k key) domain.Event {
	ev := domain.Event{Type: t, Timestamp: b.now()}
	if k.scope == scopeDriver {
		ev.DriverID = k.id
	} else {
		ev.DeliveryID = k.id
	}
	return ev
}
