package eventbus

import (
	"sync"
	"sync/atomic"

	"service-dispatch/internal/domain"
	"service-dispatch/internal/logx"
)

// mailbox is the outbound queue of one subscriber, drained by its own writer goroutine.
// A full queue or a failed Send marks it dead; channels prune it on their next publish.
type mailbox struct {
	id     string
	sub    Subscriber
	queue  chan domain.Event
	stop   chan struct{}
	once   sync.Once
	dead   atomic.Bool
	logger logx.Logger
}

func newMailbox(sub Subscriber, size int, logger logx.Logger) *mailbox {
	return &mailbox{
		id:     sub.ID(),
		sub:    sub,
		queue:  make(chan domain.Event, size),
		stop:   make(chan struct{}),
		logger: logger,
	}
}

// offer queues ev without blocking. It returns false when the subscriber is dead or too slow.
func (m *mailbox) offer(ev domain.Event) bool {
	if m.isDead() {
		return false
	}
	select {
	case m.queue <- ev:
		return true
	default:
		m.logger.Warn("subscriber queue full",
			logx.String("subscriber", m.id),
			logx.String("type", string(ev.Type)),
		)
		m.kill()
		return false
	}
}

func (m *mailbox) run() {
	for {
		select {
		case <-m.stop:
			return
		case ev := <-m.queue:
			if err := m.sub.Send(ev); err != nil {
				m.logger.Warn("subscriber send failed",
					logx.String("subscriber", m.id),
					logx.String("type", string(ev.Type)),
					logx.Err(err),
				)
				m.kill()
				return
			}
		}
	}
}

func (m *mailbox) kill() {
	m.once.Do(func() {
		m.dead.Store(true)
		close(m.stop)
	})
}

func (m *mailbox) isDead() bool { return m.dead.Load() }
