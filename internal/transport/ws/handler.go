package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"service-dispatch/internal/domain"
	"service-dispatch/internal/eventbus"
	"service-dispatch/internal/logx"
)

// Client frame actions.
const (
	ActionSubscribe         = "subscribe"
	ActionUnsubscribe       = "unsubscribe"
	ActionSubscribeDriver   = "subscribe_driver"
	ActionUnsubscribeDriver = "unsubscribe_driver"
)

const (
	maxFrameSize = 4 << 10
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
)

// Bus is the subscription side of the event bus.
type Bus interface {
	Subscribe(deliveryID int64, sub eventbus.Subscriber)
	Unsubscribe(deliveryID int64, sub eventbus.Subscriber)
	SubscribeDriver(driverID int64, sub eventbus.Subscriber)
	UnsubscribeDriver(driverID int64, sub eventbus.Subscriber)
	Drop(sub eventbus.Subscriber)
}

type frame struct {
	Action     string `json:"action"`
	DeliveryID int64  `json:"delivery_id"`
	DriverID   int64  `json:"driver_id"`
}

// Handler upgrades HTTP requests and serves subscriber sessions.
type Handler struct {
	bus          Bus
	logger       logx.Logger
	writeTimeout time.Duration
	upgrader     websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewHandler creates a websocket handler.
func NewHandler(bus Bus, logger logx.Logger, writeTimeout time.Duration) *Handler {
	if logger == nil {
		logger = logx.Nop()
	}
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &Handler{
		bus:          bus,
		logger:       logger,
		writeTimeout: writeTimeout,
		sessions:     make(map[string]*Session),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and blocks until the client goes away.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", logx.Err(err))
		return
	}

	sess := newSession(conn, h.writeTimeout)
	if !h.track(sess) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), time.Now().Add(time.Second))
		sess.close()
		return
	}
	log := h.logger.With(logx.String("session_id", sess.ID()))
	log.Debug("ws connected", logx.String("remote", r.RemoteAddr))

	done := make(chan struct{})
	go h.keepAlive(sess, done)

	defer func() {
		close(done)
		h.untrack(sess)
		h.bus.Drop(sess)
		sess.close()
		log.Debug("ws disconnected")
	}()

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("ws read failed", logx.Err(err))
			}
			return
		}
		if err := h.handleFrame(sess, data); err != nil {
			log.Debug("ws write failed", logx.Err(err))
			return
		}
	}
}

// Sessions returns the number of open sessions.
func (h *Handler) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Close closes every open session and refuses new ones. http.Server.Shutdown does not
// touch hijacked connections, so the server calls this from RegisterOnShutdown.
func (h *Handler) Close() {
	h.mu.Lock()
	h.closed = true
	open := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		open = append(open, s)
	}
	h.mu.Unlock()

	for _, s := range open {
		s.goingAway()
	}
	if len(open) > 0 {
		h.logger.Info("ws sessions closed", logx.Int("count", len(open)))
	}
}

func (h *Handler) track(s *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.sessions[s.ID()] = s
	return true
}

func (h *Handler) untrack(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, s.ID())
}

func (h *Handler) handleFrame(sess *Session, data []byte) error {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return sess.Send(errorEvent("malformed frame"))
	}

	switch f.Action {
	case ActionSubscribe, ActionUnsubscribe:
		if f.DeliveryID <= 0 {
			return sess.Send(errorEvent("delivery_id must be positive"))
		}
		if f.Action == ActionSubscribe {
			h.bus.Subscribe(f.DeliveryID, sess)
		} else {
			h.bus.Unsubscribe(f.DeliveryID, sess)
		}
	case ActionSubscribeDriver, ActionUnsubscribeDriver:
		if f.DriverID <= 0 {
			return sess.Send(errorEvent("driver_id must be positive"))
		}
		if f.Action == ActionSubscribeDriver {
			h.bus.SubscribeDriver(f.DriverID, sess)
		} else {
			h.bus.UnsubscribeDriver(f.DriverID, sess)
		}
	default:
		return sess.Send(errorEvent("unknown action"))
	}
	return nil
}

func (h *Handler) keepAlive(sess *Session, done <-chan struct{}) {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			if err := sess.ping(); err != nil {
				return
			}
		}
	}
}

func errorEvent(msg string) domain.Event {
	return domain.Event{
		Type:      domain.EventError,
		Data:      map[string]string{"message": msg},
		Timestamp: time.Now().UTC(),
	}
}
