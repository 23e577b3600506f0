package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"service-dispatch/internal/domain"
)

// ErrClosed is returned by Send after the session was closed.
var ErrClosed = errors.New("ws: session closed")

// Session is one websocket connection. Writes are serialised.
type Session struct {
	id           string
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

func newSession(conn *websocket.Conn, writeTimeout time.Duration) *Session {
	return &Session{id: uuid.NewString(), conn: conn, writeTimeout: writeTimeout}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Send writes one event as a JSON text frame.
func (s *Session) Send(ev domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.writeTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	return s.conn.WriteJSON(ev)
}

func (s *Session) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeTimeout))
}

// goingAway sends a close frame and closes the connection, which ends the read loop.
func (s *Session) goingAway() {
	s.mu.Lock()
	if !s.closed {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), time.Now().Add(s.writeTimeout))
	}
	s.mu.Unlock()
	s.close()
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	_ = s.conn.Close()
}
