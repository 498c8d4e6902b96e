package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 4096                // Maximum event size allowed from peer.

	sendBuffer = 256
)

// Session is one live connection. The transport owns the socket; all
// presence and room state keyed on the session is mutated only through the
// Router. A session is Anonymous until its first identify event and the
// transition is one-way.
type Session struct {
	ID   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	log  *zap.Logger

	closeOnce sync.Once

	mu         sync.Mutex
	userID     string
	name       string
	identified bool
}

func NewSession(conn *websocket.Conn, log *zap.Logger) *Session {
	return &Session{
		ID:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
		log:  log,
	}
}

// Identify records the resolved identity. Only the first identify takes
// effect; later ones report false and are ignored by the router.
func (s *Session) Identify(userID, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identified {
		return false
	}
	s.userID = userID
	s.name = name
	s.identified = true
	return true
}

// Identity returns the identify-time identity, if any.
func (s *Session) Identity() (userID, name string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID, s.name, s.identified
}

// Deliver queues payload for the write pump without blocking. It reports
// false when the session is closed or its buffer is full; the caller
// decides whether that matters.
func (s *Session) Deliver(payload []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- payload:
		return true
	default:
		return false
	}
}

// Close marks the session dead and reports whether this call was the one
// that did it. The send channel is never closed; the write pump exits via
// done, so concurrent Deliver calls cannot panic on a closed channel.
func (s *Session) Close() bool {
	first := false
	s.closeOnce.Do(func() {
		close(s.done)
		first = true
	})
	return first
}

// ReadPump pumps events from the socket into the router. It runs in its
// own goroutine, which gives per-connection ordering for free: a
// connection's events are dispatched strictly in arrival order.
func (s *Session) ReadPump(router *Router) {
	defer func() {
		router.HandleDisconnect(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.Warn("websocket read failed", zap.String("session", s.ID), zap.Error(err))
			}
			break
		}
		router.Dispatch(s, raw)
	}
}

// WritePump pumps queued events to the socket and keeps the connection
// alive with pings.
func (s *Session) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case payload := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := s.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(payload)

			// Drain anything already queued in one writer to cut
			// syscalls.
			n := len(s.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-s.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
