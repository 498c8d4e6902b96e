package realtime

import "sync"

// Hub tracks every live session regardless of identity or room state. It
// exists for the one event that is not room-scoped: the online-users
// roster broadcast.
type Hub struct {
	mu       sync.Mutex
	sessions map[*Session]bool
}

func NewHub() *Hub {
	return &Hub{sessions: make(map[*Session]bool)}
}

func (h *Hub) Add(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s] = true
}

func (h *Hub) Remove(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, s)
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// BroadcastAll delivers payload to every session. Snapshot under the lock,
// deliver outside it.
func (h *Hub) BroadcastAll(payload []byte) {
	h.mu.Lock()
	targets := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		targets = append(targets, s)
	}
	h.mu.Unlock()

	for _, s := range targets {
		s.Deliver(payload)
	}
}
