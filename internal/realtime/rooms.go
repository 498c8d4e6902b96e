package realtime

import (
	"sync"

	"go.uber.org/zap"
)

// RoomSet maps channel ids to their live subscriber sessions. It keeps a
// reverse index (session -> channels) so teardown removes a session from
// every room it joined without scanning all rooms. Live subscription is
// distinct from durable channel membership: joining a room here grants no
// access to stored history.
type RoomSet struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Session]bool
	joined map[*Session]map[string]bool
	log    *zap.Logger
}

func NewRoomSet(log *zap.Logger) *RoomSet {
	return &RoomSet{
		rooms:  make(map[string]map[*Session]bool),
		joined: make(map[*Session]map[string]bool),
		log:    log,
	}
}

// Join subscribes s to channelID. Idempotent.
func (rs *RoomSet) Join(channelID string, s *Session) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.rooms[channelID] == nil {
		rs.rooms[channelID] = make(map[*Session]bool)
	}
	rs.rooms[channelID][s] = true

	if rs.joined[s] == nil {
		rs.joined[s] = make(map[string]bool)
	}
	rs.joined[s][channelID] = true
}

// Leave unsubscribes s from channelID. Idempotent.
func (rs *RoomSet) Leave(channelID string, s *Session) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.leaveLocked(channelID, s)
}

// LeaveAll unsubscribes s from every room it joined. Called once per
// disconnect; safe against sessions that never joined anything.
func (rs *RoomSet) LeaveAll(s *Session) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	for channelID := range rs.joined[s] {
		rs.leaveLocked(channelID, s)
	}
}

func (rs *RoomSet) leaveLocked(channelID string, s *Session) {
	if members, ok := rs.rooms[channelID]; ok {
		delete(members, s)
		if len(members) == 0 {
			delete(rs.rooms, channelID)
		}
	}
	if channels, ok := rs.joined[s]; ok {
		delete(channels, channelID)
		if len(channels) == 0 {
			delete(rs.joined, s)
		}
	}
}

// Broadcast delivers payload to every subscriber of channelID except
// exclude (nil means no exclusion). The subscriber set is snapshotted
// under the read lock and delivery happens outside it, so a slow receiver
// never blocks joins and leaves. A failed delivery (dead or backed-up
// session) is logged and skipped; it never aborts the rest of the fan-out.
func (rs *RoomSet) Broadcast(channelID string, payload []byte, exclude *Session) {
	rs.mu.RLock()
	members := rs.rooms[channelID]
	targets := make([]*Session, 0, len(members))
	for s := range members {
		if s != exclude {
			targets = append(targets, s)
		}
	}
	rs.mu.RUnlock()

	for _, s := range targets {
		if !s.Deliver(payload) {
			rs.log.Warn("dropping event for unresponsive session",
				zap.String("session", s.ID),
				zap.String("channel", channelID))
		}
	}
}
