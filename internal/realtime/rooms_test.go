package realtime

import (
	"testing"

	"go.uber.org/zap"
)

// newTestSession builds a session with no socket behind it; Deliver only
// touches the send buffer.
func newTestSession() *Session {
	return NewSession(nil, zap.NewNop())
}

func drained(s *Session) int {
	n := 0
	for {
		select {
		case <-s.send:
			n++
		default:
			return n
		}
	}
}

func TestRoomSetBroadcastReachesSubscribers(t *testing.T) {
	rs := NewRoomSet(zap.NewNop())
	a := newTestSession()
	b := newTestSession()

	rs.Join("general", a)
	rs.Join("general", b)

	rs.Broadcast("general", []byte("hi"), nil)

	if got := drained(a); got != 1 {
		t.Errorf("a received %d events, want 1", got)
	}
	if got := drained(b); got != 1 {
		t.Errorf("b received %d events, want 1", got)
	}
}

func TestRoomSetJoinIsIdempotent(t *testing.T) {
	rs := NewRoomSet(zap.NewNop())
	a := newTestSession()

	rs.Join("general", a)
	rs.Join("general", a)

	rs.Broadcast("general", []byte("hi"), nil)

	if got := drained(a); got != 1 {
		t.Fatalf("double join caused %d deliveries, want 1", got)
	}
}

func TestRoomSetBroadcastExcludesSender(t *testing.T) {
	rs := NewRoomSet(zap.NewNop())
	sender := newTestSession()
	other := newTestSession()

	rs.Join("general", sender)
	rs.Join("general", other)

	rs.Broadcast("general", []byte("typing"), sender)

	if got := drained(sender); got != 0 {
		t.Errorf("sender received %d events, want 0", got)
	}
	if got := drained(other); got != 1 {
		t.Errorf("other received %d events, want 1", got)
	}
}

func TestRoomSetLeaveIsIdempotent(t *testing.T) {
	rs := NewRoomSet(zap.NewNop())
	a := newTestSession()

	rs.Leave("general", a)
	rs.Join("general", a)
	rs.Leave("general", a)
	rs.Leave("general", a)

	rs.Broadcast("general", []byte("hi"), nil)
	if got := drained(a); got != 0 {
		t.Fatalf("left session received %d events", got)
	}
}

func TestRoomSetLeaveAllRemovesEveryRoom(t *testing.T) {
	rs := NewRoomSet(zap.NewNop())
	a := newTestSession()
	witness := newTestSession()

	rooms := []string{"general", "random", "dev"}
	for _, room := range rooms {
		rs.Join(room, a)
		rs.Join(room, witness)
	}

	rs.LeaveAll(a)

	for _, room := range rooms {
		rs.Broadcast(room, []byte("hi"), nil)
	}

	if got := drained(a); got != 0 {
		t.Errorf("session received %d events after LeaveAll", got)
	}
	if got := drained(witness); got != len(rooms) {
		t.Errorf("witness received %d events, want %d", got, len(rooms))
	}

	// LeaveAll on a session with no rooms is a no-op.
	rs.LeaveAll(a)
}

func TestRoomSetBroadcastIsolatesDeadSubscriber(t *testing.T) {
	rs := NewRoomSet(zap.NewNop())
	dead := newTestSession()
	alive := newTestSession()

	rs.Join("general", dead)
	rs.Join("general", alive)

	dead.Close()

	rs.Broadcast("general", []byte("hi"), nil)

	if got := drained(alive); got != 1 {
		t.Fatalf("delivery to dead session aborted fan-out: alive got %d events", got)
	}
}

func TestRoomSetBroadcastSkipsBackedUpSubscriber(t *testing.T) {
	rs := NewRoomSet(zap.NewNop())
	backedUp := &Session{ID: "slow", send: make(chan []byte), done: make(chan struct{}), log: zap.NewNop()}
	alive := newTestSession()

	rs.Join("general", backedUp)
	rs.Join("general", alive)

	// Unbuffered channel with no write pump: delivery cannot succeed and
	// must not block or abort the rest of the room.
	rs.Broadcast("general", []byte("hi"), nil)

	if got := drained(alive); got != 1 {
		t.Fatalf("backed-up session blocked fan-out: alive got %d events", got)
	}
}

func TestRoomSetBroadcastUnknownRoom(t *testing.T) {
	rs := NewRoomSet(zap.NewNop())
	rs.Broadcast("nowhere", []byte("hi"), nil)
}
