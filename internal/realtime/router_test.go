package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"go-channel-chat/internal/apperr"
)

type fakeNames map[string]string

func (f fakeNames) DisplayName(_ context.Context, userID string) (string, error) {
	name, ok := f[userID]
	if !ok {
		return "", fmt.Errorf("user %s: %w", userID, apperr.ErrNotFound)
	}
	return name, nil
}

func newTestRouter(names fakeNames) *Router {
	log := zap.NewNop()
	return NewRouter(NewHub(), NewRegistry(), NewRoomSet(log), names, log)
}

func clientEvent(t *testing.T, event string, data any) []byte {
	t.Helper()
	rawData, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal event data: %v", err)
	}
	raw, err := json.Marshal(ClientEvent{Event: event, Data: rawData})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return raw
}

func recvEvent(t *testing.T, s *Session) ServerEvent {
	t.Helper()
	select {
	case raw := <-s.send:
		var ev ServerEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			t.Fatalf("unmarshal server event: %v", err)
		}
		return ev
	default:
		t.Fatal("no event queued")
		return ServerEvent{}
	}
}

func recvRoster(t *testing.T, s *Session) []RosterEntry {
	t.Helper()
	ev := recvEvent(t, s)
	if ev.Event != EventOnlineUsers {
		t.Fatalf("expected %s event, got %s", EventOnlineUsers, ev.Event)
	}
	raw, err := json.Marshal(ev.Data)
	if err != nil {
		t.Fatalf("remarshal roster: %v", err)
	}
	var roster []RosterEntry
	if err := json.Unmarshal(raw, &roster); err != nil {
		t.Fatalf("unmarshal roster: %v", err)
	}
	return roster
}

// connect attaches a session and drains the roster snapshot every new
// connection receives.
func connect(t *testing.T, rt *Router) *Session {
	t.Helper()
	s := newTestSession()
	rt.HandleConnect(s)
	recvEvent(t, s)
	return s
}

func TestRouterConnectDeliversRosterSnapshot(t *testing.T) {
	rt := newTestRouter(fakeNames{"1": "Ada"})

	first := connect(t, rt)
	rt.Dispatch(first, clientEvent(t, EventIdentify, IdentifyData{UserID: "1"}))
	recvEvent(t, first) // roster broadcast from the identify

	late := newTestSession()
	rt.HandleConnect(late)

	roster := recvRoster(t, late)
	if len(roster) != 1 || roster[0].UserID != "1" {
		t.Fatalf("late subscriber snapshot = %+v, want Ada online", roster)
	}
}

func TestRouterIdentifyBroadcastsRosterToAll(t *testing.T) {
	rt := newTestRouter(fakeNames{"1": "Ada"})

	a := connect(t, rt)
	b := connect(t, rt)

	rt.Dispatch(a, clientEvent(t, EventIdentify, IdentifyData{UserID: "1"}))

	for _, s := range []*Session{a, b} {
		roster := recvRoster(t, s)
		if len(roster) != 1 || roster[0].Name != "Ada" {
			t.Fatalf("roster = %+v, want [{1 Ada}]", roster)
		}
	}
}

func TestRouterIdentifyUnknownUserIgnored(t *testing.T) {
	rt := newTestRouter(fakeNames{})

	a := connect(t, rt)
	rt.Dispatch(a, clientEvent(t, EventIdentify, IdentifyData{UserID: "404"}))

	if _, _, ok := a.Identity(); ok {
		t.Fatal("session identified against unknown user")
	}
	if got := drained(a); got != 0 {
		t.Fatalf("unexpected %d events after ignored identify", got)
	}
}

func TestRouterRepeatedIdentifyCountsOnce(t *testing.T) {
	rt := newTestRouter(fakeNames{"1": "Ada"})

	a := connect(t, rt)
	rt.Dispatch(a, clientEvent(t, EventIdentify, IdentifyData{UserID: "1"}))
	rt.Dispatch(a, clientEvent(t, EventIdentify, IdentifyData{UserID: "1"}))
	drained(a)

	rt.HandleDisconnect(a)

	if got := rt.presence.Snapshot(); len(got) != 0 {
		t.Fatalf("stale presence entry after disconnect: %+v", got)
	}
}

func TestRouterTypingExcludesSender(t *testing.T) {
	rt := newTestRouter(fakeNames{})

	b := connect(t, rt)
	c := connect(t, rt)

	rt.Dispatch(b, clientEvent(t, EventJoinChannel, JoinChannelData{ChannelID: "general"}))
	rt.Dispatch(c, clientEvent(t, EventJoinChannel, JoinChannelData{ChannelID: "general"}))

	rt.Dispatch(b, clientEvent(t, EventTyping, TypingData{ChannelID: "general", Name: "Bea"}))

	ev := recvEvent(t, c)
	if ev.Event != EventTyping || ev.Data != "Bea" {
		t.Fatalf("c received %+v, want typing Bea", ev)
	}
	if got := drained(b); got != 0 {
		t.Fatalf("sender received its own typing echo (%d events)", got)
	}
}

func TestRouterStopTypingRelayed(t *testing.T) {
	rt := newTestRouter(fakeNames{})

	b := connect(t, rt)
	c := connect(t, rt)
	rt.Dispatch(b, clientEvent(t, EventJoinChannel, JoinChannelData{ChannelID: "general"}))
	rt.Dispatch(c, clientEvent(t, EventJoinChannel, JoinChannelData{ChannelID: "general"}))

	rt.Dispatch(b, clientEvent(t, EventStopTyping, TypingData{ChannelID: "general", Name: "Bea"}))

	ev := recvEvent(t, c)
	if ev.Event != EventStopTyping {
		t.Fatalf("expected %s, got %s", EventStopTyping, ev.Event)
	}
}

// send-message deliberately reaches the sender too; only typing events
// exclude their origin.
func TestRouterSendMessageIncludesSender(t *testing.T) {
	rt := newTestRouter(fakeNames{})

	b := connect(t, rt)
	c := connect(t, rt)
	rt.Dispatch(b, clientEvent(t, EventJoinChannel, JoinChannelData{ChannelID: "general"}))
	rt.Dispatch(c, clientEvent(t, EventJoinChannel, JoinChannelData{ChannelID: "general"}))

	msg := json.RawMessage(`{"id":7,"text":"hello"}`)
	rt.Dispatch(b, clientEvent(t, EventSendMessage, SendMessageData{ChannelID: "general", Message: msg}))

	for _, s := range []*Session{b, c} {
		ev := recvEvent(t, s)
		if ev.Event != EventNewMessage {
			t.Fatalf("expected %s, got %s", EventNewMessage, ev.Event)
		}
	}
}

func TestRouterSendMessageScopedToRoom(t *testing.T) {
	rt := newTestRouter(fakeNames{})

	inRoom := connect(t, rt)
	outside := connect(t, rt)
	rt.Dispatch(inRoom, clientEvent(t, EventJoinChannel, JoinChannelData{ChannelID: "general"}))

	msg := json.RawMessage(`{"id":1,"text":"hi"}`)
	rt.Dispatch(inRoom, clientEvent(t, EventSendMessage, SendMessageData{ChannelID: "general", Message: msg}))

	if got := drained(outside); got != 0 {
		t.Fatalf("session outside the room received %d events", got)
	}
}

func TestRouterJoinWhileAnonymous(t *testing.T) {
	rt := newTestRouter(fakeNames{})

	a := connect(t, rt)
	b := connect(t, rt)
	rt.Dispatch(a, clientEvent(t, EventJoinChannel, JoinChannelData{ChannelID: "general"}))
	rt.Dispatch(b, clientEvent(t, EventJoinChannel, JoinChannelData{ChannelID: "general"}))

	// Typing from an anonymous session still relays; the name comes from
	// the payload, not from presence.
	rt.Dispatch(a, clientEvent(t, EventTyping, TypingData{ChannelID: "general", Name: "guest"}))
	ev := recvEvent(t, b)
	if ev.Event != EventTyping {
		t.Fatalf("expected typing relay for anonymous sender, got %s", ev.Event)
	}
}

func TestRouterDisconnectBeforeIdentify(t *testing.T) {
	rt := newTestRouter(fakeNames{})

	a := connect(t, rt)
	witness := connect(t, rt)

	rt.HandleDisconnect(a)

	if got := rt.presence.Snapshot(); len(got) != 0 {
		t.Fatalf("presence mutated by anonymous disconnect: %+v", got)
	}
	// No roster broadcast either: the session never held a presence ref.
	if got := drained(witness); got != 0 {
		t.Fatalf("anonymous disconnect broadcast %d events", got)
	}
}

func TestRouterDisconnectIsIdempotent(t *testing.T) {
	rt := newTestRouter(fakeNames{"1": "Ada"})

	a := connect(t, rt)
	rt.Dispatch(a, clientEvent(t, EventIdentify, IdentifyData{UserID: "1"}))
	drained(a)

	rt.HandleDisconnect(a)
	rt.HandleDisconnect(a)

	if got := rt.presence.Snapshot(); len(got) != 0 {
		t.Fatalf("roster not empty after disconnects: %+v", got)
	}
}

func TestRouterTwoConnectionsOneUser(t *testing.T) {
	rt := newTestRouter(fakeNames{"1": "Ada"})

	first := connect(t, rt)
	second := connect(t, rt)
	witness := connect(t, rt)

	rt.Dispatch(first, clientEvent(t, EventIdentify, IdentifyData{UserID: "1"}))
	rt.Dispatch(second, clientEvent(t, EventIdentify, IdentifyData{UserID: "1"}))
	drained(first)
	drained(second)
	drained(witness)

	// First disconnect: Ada stays online and the roster is rebroadcast.
	rt.HandleDisconnect(first)
	roster := recvRoster(t, witness)
	if len(roster) != 1 || roster[0].UserID != "1" {
		t.Fatalf("roster after first disconnect = %+v, want Ada online", roster)
	}

	// Second disconnect: Ada goes offline.
	rt.HandleDisconnect(second)
	roster = recvRoster(t, witness)
	if len(roster) != 0 {
		t.Fatalf("roster after last disconnect = %+v, want empty", roster)
	}
}

func TestRouterDisconnectLeavesAllRooms(t *testing.T) {
	rt := newTestRouter(fakeNames{})

	a := connect(t, rt)
	witness := connect(t, rt)
	for _, room := range []string{"general", "random"} {
		rt.Dispatch(a, clientEvent(t, EventJoinChannel, JoinChannelData{ChannelID: room}))
		rt.Dispatch(witness, clientEvent(t, EventJoinChannel, JoinChannelData{ChannelID: room}))
	}

	rt.HandleDisconnect(a)

	msg := json.RawMessage(`{"id":1}`)
	rt.Dispatch(witness, clientEvent(t, EventSendMessage, SendMessageData{ChannelID: "general", Message: msg}))
	rt.Dispatch(witness, clientEvent(t, EventSendMessage, SendMessageData{ChannelID: "random", Message: msg}))

	if got := drained(a); got != 0 {
		t.Fatalf("disconnected session received %d events", got)
	}
}

func TestRouterMalformedEventIgnored(t *testing.T) {
	rt := newTestRouter(fakeNames{})
	a := connect(t, rt)

	rt.Dispatch(a, []byte("not json"))
	rt.Dispatch(a, clientEvent(t, "no-such-event", map[string]string{}))
	rt.Dispatch(a, []byte(`{"event":"typing","data":{"name":42}}`))

	if got := drained(a); got != 0 {
		t.Fatalf("malformed input produced %d events", got)
	}
}
