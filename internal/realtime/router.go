package realtime

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
)

// NameResolver is what the router needs from the identity side: a display
// name for the opaque user id carried by an identify event.
type NameResolver interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// Router applies inbound connection events to the presence registry and
// room set, then fans out the resulting events. It never validates or
// persists messages; the send-message event relays a message that the REST
// write path already stored.
type Router struct {
	hub      *Hub
	presence *Registry
	rooms    *RoomSet
	names    NameResolver
	log      *zap.Logger
}

func NewRouter(hub *Hub, presence *Registry, rooms *RoomSet, names NameResolver, log *zap.Logger) *Router {
	return &Router{
		hub:      hub,
		presence: presence,
		rooms:    rooms,
		names:    names,
		log:      log,
	}
}

// Dispatch handles one decoded inbound event for s. Events for a given
// session arrive from its single read pump, so they are already ordered.
func (rt *Router) Dispatch(s *Session, raw []byte) {
	var ev ClientEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		rt.log.Warn("malformed client event", zap.String("session", s.ID), zap.Error(err))
		return
	}

	switch ev.Event {
	case EventIdentify:
		rt.handleIdentify(s, ev.Data)
	case EventJoinChannel:
		rt.handleJoinChannel(s, ev.Data)
	case EventTyping, EventStopTyping:
		rt.handleTyping(s, ev.Event, ev.Data)
	case EventSendMessage:
		rt.handleSendMessage(s, ev.Data)
	default:
		rt.log.Warn("unknown client event", zap.String("session", s.ID), zap.String("event", ev.Event))
	}
}

func (rt *Router) handleIdentify(s *Session, data json.RawMessage) {
	var d IdentifyData
	if err := json.Unmarshal(data, &d); err != nil || d.UserID == "" {
		rt.log.Warn("bad identify payload", zap.String("session", s.ID))
		return
	}

	name, err := rt.names.DisplayName(context.Background(), d.UserID)
	if err != nil {
		// Unknown identity: ignore the event, matching the permissive
		// behavior of the rest of the event surface.
		rt.log.Warn("identify for unknown user", zap.String("userId", d.UserID), zap.Error(err))
		return
	}

	if !s.Identify(d.UserID, name) {
		// Already identified; a second identify must not inflate the
		// presence count this session holds.
		return
	}

	roster := rt.presence.Register(d.UserID, name)
	rt.broadcastRoster(roster)
}

func (rt *Router) handleJoinChannel(s *Session, data json.RawMessage) {
	var d JoinChannelData
	if err := json.Unmarshal(data, &d); err != nil || d.ChannelID == "" {
		rt.log.Warn("bad join-channel payload", zap.String("session", s.ID))
		return
	}
	rt.rooms.Join(d.ChannelID, s)
}

// handleTyping relays typing and stop-typing to the room, excluding the
// sender: a client never needs its own typing echo.
func (rt *Router) handleTyping(s *Session, event string, data json.RawMessage) {
	var d TypingData
	if err := json.Unmarshal(data, &d); err != nil || d.ChannelID == "" {
		rt.log.Warn("bad typing payload", zap.String("session", s.ID))
		return
	}

	payload, err := encodeEvent(event, d.Name)
	if err != nil {
		rt.log.Error("encode typing event", zap.Error(err))
		return
	}
	rt.rooms.Broadcast(d.ChannelID, payload, s)
}

// handleSendMessage relays an already-persisted message to the whole room,
// sender included. The non-exclusion is deliberate: the sender's POST
// response and the relay are independent views of the same message, and
// the client is expected to dedupe by message id.
func (rt *Router) handleSendMessage(s *Session, data json.RawMessage) {
	var d SendMessageData
	if err := json.Unmarshal(data, &d); err != nil || d.ChannelID == "" || len(d.Message) == 0 {
		rt.log.Warn("bad send-message payload", zap.String("session", s.ID))
		return
	}

	payload, err := encodeEvent(EventNewMessage, d.Message)
	if err != nil {
		rt.log.Error("encode new-message event", zap.Error(err))
		return
	}
	rt.rooms.Broadcast(d.ChannelID, payload, nil)
}

// HandleDisconnect runs teardown exactly once per session: leave every
// room, drop out of the hub, and release the presence reference if the
// session ever identified. Safe to call for sessions in any partial state.
func (rt *Router) HandleDisconnect(s *Session) {
	if !s.Close() {
		return
	}

	rt.rooms.LeaveAll(s)
	rt.hub.Remove(s)

	if userID, _, ok := s.Identity(); ok {
		roster := rt.presence.Unregister(userID)
		rt.broadcastRoster(roster)
	}
}

// HandleConnect registers a new session and hands it the current roster,
// so late subscribers see who is online without waiting for the next
// identify.
func (rt *Router) HandleConnect(s *Session) {
	rt.hub.Add(s)

	payload, err := encodeEvent(EventOnlineUsers, rt.presence.Snapshot())
	if err != nil {
		rt.log.Error("encode roster", zap.Error(err))
		return
	}
	s.Deliver(payload)
}

func (rt *Router) broadcastRoster(roster []RosterEntry) {
	payload, err := encodeEvent(EventOnlineUsers, roster)
	if err != nil {
		rt.log.Error("encode roster", zap.Error(err))
		return
	}
	rt.hub.BroadcastAll(payload)
}
