package realtime

import "encoding/json"

// Wire event names. Inbound and outbound names match the browser client.
const (
	EventIdentify    = "identify"
	EventJoinChannel = "join-channel"
	EventTyping      = "typing"
	EventStopTyping  = "stop-typing"
	EventSendMessage = "send-message"

	EventOnlineUsers = "online-users"
	EventNewMessage  = "new-message"
)

// ClientEvent is the inbound envelope: {"event": "...", "data": {...}}.
type ClientEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ServerEvent is the outbound envelope.
type ServerEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type IdentifyData struct {
	UserID string `json:"userId"`
}

type JoinChannelData struct {
	ChannelID string `json:"channelId"`
}

type TypingData struct {
	ChannelID string `json:"channelId"`
	Name      string `json:"name"`
}

// SendMessageData carries an already-persisted message. The router never
// parses the message body, it relays the payload as-is.
type SendMessageData struct {
	ChannelID string          `json:"channelId"`
	Message   json.RawMessage `json:"message"`
}

func encodeEvent(event string, data any) ([]byte, error) {
	return json.Marshal(ServerEvent{Event: event, Data: data})
}
