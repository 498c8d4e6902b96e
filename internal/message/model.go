package message

import "time"

// Message is immutable once written. The durable store assigns id and
// created_at; history ordering is ascending (created_at, id), with id
// breaking ties between messages sharing a timestamp.
type Message struct {
	ID         int64     `json:"id"`
	ChannelID  int       `json:"channelId"`
	SenderID   int       `json:"senderId"`
	SenderName string    `json:"senderName"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"createdAt"`
}

// HistoryPage is one reverse-chronological window over a channel's log,
// returned oldest-first within the page.
type HistoryPage struct {
	Messages []Message `json:"messages"`
	Page     int       `json:"page"`
	Limit    int       `json:"limit"`
	Total    int       `json:"total"`
	HasMore  bool      `json:"hasMore"`
}

type SendRequest struct {
	Text string `json:"text"`
}
