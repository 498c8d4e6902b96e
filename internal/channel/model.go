package channel

import "time"

type Channel struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Summary is a channel as seen in the caller's channel list.
type Summary struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MemberCount int    `json:"memberCount"`
}

type CreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}
