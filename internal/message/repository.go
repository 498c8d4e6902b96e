package message

import (
	"context"
	"database/sql"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(ctx context.Context, channelID, senderID int, text string) (*Message, error) {
	m := &Message{ChannelID: channelID, SenderID: senderID, Text: text}
	query := `
		INSERT INTO messages (channel_id, sender_id, text)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query, channelID, senderID, text).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *Repository) CountByChannel(ctx context.Context, channelID int) (int, error) {
	var total int
	query := "SELECT COUNT(*) FROM messages WHERE channel_id = $1"
	if err := r.db.QueryRowContext(ctx, query, channelID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// ListPage returns up to limit messages newest-first, skipping offset
// messages from the end of the channel's log.
func (r *Repository) ListPage(ctx context.Context, channelID, offset, limit int) ([]Message, error) {
	query := `
		SELECT m.id, m.channel_id, m.sender_id, u.name, m.text, m.created_at
		FROM messages m
		JOIN users u ON m.sender_id = u.id
		WHERE m.channel_id = $1
		ORDER BY m.created_at DESC, m.id DESC
		OFFSET $2 LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, channelID, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.SenderID, &m.SenderName, &m.Text, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
