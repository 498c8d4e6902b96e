package channel

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go-channel-chat/internal/apperr"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, name, description string) (*Channel, error) {
	c := &Channel{Name: name, Description: description}
	query := "INSERT INTO channels (name, description) VALUES ($1, $2) RETURNING id, created_at"

	err := r.db.QueryRowContext(ctx, query, name, description).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *Repository) GetByID(ctx context.Context, id int) (*Channel, error) {
	c := &Channel{}
	query := "SELECT id, name, description, created_at FROM channels WHERE id = $1"

	err := r.db.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("channel %d: %w", id, apperr.ErrNotFound)
		}
		return nil, err
	}
	return c, nil
}

func (r *Repository) AddMember(ctx context.Context, channelID, userID int) error {
	query := "INSERT INTO channel_members (channel_id, user_id) VALUES ($1, $2)"
	_, err := r.db.ExecContext(ctx, query, channelID, userID)
	return err
}

func (r *Repository) RemoveMember(ctx context.Context, channelID, userID int) error {
	query := "DELETE FROM channel_members WHERE channel_id = $1 AND user_id = $2"
	_, err := r.db.ExecContext(ctx, query, channelID, userID)
	return err
}

func (r *Repository) IsMember(ctx context.Context, channelID, userID int) (bool, error) {
	var exists bool
	query := "SELECT EXISTS (SELECT 1 FROM channel_members WHERE channel_id = $1 AND user_id = $2)"
	if err := r.db.QueryRowContext(ctx, query, channelID, userID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// ListForUser returns the channels the user belongs to, each with its
// current member count.
func (r *Repository) ListForUser(ctx context.Context, userID int) ([]Summary, error) {
	query := `
		SELECT c.id, c.name, c.description,
		       (SELECT COUNT(*) FROM channel_members m2 WHERE m2.channel_id = c.id)
		FROM channels c
		JOIN channel_members m ON m.channel_id = c.id
		WHERE m.user_id = $1
		ORDER BY c.id
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.MemberCount); err != nil {
			return nil, err
		}
		channels = append(channels, s)
	}
	return channels, rows.Err()
}
