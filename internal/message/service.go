package message

import (
	"context"
	"fmt"
	"strings"

	"go-channel-chat/internal/apperr"
)

// maxHistoryLimit caps a single history page. Callers asking for more get
// exactly this many.
const maxHistoryLimit = 100

const defaultHistoryLimit = 20

// Store is the slice of the durable log the history service reads.
type Store interface {
	CountByChannel(ctx context.Context, channelID int) (int, error)
	ListPage(ctx context.Context, channelID, offset, limit int) ([]Message, error)
}

// MembershipChecker gates history reads and posts on durable channel
// membership.
type MembershipChecker interface {
	IsMember(ctx context.Context, channelID, userID int) (bool, error)
}

// HistoryService serves paginated channel history. It is independent of
// the live event path: pages are plain read transactions against the
// durable log and may run concurrently with any amount of relay traffic.
type HistoryService struct {
	store      Store
	membership MembershipChecker
}

func NewHistoryService(store Store, membership MembershipChecker) *HistoryService {
	return &HistoryService{store: store, membership: membership}
}

// GetPage returns the page-th window of limit messages, counted backwards
// from the newest message, in ascending (createdAt, id) order. A page past
// the end of the log is an empty page, not an error.
func (s *HistoryService) GetPage(ctx context.Context, userID, channelID, page, limit int) (*HistoryPage, error) {
	if page < 1 {
		return nil, fmt.Errorf("page must be >= 1: %w", apperr.ErrInvalidInput)
	}
	if limit < 1 {
		return nil, fmt.Errorf("limit must be >= 1: %w", apperr.ErrInvalidInput)
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	member, err := s.membership.IsMember(ctx, channelID, userID)
	if err != nil {
		return nil, fmt.Errorf("membership check: %w", apperr.ErrTransient)
	}
	if !member {
		return nil, fmt.Errorf("not a member of channel %d: %w", channelID, apperr.ErrForbidden)
	}

	total, err := s.store.CountByChannel(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("count messages: %w", apperr.ErrTransient)
	}

	result := &HistoryPage{
		Messages: []Message{},
		Page:     page,
		Limit:    limit,
		Total:    total,
	}

	// Pages past the end of the log are empty, not errors. Checking
	// against the page count before multiplying also keeps an absurd
	// page value from overflowing the offset and hasMore arithmetic.
	lastPage := (total + limit - 1) / limit
	if page > lastPage {
		return result, nil
	}
	result.HasMore = page*limit < total

	offset := (page - 1) * limit

	// Select newest-first, then flip to ascending so the page reads
	// oldest to newest.
	messages, err := s.store.ListPage(ctx, channelID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", apperr.ErrTransient)
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	result.Messages = messages
	return result, nil
}

// Appender is the write half of the durable log.
type Appender interface {
	Insert(ctx context.Context, channelID, senderID int, text string) (*Message, error)
}

// SendService validates and durably appends a message. The realtime relay
// of the created message is a separate step performed by the caller.
type SendService struct {
	repo       Appender
	membership MembershipChecker
}

func NewSendService(repo Appender, membership MembershipChecker) *SendService {
	return &SendService{repo: repo, membership: membership}
}

func (s *SendService) Send(ctx context.Context, userID int, senderName string, channelID int, text string) (*Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("message text is required: %w", apperr.ErrInvalidInput)
	}

	member, err := s.membership.IsMember(ctx, channelID, userID)
	if err != nil {
		return nil, fmt.Errorf("membership check: %w", apperr.ErrTransient)
	}
	if !member {
		return nil, fmt.Errorf("not a member of channel %d: %w", channelID, apperr.ErrForbidden)
	}

	m, err := s.repo.Insert(ctx, channelID, userID, text)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", apperr.ErrTransient)
	}
	m.SenderName = senderName
	return m, nil
}
