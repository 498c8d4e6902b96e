package channel

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// membershipTTL bounds how stale a cached membership answer can be after a
// join or leave on another instance of the API.
const membershipTTL = 30 * time.Second

// Members answers "is this user a durable member of this channel" with a
// Redis cache in front of Postgres. Every history read and message post
// goes through this check, so it is the hottest query in the system.
type Members struct {
	repo *Repository
	rdb  *redis.Client
	log  *zap.Logger
}

func NewMembers(repo *Repository, rdb *redis.Client, log *zap.Logger) *Members {
	return &Members{repo: repo, rdb: rdb, log: log}
}

func (m *Members) IsMember(ctx context.Context, channelID, userID int) (bool, error) {
	key := m.key(channelID, userID)

	if val, err := m.rdb.Get(ctx, key).Result(); err == nil {
		return val == "1", nil
	} else if err != redis.Nil {
		// Cache down is not fatal, fall through to Postgres.
		m.log.Warn("membership cache read failed", zap.Error(err))
	}

	member, err := m.repo.IsMember(ctx, channelID, userID)
	if err != nil {
		return false, err
	}

	val := "0"
	if member {
		val = "1"
	}
	if err := m.rdb.Set(ctx, key, val, membershipTTL).Err(); err != nil {
		m.log.Warn("membership cache write failed", zap.Error(err))
	}
	return member, nil
}

// Invalidate drops the cached answer after a join or leave.
func (m *Members) Invalidate(ctx context.Context, channelID, userID int) {
	if err := m.rdb.Del(ctx, m.key(channelID, userID)).Err(); err != nil {
		m.log.Warn("membership cache invalidate failed", zap.Error(err))
	}
}

func (m *Members) key(channelID, userID int) string {
	return fmt.Sprintf("membership:%d:%d", channelID, userID)
}
