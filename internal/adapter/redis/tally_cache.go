package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/WamalwaSydney/civicpulse/internal/domain"
)

const defaultTallyTTL = 30 * time.Second

// TallyCache stores computed poll tallies as JSON. Failures are logged and
// reported as misses; Postgres stays the source of truth.
type TallyCache struct {
	rdb goredis.Cmdable
	ttl time.Duration
}

// NewTallyCache uses a 30s TTL when ttl is not positive.
func NewTallyCache(rdb goredis.Cmdable, ttl time.Duration) *TallyCache {
	if ttl <= 0 {
		ttl = defaultTallyTTL
	}
	return &TallyCache{rdb: rdb, ttl: ttl}
}

func (c *TallyCache) Get(ctx context.Context, pollID uuid.UUID) (*domain.PollTally, bool) {
	data, err := c.rdb.Get(ctx, tallyKey(pollID)).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			slog.Warn("Redis tally cache GET failed", "poll_id", pollID, "error", err)
		}
		return nil, false
	}

	var tally domain.PollTally
	if err := json.Unmarshal(data, &tally); err != nil {
		slog.Warn("Failed to unmarshal cached tally", "poll_id", pollID, "error", err)
		return nil, false
	}
	return &tally, true
}

func (c *TallyCache) Set(ctx context.Context, pollID uuid.UUID, tally domain.PollTally) {
	encoded, err := json.Marshal(tally)
	if err != nil {
		slog.Warn("Failed to marshal tally for Redis cache", "poll_id", pollID, "error", err)
		return
	}
	if err := c.rdb.Set(ctx, tallyKey(pollID), encoded, c.ttl).Err(); err != nil {
		slog.Warn("Failed to populate Redis tally cache", "poll_id", pollID, "error", err)
	}
}

func (c *TallyCache) Invalidate(ctx context.Context, pollID uuid.UUID) error {
	if err := c.rdb.Del(ctx, tallyKey(pollID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate tally cache: %w", err)
	}
	return nil
}

func tallyKey(pollID uuid.UUID) string {
	return "poll:" + pollID.String() + ":tally"
}
