package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// VoteDeduper remembers which voters already voted in a poll.
type VoteDeduper struct {
	rdb goredis.Cmdable
}

func NewVoteDeduper(rdb goredis.Cmdable) *VoteDeduper {
	return &VoteDeduper{rdb: rdb}
}

// MarkVoted sets the voter marker if absent. It returns true when this call
// claimed the marker and false when the voter had already voted.
func (d *VoteDeduper) MarkVoted(ctx context.Context, pollID uuid.UUID, voterID string, ttl time.Duration) (bool, error) {
	args := goredis.SetArgs{TTL: ttl, Mode: "NX"}
	_, err := d.rdb.SetArgs(ctx, voterKey(pollID, voterID), "1", args).Result()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to mark voter: %w", err)
	}
	return true, nil
}

// Release drops the marker so a voter whose vote failed can try again.
func (d *VoteDeduper) Release(ctx context.Context, pollID uuid.UUID, voterID string) error {
	if err := d.rdb.Del(ctx, voterKey(pollID, voterID)).Err(); err != nil {
		return fmt.Errorf("failed to release voter marker: %w", err)
	}
	return nil
}

func voterKey(pollID uuid.UUID, voterID string) string {
	return "poll:" + pollID.String() + ":voter:" + voterID
}
