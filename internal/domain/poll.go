package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PollOption is the canonical stored shape of one poll choice.
type PollOption struct {
	ID    int    `json:"id"`
	Text  string `json:"text"`
	Votes int    `json:"votes"`
}

type Poll struct {
	ID        uuid.UUID
	Question  string
	Options   []PollOption
	CreatedBy string
	CreatedAt time.Time
	ExpiresAt *time.Time
}

// IsActive reports whether the poll still accepts votes at now. A poll stays
// open up to and including its expiry instant.
func (p Poll) IsActive(now time.Time) bool {
	return p.ExpiresAt == nil || !p.ExpiresAt.Before(now)
}

type OptionTally struct {
	ID         int     `json:"id"`
	Text       string  `json:"text"`
	Votes      int     `json:"votes"`
	Percentage float64 `json:"percentage"`
}

type PollTally struct {
	Options    []OptionTally `json:"options"`
	TotalVotes int           `json:"total_votes"`
}

// StoredPoll is a poll row whose options column has not been normalized yet.
type StoredPoll struct {
	ID         uuid.UUID
	RawOptions []byte
}

// OptionsMutator receives the locked poll and returns the options to persist.
type OptionsMutator func(p Poll) ([]PollOption, error)

type PollRepository interface {
	Create(ctx context.Context, p *Poll) error
	GetByID(ctx context.Context, id uuid.UUID) (*Poll, error)
	ListActive(ctx context.Context, now time.Time) ([]Poll, error)
	ListAll(ctx context.Context) ([]Poll, error)

	// UpdateOptions runs fn under a row lock on the poll and writes the result
	// in the same transaction.
	UpdateOptions(ctx context.Context, id uuid.UUID, fn OptionsMutator) ([]PollOption, error)

	ListRaw(ctx context.Context) ([]StoredPoll, error)

	// RepairOptions normalizes the options document under the row lock and
	// writes it back only if it changed. repaired reports whether it wrote.
	RepairOptions(ctx context.Context, id uuid.UUID) (opts []PollOption, repaired bool, err error)
}

// VoteDeduper remembers which voters have voted in which poll.
type VoteDeduper interface {
	// MarkVoted returns false when the voter was already marked.
	MarkVoted(ctx context.Context, pollID uuid.UUID, voterID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, pollID uuid.UUID, voterID string) error
}

// TallyCache caches computed tallies per poll.
type TallyCache interface {
	Get(ctx context.Context, pollID uuid.UUID) (*PollTally, bool)
	Set(ctx context.Context, pollID uuid.UUID, tally PollTally)
	Invalidate(ctx context.Context, pollID uuid.UUID) error
}
