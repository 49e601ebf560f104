package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/WamalwaSydney/civicpulse/internal/adapter/metrics"
	"github.com/WamalwaSydney/civicpulse/internal/domain"
	"github.com/WamalwaSydney/civicpulse/internal/platform/retry"
	"github.com/WamalwaSydney/civicpulse/internal/poll"
)

const (
	minQuestionLength   = 10
	maxQuestionLength   = 500
	minPollOptions      = 2
	maxPollOptions      = 6
	maxOptionLength     = 100
	defaultDurationDays = 7
	maxDurationDays     = 30

	defaultPollCreator = "staff"

	repairTriggerBatch = "batch"
)

type CreatePollRequest struct {
	Question     string
	Options      []string
	DurationDays int
	CreatedBy    string
}

// PollView is a poll together with its tally at read time.
type PollView struct {
	Poll     domain.Poll
	Tally    domain.PollTally
	IsActive bool
}

type RepairReport struct {
	Total    int
	Fixed    int
	FixedIDs []uuid.UUID
	DryRun   bool
}

type PollService struct {
	polls        domain.PollRepository
	dedupe       domain.VoteDeduper
	cache        domain.TallyCache
	metrics      *metrics.VoteMetrics
	cacheMetrics *metrics.CacheMetrics
	clock        clockwork.Clock
	dedupeTTL    time.Duration
	retryPolicy  retry.Policy
	tallyGroup   singleflight.Group
}

// NewPollService wires the poll use cases. dedupe and cache may be nil; votes
// are then not deduplicated and tallies are always computed from storage.
func NewPollService(polls domain.PollRepository, dedupe domain.VoteDeduper, cache domain.TallyCache, voteMetrics *metrics.VoteMetrics, cacheMetrics *metrics.CacheMetrics, clock clockwork.Clock, dedupeTTL time.Duration) *PollService {
	return &PollService{
		polls:        polls,
		dedupe:       dedupe,
		cache:        cache,
		metrics:      voteMetrics,
		cacheMetrics: cacheMetrics,
		clock:        clock,
		dedupeTTL:    dedupeTTL,
		retryPolicy: retry.Policy{
			MaxAttempts:    3,
			InitialBackoff: 50 * time.Millisecond,
			MaxBackoff:     500 * time.Millisecond,
			Clock:          clock,
		},
	}
}

func (s *PollService) Create(ctx context.Context, req CreatePollRequest) (*domain.Poll, error) {
	question := strings.TrimSpace(req.Question)
	if n := utf8.RuneCountInString(question); n < minQuestionLength || n > maxQuestionLength {
		return nil, domain.NewValidationError("question", "must be between 10 and 500 characters")
	}

	if len(req.Options) < minPollOptions || len(req.Options) > maxPollOptions {
		return nil, domain.NewValidationError("options", "must have between 2 and 6 entries")
	}
	texts := make([]string, len(req.Options))
	for i, raw := range req.Options {
		text := strings.TrimSpace(raw)
		if text == "" {
			return nil, domain.NewValidationError("options", "must not be empty")
		}
		if utf8.RuneCountInString(text) > maxOptionLength {
			return nil, domain.NewValidationError("options", "must be at most 100 characters each")
		}
		texts[i] = text
	}

	days := req.DurationDays
	if days == 0 {
		days = defaultDurationDays
	}
	if days < 1 || days > maxDurationDays {
		return nil, domain.NewValidationError("duration_days", "must be between 1 and 30")
	}

	now := s.clock.Now().UTC()
	expiresAt := now.Add(time.Duration(days) * 24 * time.Hour)
	creator := strings.TrimSpace(req.CreatedBy)
	if creator == "" {
		creator = defaultPollCreator
	}

	p := &domain.Poll{
		ID:        uuid.New(),
		Question:  question,
		Options:   poll.Normalize(texts),
		CreatedBy: creator,
		CreatedAt: now,
		ExpiresAt: &expiresAt,
	}
	if err := s.polls.Create(ctx, p); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Poll created", "poll_id", p.ID.String(), "options", len(p.Options), "expires_at", expiresAt)
	return p, nil
}

// Vote records one vote. A voter may vote once per poll; when the dedupe
// store is unreachable the vote is accepted. The option list is updated
// under a row lock. Storage failures are retried unless the commit itself
// failed, since the increment may already be stored.
func (s *PollService) Vote(ctx context.Context, pollID uuid.UUID, optionID int, voterID string) (domain.PollTally, error) {
	start := s.clock.Now()

	marked, err := s.markVoter(ctx, pollID, voterID)
	if err != nil {
		s.recordVote(metrics.VoteDuplicate, start)
		return domain.PollTally{}, err
	}

	opts, err := retry.Do(ctx, s.retryPolicy, classifyStorageError, func(ctx context.Context) ([]domain.PollOption, error) {
		return s.polls.UpdateOptions(ctx, pollID, func(p domain.Poll) ([]domain.PollOption, error) {
			return poll.Vote(p, optionID, s.clock.Now())
		})
	})
	if err != nil {
		err = unwrapPermanent(err)
		// the vote may have been applied; keep the marker so it is not cast twice
		if marked && !domain.IsOutcomeUnknown(err) {
			if relErr := s.dedupe.Release(ctx, pollID, voterID); relErr != nil {
				slog.WarnContext(ctx, "Failed to release voter marker", "poll_id", pollID.String(), "error", relErr)
			}
		}
		s.recordVote(voteResult(err), start)
		return domain.PollTally{}, err
	}

	s.invalidate(ctx, pollID)
	s.recordVote(metrics.VoteApplied, start)
	slog.DebugContext(ctx, "Vote applied", "poll_id", pollID.String(), "option_id", optionID)
	return poll.Tally(opts), nil
}

// markVoter returns whether this call placed a marker that must be released
// if the vote fails.
func (s *PollService) markVoter(ctx context.Context, pollID uuid.UUID, voterID string) (bool, error) {
	if s.dedupe == nil || voterID == "" {
		return false, nil
	}
	ok, err := s.dedupe.MarkVoted(ctx, pollID, voterID, s.dedupeTTL)
	if err != nil {
		slog.WarnContext(ctx, "Vote dedupe unavailable, accepting vote", "poll_id", pollID.String(), "error", err)
		return false, nil
	}
	if !ok {
		return false, domain.ErrAlreadyVoted
	}
	return true, nil
}

func (s *PollService) recordVote(result string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.VotesProcessed.WithLabelValues(result).Inc()
	s.metrics.ProcessingDuration.Observe(s.clock.Since(start).Seconds())
}

func voteResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrPollExpired):
		return metrics.VoteExpired
	case errors.Is(err, domain.ErrInvalidOption):
		return metrics.VoteInvalidOption
	case errors.Is(err, domain.ErrPollNotFound):
		return metrics.VoteNotFound
	default:
		return metrics.VoteError
	}
}

func classifyStorageError(err error) retry.Action {
	if domain.IsRetryableStorageError(err) {
		return retry.Retry
	}
	return retry.Stop
}

func unwrapPermanent(err error) error {
	var pe *retry.PermanentError
	if errors.As(err, &pe) {
		return pe.Err
	}
	return err
}

func (s *PollService) Get(ctx context.Context, id uuid.UUID) (*PollView, error) {
	p, err := s.polls.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &PollView{Poll: *p, Tally: poll.Tally(p.Options), IsActive: p.IsActive(s.clock.Now())}, nil
}

func (s *PollService) ListActive(ctx context.Context) ([]PollView, error) {
	now := s.clock.Now()
	polls, err := s.polls.ListActive(ctx, now)
	if err != nil {
		return nil, err
	}
	views := make([]PollView, 0, len(polls))
	for _, p := range polls {
		views = append(views, PollView{Poll: p, Tally: poll.Tally(p.Options), IsActive: true})
	}
	return views, nil
}

// Results lists every poll with its status. Tallies come from the tally cache
// and may lag a concurrent vote by at most the cache TTL.
func (s *PollService) Results(ctx context.Context) ([]PollView, error) {
	now := s.clock.Now()
	polls, err := s.polls.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]PollView, 0, len(polls))
	for _, p := range polls {
		views = append(views, PollView{Poll: p, Tally: s.cachedTally(ctx, p), IsActive: p.IsActive(now)})
	}
	return views, nil
}

// Tally returns one poll's tally, loading it from storage on a cache miss.
// Concurrent misses for the same poll share a single load.
func (s *PollService) Tally(ctx context.Context, id uuid.UUID) (domain.PollTally, error) {
	if t, ok := s.cacheGet(ctx, id); ok {
		return t, nil
	}

	v, err, shared := s.tallyGroup.Do(id.String(), func() (any, error) {
		p, err := s.polls.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		t := poll.Tally(p.Options)
		s.cacheSet(ctx, id, t)
		return t, nil
	})
	if shared && s.cacheMetrics != nil {
		s.cacheMetrics.Collapsed.Inc()
	}
	if err != nil {
		return domain.PollTally{}, err
	}
	return v.(domain.PollTally), nil
}

func (s *PollService) cachedTally(ctx context.Context, p domain.Poll) domain.PollTally {
	if t, ok := s.cacheGet(ctx, p.ID); ok {
		return t
	}
	t := poll.Tally(p.Options)
	s.cacheSet(ctx, p.ID, t)
	return t
}

func (s *PollService) cacheGet(ctx context.Context, id uuid.UUID) (domain.PollTally, bool) {
	if s.cache == nil {
		return domain.PollTally{}, false
	}
	t, ok := s.cache.Get(ctx, id)
	if s.cacheMetrics != nil {
		if ok {
			s.cacheMetrics.Hits.Inc()
		} else {
			s.cacheMetrics.Misses.Inc()
		}
	}
	if !ok {
		return domain.PollTally{}, false
	}
	return *t, true
}

func (s *PollService) cacheSet(ctx context.Context, id uuid.UUID, t domain.PollTally) {
	if s.cache != nil {
		s.cache.Set(ctx, id, t)
	}
}

func (s *PollService) invalidate(ctx context.Context, id uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		slog.WarnContext(ctx, "Failed to invalidate tally cache", "poll_id", id.String(), "error", err)
		return
	}
	if s.cacheMetrics != nil {
		s.cacheMetrics.Invalidations.Inc()
	}
}

// RepairAll rewrites every stored options document that is not already in
// canonical form. The listing only selects candidates; each rewrite re-reads
// the row under its lock so concurrent votes are kept. With dryRun nothing is
// written.
func (s *PollService) RepairAll(ctx context.Context, dryRun bool) (*RepairReport, error) {
	stored, err := s.polls.ListRaw(ctx)
	if err != nil {
		return nil, err
	}

	report := &RepairReport{Total: len(stored), FixedIDs: []uuid.UUID{}, DryRun: dryRun}
	for _, sp := range stored {
		opts, repaired := poll.NormalizeJSON(sp.RawOptions)
		if !repaired {
			continue
		}

		if !dryRun {
			opts, repaired, err = s.polls.RepairOptions(ctx, sp.ID)
			if errors.Is(err, domain.ErrPollNotFound) {
				slog.DebugContext(ctx, "Poll deleted before repair", "poll_id", sp.ID.String())
				continue
			}
			if err != nil {
				return report, err
			}
			if !repaired {
				slog.DebugContext(ctx, "Poll already canonical at repair time", "poll_id", sp.ID.String())
				continue
			}
			s.invalidate(ctx, sp.ID)
			if s.metrics != nil {
				s.metrics.OptionsRepaired.WithLabelValues(repairTriggerBatch).Inc()
			}
		}
		report.Fixed++
		report.FixedIDs = append(report.FixedIDs, sp.ID)
		slog.InfoContext(ctx, "Poll options repaired", "poll_id", sp.ID.String(), "options", len(opts), "dry_run", dryRun)
	}

	slog.InfoContext(ctx, "Poll repair finished", "total", report.Total, "fixed", report.Fixed, "dry_run", dryRun)
	return report, nil
}
