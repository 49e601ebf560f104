package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WamalwaSydney/civicpulse/internal/adapter/metrics"
	"github.com/WamalwaSydney/civicpulse/internal/domain"
	"github.com/WamalwaSydney/civicpulse/internal/platform/retry"
	"github.com/WamalwaSydney/civicpulse/internal/poll"
)

type pollFixture struct {
	svc     *PollService
	repo    *memPollRepo
	dedupe  *mockDeduper
	cache   *memTallyCache
	votes   *metrics.VoteMetrics
	cacheM  *metrics.CacheMetrics
	clock   *clockwork.FakeClock
	initial domain.Poll
}

func newPollFixture(t *testing.T) *pollFixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testNow)
	expires := testNow.Add(24 * time.Hour)
	p := domain.Poll{
		ID:        uuid.New(),
		Question:  "Should the market open on Sundays?",
		Options:   poll.Normalize([]string{"Yes", "No"}),
		CreatedBy: "staff",
		CreatedAt: testNow.Add(-time.Hour),
		ExpiresAt: &expires,
	}

	f := &pollFixture{
		repo:    newMemPollRepo(p),
		dedupe:  &mockDeduper{},
		cache:   newMemTallyCache(),
		votes:   metrics.NewVoteMetrics(prometheus.NewRegistry()),
		cacheM:  metrics.NewCacheMetrics(prometheus.NewRegistry()),
		clock:   clock,
		initial: p,
	}
	f.svc = NewPollService(f.repo, f.dedupe, f.cache, f.votes, f.cacheM, clock, time.Hour)
	f.svc.retryPolicy = retry.Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, Clock: clockwork.NewRealClock()}
	return f
}

func (f *pollFixture) result(label string) float64 {
	return testutil.ToFloat64(f.votes.VotesProcessed.WithLabelValues(label))
}

func TestCreatePoll_NormalizesOptions(t *testing.T) {
	f := newPollFixture(t)

	p, err := f.svc.Create(context.Background(), CreatePollRequest{
		Question: "  Which road should be repaired first?  ",
		Options:  []string{" Thika Road ", "Mombasa Road", "Waiyaki Way"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Which road should be repaired first?", p.Question)
	assert.Equal(t, []domain.PollOption{
		{ID: 1, Text: "Thika Road"},
		{ID: 2, Text: "Mombasa Road"},
		{ID: 3, Text: "Waiyaki Way"},
	}, p.Options)
	assert.Equal(t, defaultPollCreator, p.CreatedBy)
	require.NotNil(t, p.ExpiresAt)
	assert.Equal(t, testNow.Add(7*24*time.Hour), *p.ExpiresAt)

	stored, err := f.repo.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Options, stored.Options)
}

func TestCreatePoll_Validation(t *testing.T) {
	tooLong := make([]byte, 101)
	for i := range tooLong {
		tooLong[i] = 'x'
	}

	tests := []struct {
		name  string
		req   CreatePollRequest
		field string
	}{
		{"short question", CreatePollRequest{Question: "Why?", Options: []string{"a", "b"}}, "question"},
		{"one option", CreatePollRequest{Question: "Is the water clean?", Options: []string{"a"}}, "options"},
		{"seven options", CreatePollRequest{Question: "Is the water clean?", Options: []string{"1", "2", "3", "4", "5", "6", "7"}}, "options"},
		{"blank option", CreatePollRequest{Question: "Is the water clean?", Options: []string{"yes", "  "}}, "options"},
		{"long option", CreatePollRequest{Question: "Is the water clean?", Options: []string{"yes", string(tooLong)}}, "options"},
		{"duration too long", CreatePollRequest{Question: "Is the water clean?", Options: []string{"a", "b"}, DurationDays: 31}, "duration_days"},
		{"negative duration", CreatePollRequest{Question: "Is the water clean?", Options: []string{"a", "b"}, DurationDays: -1}, "duration_days"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPollFixture(t)

			_, err := f.svc.Create(context.Background(), tt.req)
			var ve *domain.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestVote_AppliesAndInvalidatesCache(t *testing.T) {
	f := newPollFixture(t)
	ctx := context.Background()
	f.cache.Set(ctx, f.initial.ID, domain.PollTally{TotalVotes: 99})

	tally, err := f.svc.Vote(ctx, f.initial.ID, 2, "voter-1")
	require.NoError(t, err)

	assert.Equal(t, 1, tally.TotalVotes)
	assert.Equal(t, 0, tally.Options[0].Votes)
	assert.Equal(t, 1, tally.Options[1].Votes)
	assert.Equal(t, 100.0, tally.Options[1].Percentage)

	_, cached := f.cache.Get(ctx, f.initial.ID)
	assert.False(t, cached)
	assert.Equal(t, 1.0, f.result(metrics.VoteApplied))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.cacheM.Invalidations))
}

func TestVote_DuplicateVoterRejected(t *testing.T) {
	f := newPollFixture(t)
	f.dedupe.markFn = func(context.Context, uuid.UUID, string, time.Duration) (bool, error) { return false, nil }

	_, err := f.svc.Vote(context.Background(), f.initial.ID, 1, "voter-1")
	assert.ErrorIs(t, err, domain.ErrAlreadyVoted)

	p, _ := f.repo.GetByID(context.Background(), f.initial.ID)
	assert.Equal(t, 0, poll.Tally(p.Options).TotalVotes)
	assert.Equal(t, 1.0, f.result(metrics.VoteDuplicate))
	assert.Empty(t, f.dedupe.released)
}

func TestVote_DedupeOutageFailsOpen(t *testing.T) {
	f := newPollFixture(t)
	f.dedupe.markFn = func(context.Context, uuid.UUID, string, time.Duration) (bool, error) {
		return false, errors.New("circuit breaker open")
	}

	tally, err := f.svc.Vote(context.Background(), f.initial.ID, 1, "voter-1")
	require.NoError(t, err)
	assert.Equal(t, 1, tally.TotalVotes)
}

func TestVote_AnonymousVoterSkipsDedupe(t *testing.T) {
	f := newPollFixture(t)
	f.dedupe.markFn = func(context.Context, uuid.UUID, string, time.Duration) (bool, error) {
		t.Fatal("dedupe must not be consulted without a voter id")
		return false, nil
	}

	_, err := f.svc.Vote(context.Background(), f.initial.ID, 1, "")
	require.NoError(t, err)
}

func TestVote_FailuresReleaseMarker(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(f *pollFixture) uuid.UUID
		optionID int
		wantErr  error
		result   string
	}{
		{
			name:     "invalid option",
			setup:    func(f *pollFixture) uuid.UUID { return f.initial.ID },
			optionID: 999,
			wantErr:  domain.ErrInvalidOption,
			result:   metrics.VoteInvalidOption,
		},
		{
			name:     "unknown poll",
			setup:    func(*pollFixture) uuid.UUID { return uuid.New() },
			optionID: 1,
			wantErr:  domain.ErrPollNotFound,
			result:   metrics.VoteNotFound,
		},
		{
			name: "expired poll",
			setup: func(f *pollFixture) uuid.UUID {
				f.clock.Advance(25 * time.Hour)
				return f.initial.ID
			},
			optionID: 1,
			wantErr:  domain.ErrPollExpired,
			result:   metrics.VoteExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPollFixture(t)
			id := tt.setup(f)

			_, err := f.svc.Vote(context.Background(), id, tt.optionID, "voter-1")
			assert.ErrorIs(t, err, tt.wantErr)
			var pe *retry.PermanentError
			assert.False(t, errors.As(err, &pe), "retry wrapper must not leak")
			assert.Equal(t, []string{"voter-1"}, f.dedupe.released)
			assert.Equal(t, 1.0, f.result(tt.result))
		})
	}
}

func TestVote_RetriesStorageErrors(t *testing.T) {
	f := newPollFixture(t)
	transient := domain.NewStorageError("lock poll", errors.New("connection reset"))
	f.repo.updateErrs = []error{transient, transient}

	tally, err := f.svc.Vote(context.Background(), f.initial.ID, 1, "voter-1")
	require.NoError(t, err)
	assert.Equal(t, 1, tally.TotalVotes)
	assert.Empty(t, f.dedupe.released)
}

func TestVote_StorageErrorAfterRetriesReleasesMarker(t *testing.T) {
	f := newPollFixture(t)
	transient := domain.NewStorageError("lock poll", errors.New("connection reset"))
	f.repo.updateErrs = []error{transient, transient, transient}

	_, err := f.svc.Vote(context.Background(), f.initial.ID, 1, "voter-1")
	assert.True(t, domain.IsStorageError(err))
	assert.Equal(t, []string{"voter-1"}, f.dedupe.released)
	assert.Equal(t, 1.0, f.result(metrics.VoteError))
}

func TestVote_CommitFailureIsNotRetried(t *testing.T) {
	f := newPollFixture(t)
	f.repo.updateErrs = []error{domain.NewCommitError("commit poll options", errors.New("connection reset"))}

	_, err := f.svc.Vote(context.Background(), f.initial.ID, 1, "voter-1")

	assert.True(t, domain.IsStorageError(err))
	assert.True(t, domain.IsOutcomeUnknown(err))
	assert.Equal(t, 1, f.repo.updateCalls, "an unacknowledged commit must not be replayed")
	assert.Empty(t, f.dedupe.released, "the vote may be stored, so the voter stays marked")
	assert.Equal(t, 1.0, f.result(metrics.VoteError))
}

func TestVote_ConcurrentVotesAllCounted(t *testing.T) {
	f := newPollFixture(t)

	const voters = 50
	var wg sync.WaitGroup
	for i := range voters {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.Vote(context.Background(), f.initial.ID, 1, uuid.NewString())
			assert.NoError(t, err, "voter %d", i)
		}(i)
	}
	wg.Wait()

	p, err := f.repo.GetByID(context.Background(), f.initial.ID)
	require.NoError(t, err)
	assert.Equal(t, voters, p.Options[0].Votes)
}

func TestGetAndListActive(t *testing.T) {
	f := newPollFixture(t)
	ctx := context.Background()

	view, err := f.svc.Get(ctx, f.initial.ID)
	require.NoError(t, err)
	assert.True(t, view.IsActive)
	assert.Len(t, view.Tally.Options, 2)

	_, err = f.svc.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrPollNotFound)

	active, err := f.svc.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	f.clock.Advance(48 * time.Hour)
	active, err = f.svc.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	view, err = f.svc.Get(ctx, f.initial.ID)
	require.NoError(t, err)
	assert.False(t, view.IsActive)
}

func TestResults_UsesTallyCache(t *testing.T) {
	f := newPollFixture(t)
	ctx := context.Background()

	views, err := f.svc.Results(ctx)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.cacheM.Misses))

	_, cached := f.cache.Get(ctx, f.initial.ID)
	require.True(t, cached)

	_, err = f.svc.Results(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.cacheM.Hits))
}

// countingPollRepo counts GetByID calls and blocks them until release is closed.
type countingPollRepo struct {
	*memPollRepo
	loads   atomic.Int32
	release chan struct{}
}

func (r *countingPollRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Poll, error) {
	r.loads.Add(1)
	<-r.release
	return r.memPollRepo.GetByID(ctx, id)
}

func TestTally_CollapsesConcurrentLoads(t *testing.T) {
	f := newPollFixture(t)
	repo := &countingPollRepo{memPollRepo: f.repo, release: make(chan struct{})}
	svc := NewPollService(repo, nil, nil, f.votes, f.cacheM, f.clock, time.Hour)

	const readers = 10
	var wg sync.WaitGroup
	results := make(chan domain.PollTally, readers)
	for range readers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tally, err := svc.Tally(context.Background(), f.initial.ID)
			assert.NoError(t, err)
			results <- tally
		}()
	}

	assert.Eventually(t, func() bool { return repo.loads.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(repo.release)
	wg.Wait()
	close(results)

	assert.Equal(t, int32(1), repo.loads.Load())
	for tally := range results {
		assert.Len(t, tally.Options, 2)
	}
}

func TestTally_NotFound(t *testing.T) {
	f := newPollFixture(t)

	_, err := f.svc.Tally(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrPollNotFound)
}

func TestRepairAll(t *testing.T) {
	canonical := uuid.New()
	legacy := uuid.New()
	partial := uuid.New()

	tests := []struct {
		name         string
		dryRun       bool
		wantReplaced int
	}{
		{"writes repaired rows", false, 2},
		{"dry run writes nothing", true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPollFixture(t)
			f.repo.raw = []domain.StoredPoll{
				{ID: canonical, RawOptions: []byte(`[{"id":1,"text":"Yes","votes":2},{"id":2,"text":"No","votes":0}]`)},
				{ID: legacy, RawOptions: []byte(`["Yes","No"]`)},
				{ID: partial, RawOptions: []byte(`[{"text":"Yes","votes":3},{"id":2}]`)},
			}

			report, err := f.svc.RepairAll(context.Background(), tt.dryRun)
			require.NoError(t, err)
			assert.Equal(t, 3, report.Total)
			assert.Equal(t, 2, report.Fixed)
			assert.ElementsMatch(t, []uuid.UUID{legacy, partial}, report.FixedIDs)
			assert.Len(t, f.repo.replaced, tt.wantReplaced)

			if !tt.dryRun {
				assert.Equal(t, []domain.PollOption{{ID: 1, Text: "Yes", Votes: 3}, {ID: 2, Text: "Option 2"}}, f.repo.replaced[partial])
				assert.Equal(t, 2.0, testutil.ToFloat64(f.votes.OptionsRepaired.WithLabelValues(repairTriggerBatch)))
			}
		})
	}
}

func TestRepairAll_KeepsVoteCommittedAfterListing(t *testing.T) {
	f := newPollFixture(t)
	id := uuid.New()
	f.repo.raw = []domain.StoredPoll{{ID: id, RawOptions: []byte(`["Yes","No"]`)}}
	f.repo.afterListRaw = func() {
		// a vote lands between the listing and the rewrite
		f.repo.setRaw(id, `[{"text":"Yes","votes":1},"No"]`)
	}

	report, err := f.svc.RepairAll(context.Background(), false)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Fixed)
	assert.Equal(t, []domain.PollOption{{ID: 1, Text: "Yes", Votes: 1}, {ID: 2, Text: "No"}}, f.repo.replaced[id])
}

func TestRepairAll_SkipsRowAlreadyCanonical(t *testing.T) {
	f := newPollFixture(t)
	id := uuid.New()
	canonical := `[{"id":1,"text":"Yes","votes":1},{"id":2,"text":"No","votes":0}]`
	f.repo.raw = []domain.StoredPoll{{ID: id, RawOptions: []byte(`["Yes","No"]`)}}
	f.repo.afterListRaw = func() {
		// the vote path writes canonical options under the row lock
		f.repo.setRaw(id, canonical)
	}

	report, err := f.svc.RepairAll(context.Background(), false)

	require.NoError(t, err)
	assert.Equal(t, 0, report.Fixed)
	assert.Empty(t, f.repo.replaced)
	raw, err := f.repo.ListRaw(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, canonical, string(raw[0].RawOptions))
	assert.Equal(t, 0.0, testutil.ToFloat64(f.votes.OptionsRepaired.WithLabelValues(repairTriggerBatch)))
}
