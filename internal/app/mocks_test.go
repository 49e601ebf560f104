package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/WamalwaSydney/civicpulse/internal/domain"
	"github.com/WamalwaSydney/civicpulse/internal/poll"
)

// --- Mock implementations ---

type mockFeedbackRepo struct {
	createFn              func(ctx context.Context, item *domain.FeedbackItem) error
	getByIDFn             func(ctx context.Context, id uuid.UUID) (*domain.FeedbackItem, error)
	listFn                func(ctx context.Context, filter domain.FeedbackFilter) (*domain.FeedbackPage, error)
	listProcessedSinceFn  func(ctx context.Context, since time.Time) ([]domain.FeedbackItem, error)
	countFn               func(ctx context.Context) (int, error)
	sentimentByLocationFn func(ctx context.Context) ([]domain.LocationSentiment, error)
}

func (m *mockFeedbackRepo) Create(ctx context.Context, item *domain.FeedbackItem) error {
	if m.createFn != nil {
		return m.createFn(ctx, item)
	}
	return nil
}

func (m *mockFeedbackRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.FeedbackItem, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, domain.ErrFeedbackNotFound
}

func (m *mockFeedbackRepo) List(ctx context.Context, filter domain.FeedbackFilter) (*domain.FeedbackPage, error) {
	if m.listFn != nil {
		return m.listFn(ctx, filter)
	}
	return &domain.FeedbackPage{Items: []domain.FeedbackItem{}, Page: filter.Page, PerPage: filter.PerPage}, nil
}

func (m *mockFeedbackRepo) ListProcessedSince(ctx context.Context, since time.Time) ([]domain.FeedbackItem, error) {
	if m.listProcessedSinceFn != nil {
		return m.listProcessedSinceFn(ctx, since)
	}
	return []domain.FeedbackItem{}, nil
}

func (m *mockFeedbackRepo) Count(ctx context.Context) (int, error) {
	if m.countFn != nil {
		return m.countFn(ctx)
	}
	return 0, nil
}

func (m *mockFeedbackRepo) SentimentByLocation(ctx context.Context) ([]domain.LocationSentiment, error) {
	if m.sentimentByLocationFn != nil {
		return m.sentimentByLocationFn(ctx)
	}
	return []domain.LocationSentiment{}, nil
}

// memPollRepo keeps polls in memory; UpdateOptions serializes like the row lock does.
type memPollRepo struct {
	mu    sync.Mutex
	polls map[uuid.UUID]domain.Poll
	raw   []domain.StoredPoll

	updateErrs   []error // returned (and consumed) before fn runs
	updateCalls  int
	replaced     map[uuid.UUID][]domain.PollOption
	afterListRaw func() // runs after the listing snapshot is taken
}

func newMemPollRepo(polls ...domain.Poll) *memPollRepo {
	r := &memPollRepo{polls: map[uuid.UUID]domain.Poll{}, replaced: map[uuid.UUID][]domain.PollOption{}}
	for _, p := range polls {
		r.polls[p.ID] = p
	}
	return r
}

func (r *memPollRepo) Create(_ context.Context, p *domain.Poll) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.polls[p.ID] = *p
	return nil
}

func (r *memPollRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Poll, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.polls[id]
	if !ok {
		return nil, domain.ErrPollNotFound
	}
	return &p, nil
}

func (r *memPollRepo) ListActive(_ context.Context, now time.Time) ([]domain.Poll, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Poll{}
	for _, p := range r.polls {
		if p.IsActive(now) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memPollRepo) ListAll(_ context.Context) ([]domain.Poll, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Poll{}
	for _, p := range r.polls {
		out = append(out, p)
	}
	return out, nil
}

func (r *memPollRepo) UpdateOptions(_ context.Context, id uuid.UUID, fn domain.OptionsMutator) ([]domain.PollOption, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updateCalls++
	if len(r.updateErrs) > 0 {
		err := r.updateErrs[0]
		r.updateErrs = r.updateErrs[1:]
		return nil, err
	}
	p, ok := r.polls[id]
	if !ok {
		return nil, domain.ErrPollNotFound
	}
	opts, err := fn(p)
	if err != nil {
		return nil, err
	}
	p.Options = opts
	r.polls[id] = p
	return opts, nil
}

func (r *memPollRepo) ListRaw(_ context.Context) ([]domain.StoredPoll, error) {
	r.mu.Lock()
	out := append([]domain.StoredPoll(nil), r.raw...)
	r.mu.Unlock()

	if r.afterListRaw != nil {
		r.afterListRaw()
	}
	return out, nil
}

// setRaw replaces the stored document of id, as a committed write would.
func (r *memPollRepo) setRaw(id uuid.UUID, doc string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.raw {
		if r.raw[i].ID == id {
			r.raw[i].RawOptions = []byte(doc)
		}
	}
}

func (r *memPollRepo) RepairOptions(_ context.Context, id uuid.UUID) ([]domain.PollOption, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.raw {
		if r.raw[i].ID != id {
			continue
		}
		opts, repaired := poll.NormalizeJSON(r.raw[i].RawOptions)
		if !repaired {
			return opts, false, nil
		}
		doc, err := json.Marshal(opts)
		if err != nil {
			return nil, false, err
		}
		r.raw[i].RawOptions = doc
		r.replaced[id] = opts
		return opts, true, nil
	}
	return nil, false, domain.ErrPollNotFound
}

type mockDeduper struct {
	markFn    func(ctx context.Context, pollID uuid.UUID, voterID string, ttl time.Duration) (bool, error)
	released  []string
	releaseFn func(ctx context.Context, pollID uuid.UUID, voterID string) error
}

func (m *mockDeduper) MarkVoted(ctx context.Context, pollID uuid.UUID, voterID string, ttl time.Duration) (bool, error) {
	if m.markFn != nil {
		return m.markFn(ctx, pollID, voterID, ttl)
	}
	return true, nil
}

func (m *mockDeduper) Release(ctx context.Context, pollID uuid.UUID, voterID string) error {
	m.released = append(m.released, voterID)
	if m.releaseFn != nil {
		return m.releaseFn(ctx, pollID, voterID)
	}
	return nil
}

// memTallyCache is a map-backed TallyCache.
type memTallyCache struct {
	mu          sync.Mutex
	entries     map[uuid.UUID]domain.PollTally
	invalidated []uuid.UUID
}

func newMemTallyCache() *memTallyCache {
	return &memTallyCache{entries: map[uuid.UUID]domain.PollTally{}}
}

func (c *memTallyCache) Get(_ context.Context, id uuid.UUID) (*domain.PollTally, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	return &t, true
}

func (c *memTallyCache) Set(_ context.Context, id uuid.UUID, t domain.PollTally) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = t
}

func (c *memTallyCache) Invalidate(_ context.Context, id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	c.invalidated = append(c.invalidated, id)
	return nil
}

type mockAlertRepo struct {
	mu         sync.Mutex
	created    []domain.Alert
	existsFn   func(ctx context.Context, topic string, since time.Time) (bool, error)
	createFn   func(ctx context.Context, a *domain.Alert) error
	listRecent func(ctx context.Context, limit int) ([]domain.Alert, error)
}

func (m *mockAlertRepo) Create(ctx context.Context, a *domain.Alert) error {
	if m.createFn != nil {
		if err := m.createFn(ctx, a); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, *a)
	return nil
}

func (m *mockAlertRepo) ExistsForTopicSince(ctx context.Context, topic string, since time.Time) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, topic, since)
	}
	return false, nil
}

func (m *mockAlertRepo) ListRecent(ctx context.Context, limit int) ([]domain.Alert, error) {
	if m.listRecent != nil {
		return m.listRecent(ctx, limit)
	}
	return []domain.Alert{}, nil
}

func (m *mockAlertRepo) getCreated() []domain.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Alert, len(m.created))
	copy(out, m.created)
	return out
}

type mockLeadership struct {
	acquireFn func(ctx context.Context) (bool, error)
}

func (m *mockLeadership) Acquire(ctx context.Context) (bool, error) {
	if m.acquireFn != nil {
		return m.acquireFn(ctx)
	}
	return false, fmt.Errorf("not implemented")
}
