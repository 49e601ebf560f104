package app

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/WamalwaSydney/civicpulse/internal/adapter/metrics"
	"github.com/WamalwaSydney/civicpulse/internal/domain"
	"github.com/WamalwaSydney/civicpulse/internal/platform/correlation"
)

const maxRecentAlerts = 100

// AlertService raises an alert for every topic that trends in recent feedback.
type AlertService struct {
	feedback  domain.FeedbackRepository
	alerts    domain.AlertRepository
	metrics   *metrics.FeedbackMetrics
	clock     clockwork.Clock
	window    time.Duration
	threshold int
}

func NewAlertService(feedback domain.FeedbackRepository, alerts domain.AlertRepository, m *metrics.FeedbackMetrics, clock clockwork.Clock, window time.Duration, threshold int) *AlertService {
	return &AlertService{
		feedback:  feedback,
		alerts:    alerts,
		metrics:   m,
		clock:     clock,
		window:    window,
		threshold: threshold,
	}
}

type topicActivity struct {
	count     int
	locations []string
}

// CheckTrending counts tags of processed feedback inside the window. A tag
// reaching the threshold gets a medium alert unless one for it was already
// raised inside the same window. Failures for one topic do not stop the others.
func (s *AlertService) CheckTrending(ctx context.Context) ([]domain.Alert, error) {
	now := s.clock.Now().UTC()
	since := now.Add(-s.window)

	items, err := s.feedback.ListProcessedSince(ctx, since)
	if err != nil {
		s.countError()
		return nil, err
	}

	activity := map[string]*topicActivity{}
	for _, item := range items {
		for _, tag := range item.Tags {
			a, ok := activity[tag]
			if !ok {
				a = &topicActivity{locations: []string{}}
				activity[tag] = a
			}
			a.count++
			if item.Location != "" && !slices.Contains(a.locations, item.Location) {
				a.locations = append(a.locations, item.Location)
			}
		}
	}

	topics := make([]string, 0, len(activity))
	for topic, a := range activity {
		if a.count >= s.threshold {
			topics = append(topics, topic)
		}
	}
	slices.Sort(topics)

	created := []domain.Alert{}
	var errs []error
	for _, topic := range topics {
		exists, err := s.alerts.ExistsForTopicSince(ctx, topic, since)
		if err != nil {
			s.countError()
			errs = append(errs, err)
			continue
		}
		if exists {
			continue
		}

		alert := domain.Alert{
			ID:                uuid.New(),
			Topic:             topic,
			Severity:          domain.SeverityMedium,
			AffectedLocations: activity[topic].locations,
			CreatedAt:         now,
		}
		if err := s.alerts.Create(ctx, &alert); err != nil {
			s.countError()
			errs = append(errs, err)
			continue
		}

		if s.metrics != nil {
			s.metrics.AlertsCreated.WithLabelValues(topic).Inc()
		}
		slog.InfoContext(ctx, "Trending alert raised",
			"topic", topic,
			"mentions", activity[topic].count,
			"locations", alert.AffectedLocations,
		)
		created = append(created, alert)
	}

	return created, errors.Join(errs...)
}

func (s *AlertService) countError() {
	if s.metrics != nil {
		s.metrics.TrendingErrors.Inc()
	}
}

// Recent returns the newest alerts; n is clamped to 1..100.
func (s *AlertService) Recent(ctx context.Context, n int) ([]domain.Alert, error) {
	n = min(max(n, 1), maxRecentAlerts)
	return s.alerts.ListRecent(ctx, n)
}

// Leadership decides which instance runs a periodic job.
type Leadership interface {
	// Acquire returns true while this instance holds the lease.
	Acquire(ctx context.Context) (bool, error)
}

// TrendingTicker runs CheckTrending on a fixed interval.
type TrendingTicker struct {
	alerts   *AlertService
	leader   Leadership
	clock    clockwork.Clock
	interval time.Duration
}

// NewTrendingTicker returns a ticker. leader may be nil for single-instance
// deployments.
func NewTrendingTicker(alerts *AlertService, leader Leadership, clock clockwork.Clock, interval time.Duration) *TrendingTicker {
	return &TrendingTicker{alerts: alerts, leader: leader, clock: clock, interval: interval}
}

// Run blocks until ctx is cancelled.
func (t *TrendingTicker) Run(ctx context.Context) {
	ticker := t.clock.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			t.tick(ctx)
		}
	}
}

func (t *TrendingTicker) tick(ctx context.Context) {
	tickCtx := correlation.WithID(ctx, correlation.NewID())

	if t.leader != nil {
		ok, err := t.leader.Acquire(tickCtx)
		if err != nil {
			slog.WarnContext(tickCtx, "Trending: leader lease unavailable, checking anyway", "error", err)
		} else if !ok {
			slog.DebugContext(tickCtx, "Trending: another instance holds the lease")
			return
		}
	}

	alerts, err := t.alerts.CheckTrending(tickCtx)
	if err != nil {
		slog.ErrorContext(tickCtx, "Trending: check failed", "error", err)
	}
	if len(alerts) > 0 {
		slog.InfoContext(tickCtx, "Trending: alerts raised", "count", len(alerts))
	}
}
