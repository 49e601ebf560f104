package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/WamalwaSydney/civicpulse/internal/domain"
)

const dashboardAlerts = 5

type PollSummary struct {
	ID         uuid.UUID
	Question   string
	TotalVotes int
	ExpiresAt  *time.Time
}

type Dashboard struct {
	TotalFeedback int
	Locations     []domain.LocationSentiment
	ActivePolls   []PollSummary
	RecentAlerts  []domain.Alert
	GeneratedAt   time.Time
}

type DashboardService struct {
	feedback domain.FeedbackRepository
	polls    *PollService
	alerts   *AlertService
	clock    clockwork.Clock
}

func NewDashboardService(feedback domain.FeedbackRepository, polls *PollService, alerts *AlertService, clock clockwork.Clock) *DashboardService {
	return &DashboardService{feedback: feedback, polls: polls, alerts: alerts, clock: clock}
}

func (s *DashboardService) Snapshot(ctx context.Context) (*Dashboard, error) {
	total, err := s.feedback.Count(ctx)
	if err != nil {
		return nil, err
	}

	locations, err := s.feedback.SentimentByLocation(ctx)
	if err != nil {
		return nil, err
	}

	active, err := s.polls.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	summaries := make([]PollSummary, 0, len(active))
	for _, v := range active {
		summaries = append(summaries, PollSummary{
			ID:         v.Poll.ID,
			Question:   v.Poll.Question,
			TotalVotes: v.Tally.TotalVotes,
			ExpiresAt:  v.Poll.ExpiresAt,
		})
	}

	alerts, err := s.alerts.Recent(ctx, dashboardAlerts)
	if err != nil {
		return nil, err
	}

	return &Dashboard{
		TotalFeedback: total,
		Locations:     locations,
		ActivePolls:   summaries,
		RecentAlerts:  alerts,
		GeneratedAt:   s.clock.Now().UTC(),
	}, nil
}
