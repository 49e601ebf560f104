package httpserver

import (
	"time"

	"github.com/google/uuid"

	"github.com/WamalwaSydney/civicpulse/internal/app"
	"github.com/WamalwaSydney/civicpulse/internal/domain"
)

// feedbackResponse omits the submitter's contact details.
type feedbackResponse struct {
	ID             uuid.UUID             `json:"id"`
	UserID         string                `json:"user_id"`
	Content        string                `json:"content"`
	Location       string                `json:"location,omitempty"`
	Language       string                `json:"language"`
	Source         string                `json:"source"`
	SentimentScore float64               `json:"sentiment_score"`
	SentimentLabel domain.SentimentLabel `json:"sentiment_label"`
	Tags           []string              `json:"tags"`
	IsProcessed    bool                  `json:"is_processed"`
	CreatedAt      time.Time             `json:"created_at"`
}

func toFeedbackResponse(f domain.FeedbackItem) feedbackResponse {
	tags := f.Tags
	if tags == nil {
		tags = []string{}
	}
	return feedbackResponse{
		ID:             f.ID,
		UserID:         f.UserID,
		Content:        f.Content,
		Location:       f.Location,
		Language:       f.Language,
		Source:         f.Source,
		SentimentScore: f.SentimentScore,
		SentimentLabel: f.SentimentLabel(),
		Tags:           tags,
		IsProcessed:    f.IsProcessed,
		CreatedAt:      f.CreatedAt,
	}
}

type feedbackPageResponse struct {
	Feedback []feedbackResponse `json:"feedback"`
	Total    int                `json:"total"`
	Pages    int                `json:"pages"`
	Page     int                `json:"page"`
	PerPage  int                `json:"per_page"`
}

func toFeedbackPageResponse(p *domain.FeedbackPage) feedbackPageResponse {
	items := make([]feedbackResponse, 0, len(p.Items))
	for _, f := range p.Items {
		items = append(items, toFeedbackResponse(f))
	}
	return feedbackPageResponse{Feedback: items, Total: p.Total, Pages: p.Pages, Page: p.Page, PerPage: p.PerPage}
}

type pollResponse struct {
	ID         uuid.UUID            `json:"id"`
	Question   string               `json:"question"`
	Options    []domain.OptionTally `json:"options"`
	TotalVotes int                  `json:"total_votes"`
	IsActive   bool                 `json:"is_active"`
	CreatedBy  string               `json:"created_by"`
	CreatedAt  time.Time            `json:"created_at"`
	ExpiresAt  *time.Time           `json:"expires_at"`
}

func toPollResponse(v app.PollView) pollResponse {
	opts := v.Tally.Options
	if opts == nil {
		opts = []domain.OptionTally{}
	}
	return pollResponse{
		ID:         v.Poll.ID,
		Question:   v.Poll.Question,
		Options:    opts,
		TotalVotes: v.Tally.TotalVotes,
		IsActive:   v.IsActive,
		CreatedBy:  v.Poll.CreatedBy,
		CreatedAt:  v.Poll.CreatedAt,
		ExpiresAt:  v.Poll.ExpiresAt,
	}
}

func toPollResponses(views []app.PollView) []pollResponse {
	out := make([]pollResponse, 0, len(views))
	for _, v := range views {
		out = append(out, toPollResponse(v))
	}
	return out
}

type voteResponse struct {
	Status         string               `json:"status"`
	PollID         uuid.UUID            `json:"poll_id"`
	SelectedOption int                  `json:"selected_option"`
	TotalVotes     int                  `json:"total_votes"`
	Options        []domain.OptionTally `json:"options"`
}

type repairResponse struct {
	Total    int         `json:"total"`
	Fixed    int         `json:"fixed"`
	FixedIDs []uuid.UUID `json:"fixed_ids"`
	DryRun   bool        `json:"dry_run"`
}

type alertResponse struct {
	ID                uuid.UUID `json:"id"`
	Topic             string    `json:"topic"`
	Severity          string    `json:"severity"`
	AffectedLocations []string  `json:"affected_locations"`
	CreatedAt         time.Time `json:"created_at"`
}

func toAlertResponses(alerts []domain.Alert) []alertResponse {
	out := make([]alertResponse, 0, len(alerts))
	for _, a := range alerts {
		locs := a.AffectedLocations
		if locs == nil {
			locs = []string{}
		}
		out = append(out, alertResponse{
			ID:                a.ID,
			Topic:             a.Topic,
			Severity:          a.Severity,
			AffectedLocations: locs,
			CreatedAt:         a.CreatedAt,
		})
	}
	return out
}

type locationSentimentResponse struct {
	Location     string  `json:"location"`
	AvgSentiment float64 `json:"avg_sentiment"`
	Count        int     `json:"count"`
}

type pollSummaryResponse struct {
	ID         uuid.UUID  `json:"id"`
	Question   string     `json:"question"`
	TotalVotes int        `json:"total_votes"`
	ExpiresAt  *time.Time `json:"expires_at"`
}

type dashboardResponse struct {
	TotalFeedback int                         `json:"total_feedback"`
	Locations     []locationSentimentResponse `json:"locations"`
	ActivePolls   []pollSummaryResponse       `json:"active_polls"`
	RecentAlerts  []alertResponse             `json:"recent_alerts"`
	GeneratedAt   time.Time                   `json:"generated_at"`
}

func toDashboardResponse(d *app.Dashboard) dashboardResponse {
	locs := make([]locationSentimentResponse, 0, len(d.Locations))
	for _, l := range d.Locations {
		locs = append(locs, locationSentimentResponse{Location: l.Location, AvgSentiment: l.AvgSentiment, Count: l.Count})
	}
	polls := make([]pollSummaryResponse, 0, len(d.ActivePolls))
	for _, p := range d.ActivePolls {
		polls = append(polls, pollSummaryResponse{ID: p.ID, Question: p.Question, TotalVotes: p.TotalVotes, ExpiresAt: p.ExpiresAt})
	}
	return dashboardResponse{
		TotalFeedback: d.TotalFeedback,
		Locations:     locs,
		ActivePolls:   polls,
		RecentAlerts:  toAlertResponses(d.RecentAlerts),
		GeneratedAt:   d.GeneratedAt,
	}
}
