package app

import (
	"cmp"
	"context"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/WamalwaSydney/civicpulse/internal/adapter/metrics"
	"github.com/WamalwaSydney/civicpulse/internal/classifier"
	"github.com/WamalwaSydney/civicpulse/internal/domain"
)

const (
	minFeedbackLength = 5
	maxFeedbackLength = 5000

	defaultPerPage = 20
	maxPerPage     = 100

	defaultStatsDays = 30
	maxStatsDays     = 365
	statsTopN        = 10
)

type SubmitFeedbackRequest struct {
	UserID   string
	Content  string
	Location string
	Gender   string
	Contact  string
	Language string
	Source   string
}

// NamedCount is one row of a top-N breakdown.
type NamedCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type FeedbackStats struct {
	Days             int                           `json:"days"`
	Total            int                           `json:"total_feedback"`
	AverageSentiment float64                       `json:"average_sentiment"`
	Distribution     map[domain.SentimentLabel]int `json:"sentiment_distribution"`
	TopCategories    []NamedCount                  `json:"top_categories"`
	TopLocations     []NamedCount                  `json:"top_locations"`
}

type FeedbackService struct {
	repo       domain.FeedbackRepository
	classifier *classifier.Classifier
	metrics    *metrics.FeedbackMetrics
	clock      clockwork.Clock
}

func NewFeedbackService(repo domain.FeedbackRepository, c *classifier.Classifier, m *metrics.FeedbackMetrics, clock clockwork.Clock) *FeedbackService {
	return &FeedbackService{repo: repo, classifier: c, metrics: m, clock: clock}
}

// Submit validates, classifies and stores one piece of citizen feedback.
// A location given by the submitter wins over the inferred one.
func (s *FeedbackService) Submit(ctx context.Context, req SubmitFeedbackRequest) (*domain.FeedbackItem, error) {
	content := strings.TrimSpace(req.Content)
	if n := utf8.RuneCountInString(content); n < minFeedbackLength {
		return nil, domain.NewValidationError("content", "must be at least 5 characters")
	} else if n > maxFeedbackLength {
		return nil, domain.NewValidationError("content", "must be at most 5000 characters")
	}

	source := cmp.Or(strings.TrimSpace(req.Source), domain.SourceWeb)
	if source != domain.SourceWeb && source != domain.SourceSMS {
		return nil, domain.NewValidationError("source", "must be web or sms")
	}

	result := s.classifier.ClassifyWithLocation(content, strings.TrimSpace(req.Location))

	item := &domain.FeedbackItem{
		ID:             uuid.New(),
		UserID:         cmp.Or(strings.TrimSpace(req.UserID), domain.AnonymousUser),
		Content:        content,
		Location:       result.Location,
		Gender:         strings.TrimSpace(req.Gender),
		Contact:        strings.TrimSpace(req.Contact),
		Language:       cmp.Or(strings.TrimSpace(req.Language), "en"),
		Source:         source,
		SentimentScore: result.Score,
		Tags:           result.Tags,
		IsProcessed:    true,
		CreatedAt:      s.clock.Now().UTC(),
	}

	if err := s.repo.Create(ctx, item); err != nil {
		return nil, err
	}

	s.record(result)
	slog.InfoContext(ctx, "Feedback submitted",
		"feedback_id", item.ID.String(),
		"sentiment", result.Label,
		"tags", result.Tags,
		"location", item.Location,
	)
	return item, nil
}

func (s *FeedbackService) record(result classifier.Result) {
	if s.metrics == nil {
		return
	}
	s.metrics.Classified.WithLabelValues(string(result.Label)).Inc()
	s.metrics.Score.Observe(result.Score)
	for _, tag := range result.Tags {
		s.metrics.TagsAssigned.WithLabelValues(tag).Inc()
	}
}

// List clamps paging: page starts at 1, per_page defaults to 20 and is capped at 100.
func (s *FeedbackService) List(ctx context.Context, filter domain.FeedbackFilter) (*domain.FeedbackPage, error) {
	filter.Page = max(filter.Page, 1)
	if filter.PerPage <= 0 {
		filter.PerPage = defaultPerPage
	}
	filter.PerPage = min(filter.PerPage, maxPerPage)
	filter.Location = strings.TrimSpace(filter.Location)
	return s.repo.List(ctx, filter)
}

func (s *FeedbackService) Get(ctx context.Context, id uuid.UUID) (*domain.FeedbackItem, error) {
	return s.repo.GetByID(ctx, id)
}

// Classify previews the classification of text without storing anything.
func (s *FeedbackService) Classify(text string) (classifier.Result, error) {
	if strings.TrimSpace(text) == "" {
		return classifier.Result{}, domain.NewValidationError("text", "is required")
	}
	return s.classifier.Classify(text), nil
}

// Stats aggregates processed feedback of the last days days (default 30, max 365).
func (s *FeedbackService) Stats(ctx context.Context, days int) (*FeedbackStats, error) {
	if days <= 0 {
		days = defaultStatsDays
	}
	days = min(days, maxStatsDays)

	since := s.clock.Now().Add(-time.Duration(days) * 24 * time.Hour)
	items, err := s.repo.ListProcessedSince(ctx, since)
	if err != nil {
		return nil, err
	}

	stats := &FeedbackStats{
		Days:  days,
		Total: len(items),
		Distribution: map[domain.SentimentLabel]int{
			domain.SentimentPositive: 0,
			domain.SentimentNeutral:  0,
			domain.SentimentNegative: 0,
		},
	}

	var sum float64
	categories := map[string]int{}
	locations := map[string]int{}
	for _, item := range items {
		sum += item.SentimentScore
		stats.Distribution[item.SentimentLabel()]++
		for _, tag := range item.Tags {
			categories[tag]++
		}
		if item.Location != "" {
			locations[item.Location]++
		}
	}
	if len(items) > 0 {
		stats.AverageSentiment = math.Round(sum/float64(len(items))*1000) / 1000
	}
	stats.TopCategories = topN(categories, statsTopN)
	stats.TopLocations = topN(locations, statsTopN)
	return stats, nil
}

// topN orders by count descending, then name, so ties are stable.
func topN(counts map[string]int, n int) []NamedCount {
	out := make([]NamedCount, 0, len(counts))
	for name, count := range counts {
		out = append(out, NamedCount{Name: name, Count: count})
	}
	slices.SortFunc(out, func(a, b NamedCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
