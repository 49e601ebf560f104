package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SentimentLabel is the coarse polarity bucket derived from a sentiment score.
type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "positive"
	SentimentNeutral  SentimentLabel = "neutral"
	SentimentNegative SentimentLabel = "negative"
)

// Label thresholds. A stored score is re-labelled with the same constants
// wherever it is filtered, so the label is never persisted on its own.
const (
	PositiveThreshold = 0.1
	NegativeThreshold = -0.1
)

// LabelForScore maps a score in [-1, 1] to its label.
func LabelForScore(score float64) SentimentLabel {
	switch {
	case score > PositiveThreshold:
		return SentimentPositive
	case score < NegativeThreshold:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

// ParseSentimentLabel returns the label and whether s named one.
func ParseSentimentLabel(s string) (SentimentLabel, bool) {
	switch SentimentLabel(s) {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
		return SentimentLabel(s), true
	default:
		return "", false
	}
}

// ScoreRange is a score interval used by storage filters. Exclusive bounds
// match the strict comparisons in LabelForScore.
type ScoreRange struct {
	Min, Max                   float64
	MinExclusive, MaxExclusive bool
}

// SentimentScoreRange returns the score interval that LabelForScore maps to label.
func SentimentScoreRange(label SentimentLabel) ScoreRange {
	switch label {
	case SentimentPositive:
		return ScoreRange{Min: PositiveThreshold, Max: 1, MinExclusive: true}
	case SentimentNegative:
		return ScoreRange{Min: -1, Max: NegativeThreshold, MaxExclusive: true}
	default:
		return ScoreRange{Min: NegativeThreshold, Max: PositiveThreshold}
	}
}

// Category identifiers for civic-issue topics.
const (
	CategoryWaterSupply    = "water_supply"
	CategoryInfrastructure = "infrastructure"
	CategoryHealthcare     = "healthcare"
	CategoryEducation      = "education"
	CategorySecurity       = "security"
	CategoryCorruption     = "corruption"
	CategoryEnvironment    = "environment"
)

const (
	SourceWeb = "web"
	SourceSMS = "sms"

	AnonymousUser = "anonymous"
)

type FeedbackItem struct {
	ID             uuid.UUID
	UserID         string
	Content        string
	Location       string
	Gender         string
	Contact        string
	Language       string
	Source         string
	SentimentScore float64
	Tags           []string
	IsProcessed    bool
	CreatedAt      time.Time
}

// SentimentLabel is always recomputed from the stored score.
func (f FeedbackItem) SentimentLabel() SentimentLabel {
	return LabelForScore(f.SentimentScore)
}

type FeedbackFilter struct {
	Sentiment SentimentLabel // empty means no filter
	Location  string         // case-insensitive substring
	Page      int
	PerPage   int
}

type FeedbackPage struct {
	Items   []FeedbackItem
	Total   int
	Pages   int
	Page    int
	PerPage int
}

// LocationSentiment aggregates feedback for one location.
type LocationSentiment struct {
	Location     string
	AvgSentiment float64
	Count        int
}

type FeedbackRepository interface {
	Create(ctx context.Context, item *FeedbackItem) error
	GetByID(ctx context.Context, id uuid.UUID) (*FeedbackItem, error)
	List(ctx context.Context, filter FeedbackFilter) (*FeedbackPage, error)
	ListProcessedSince(ctx context.Context, since time.Time) ([]FeedbackItem, error)
	Count(ctx context.Context) (int, error)
	SentimentByLocation(ctx context.Context) ([]LocationSentiment, error)
}
