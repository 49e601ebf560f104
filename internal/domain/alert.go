package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const SeverityMedium = "medium"

// Alert flags a topic that is trending in recent feedback.
type Alert struct {
	ID                uuid.UUID
	Topic             string
	Severity          string
	AffectedLocations []string
	CreatedAt         time.Time
}

type AlertRepository interface {
	Create(ctx context.Context, a *Alert) error
	// ExistsForTopicSince reports whether an alert for topic was raised at or after since.
	ExistsForTopicSince(ctx context.Context, topic string, since time.Time) (bool, error)
	ListRecent(ctx context.Context, limit int) ([]Alert, error)
}
