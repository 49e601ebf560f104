package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/WamalwaSydney/civicpulse/internal/domain"
)

type AlertRepo struct {
	pool *pgxpool.Pool
}

func NewAlertRepo(pool *pgxpool.Pool) *AlertRepo {
	return &AlertRepo{pool: pool}
}

func (r *AlertRepo) Create(ctx context.Context, a *domain.Alert) error {
	locations := a.AffectedLocations
	if locations == nil {
		locations = []string{}
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO alerts (id, topic, severity, affected_locations, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, a.ID, a.Topic, a.Severity, locations, a.CreatedAt)
	return domain.NewStorageError("insert alert", err)
}

func (r *AlertRepo) ExistsForTopicSince(ctx context.Context, topic string, since time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM alerts WHERE topic = $1 AND created_at >= $2)
	`, topic, since).Scan(&exists)
	if err != nil {
		return false, domain.NewStorageError("check alert", err)
	}
	return exists, nil
}

func (r *AlertRepo) ListRecent(ctx context.Context, limit int) ([]domain.Alert, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, topic, severity, affected_locations, created_at
		FROM alerts
		ORDER BY created_at DESC, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, domain.NewStorageError("list alerts", err)
	}
	defer rows.Close()

	alerts := []domain.Alert{}
	for rows.Next() {
		var a domain.Alert
		if err := rows.Scan(&a.ID, &a.Topic, &a.Severity, &a.AffectedLocations, &a.CreatedAt); err != nil {
			return nil, domain.NewStorageError("scan alert", err)
		}
		if a.AffectedLocations == nil {
			a.AffectedLocations = []string{}
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("list alerts", err)
	}
	return alerts, nil
}
