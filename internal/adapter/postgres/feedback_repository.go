package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/WamalwaSydney/civicpulse/internal/domain"
	"github.com/WamalwaSydney/civicpulse/internal/platform/crypto"
)

// feedbackColumns must match the Scan order in scanFeedback.
const feedbackColumns = `id, user_id, content, location, gender, contact, language, source, sentiment_score, tags, is_processed, created_at`

// FeedbackRepo seals the contact column with cipher on write and opens it on read.
type FeedbackRepo struct {
	pool   *pgxpool.Pool
	cipher crypto.Cipher
}

// NewFeedbackRepo stores contacts in plaintext when cipher is nil.
func NewFeedbackRepo(pool *pgxpool.Pool, cipher crypto.Cipher) *FeedbackRepo {
	if cipher == nil {
		cipher = crypto.Plaintext{}
	}
	return &FeedbackRepo{pool: pool, cipher: cipher}
}

func (r *FeedbackRepo) openContacts(items []domain.FeedbackItem) error {
	for i := range items {
		contact, err := r.cipher.Open(items[i].Contact)
		if err != nil {
			return fmt.Errorf("open contact of %s: %w", items[i].ID, err)
		}
		items[i].Contact = contact
	}
	return nil
}

func scanFeedback(row pgx.Row) (*domain.FeedbackItem, error) {
	var f domain.FeedbackItem
	err := row.Scan(
		&f.ID, &f.UserID, &f.Content, &f.Location, &f.Gender, &f.Contact,
		&f.Language, &f.Source, &f.SentimentScore, &f.Tags, &f.IsProcessed, &f.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if f.Tags == nil {
		f.Tags = []string{}
	}
	return &f, nil
}

func collectFeedback(rows pgx.Rows) ([]domain.FeedbackItem, error) {
	defer rows.Close()

	items := []domain.FeedbackItem{}
	for rows.Next() {
		f, err := scanFeedback(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *f)
	}
	return items, rows.Err()
}

func (r *FeedbackRepo) Create(ctx context.Context, f *domain.FeedbackItem) error {
	tags := f.Tags
	if tags == nil {
		tags = []string{}
	}

	contact, err := r.cipher.Seal(f.Contact)
	if err != nil {
		return fmt.Errorf("seal contact: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO feedback (`+feedbackColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, f.ID, f.UserID, f.Content, f.Location, f.Gender, contact,
		f.Language, f.Source, f.SentimentScore, tags, f.IsProcessed, f.CreatedAt)
	return domain.NewStorageError("insert feedback", err)
}

func (r *FeedbackRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.FeedbackItem, error) {
	f, err := scanFeedback(r.pool.QueryRow(ctx,
		`SELECT `+feedbackColumns+` FROM feedback WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrFeedbackNotFound
	}
	if err != nil {
		return nil, domain.NewStorageError("get feedback", err)
	}
	if f.Contact, err = r.cipher.Open(f.Contact); err != nil {
		return nil, fmt.Errorf("open contact of %s: %w", f.ID, err)
	}
	return f, nil
}

// List pages through feedback newest first. Page and PerPage must already be
// valid (>= 1).
func (r *FeedbackRepo) List(ctx context.Context, filter domain.FeedbackFilter) (*domain.FeedbackPage, error) {
	where, args := feedbackFilterClause(filter)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM feedback`+where, args...).Scan(&total); err != nil {
		return nil, domain.NewStorageError("count feedback", err)
	}

	limitArg := len(args) + 1
	args = append(args, filter.PerPage, (filter.Page-1)*filter.PerPage)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM feedback%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		feedbackColumns, where, limitArg, limitArg+1,
	), args...)
	if err != nil {
		return nil, domain.NewStorageError("list feedback", err)
	}

	items, err := collectFeedback(rows)
	if err != nil {
		return nil, domain.NewStorageError("scan feedback", err)
	}
	if err := r.openContacts(items); err != nil {
		return nil, err
	}

	return &domain.FeedbackPage{
		Items:   items,
		Total:   total,
		Pages:   (total + filter.PerPage - 1) / filter.PerPage,
		Page:    filter.Page,
		PerPage: filter.PerPage,
	}, nil
}

// feedbackFilterClause derives the score interval from the shared label
// thresholds so stored scores are re-labelled exactly as the classifier does.
func feedbackFilterClause(filter domain.FeedbackFilter) (string, []any) {
	var conds []string
	var args []any

	if filter.Sentiment != "" {
		rng := domain.SentimentScoreRange(filter.Sentiment)
		minOp, maxOp := ">=", "<="
		if rng.MinExclusive {
			minOp = ">"
		}
		if rng.MaxExclusive {
			maxOp = "<"
		}
		args = append(args, rng.Min, rng.Max)
		conds = append(conds, fmt.Sprintf("sentiment_score %s $%d AND sentiment_score %s $%d", minOp, len(args)-1, maxOp, len(args)))
	}

	if loc := strings.TrimSpace(filter.Location); loc != "" {
		args = append(args, "%"+escapeLike(loc)+"%")
		conds = append(conds, fmt.Sprintf(`location ILIKE $%d ESCAPE '\'`, len(args)))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *FeedbackRepo) ListProcessedSince(ctx context.Context, since time.Time) ([]domain.FeedbackItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+feedbackColumns+` FROM feedback
		WHERE is_processed AND created_at >= $1
		ORDER BY created_at DESC
	`, since)
	if err != nil {
		return nil, domain.NewStorageError("list recent feedback", err)
	}

	items, err := collectFeedback(rows)
	if err != nil {
		return nil, domain.NewStorageError("scan feedback", err)
	}
	if err := r.openContacts(items); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *FeedbackRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM feedback`).Scan(&n); err != nil {
		return 0, domain.NewStorageError("count feedback", err)
	}
	return n, nil
}

func (r *FeedbackRepo) SentimentByLocation(ctx context.Context) ([]domain.LocationSentiment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT location, avg(sentiment_score), count(*)
		FROM feedback
		WHERE is_processed AND location <> ''
		GROUP BY location
		ORDER BY count(*) DESC, location
	`)
	if err != nil {
		return nil, domain.NewStorageError("aggregate feedback by location", err)
	}
	defer rows.Close()

	out := []domain.LocationSentiment{}
	for rows.Next() {
		var ls domain.LocationSentiment
		if err := rows.Scan(&ls.Location, &ls.AvgSentiment, &ls.Count); err != nil {
			return nil, domain.NewStorageError("scan location sentiment", err)
		}
		out = append(out, ls)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("aggregate feedback by location", err)
	}
	return out, nil
}
