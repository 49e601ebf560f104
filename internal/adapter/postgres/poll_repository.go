package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/WamalwaSydney/civicpulse/internal/domain"
	"github.com/WamalwaSydney/civicpulse/internal/poll"
)

const pollColumns = `id, question, options, created_by, created_at, expires_at`

// PollRepo stores polls with their options as a jsonb document. Reads always
// normalize the document, so legacy shapes never reach callers.
type PollRepo struct {
	pool *pgxpool.Pool

	// OnRepair, if set, is called whenever a read had to repair a stored document.
	OnRepair func(pollID uuid.UUID)
}

func NewPollRepo(pool *pgxpool.Pool) *PollRepo {
	return &PollRepo{pool: pool}
}

func (r *PollRepo) scanPoll(row pgx.Row) (*domain.Poll, error) {
	var p domain.Poll
	var raw []byte
	if err := row.Scan(&p.ID, &p.Question, &raw, &p.CreatedBy, &p.CreatedAt, &p.ExpiresAt); err != nil {
		return nil, err
	}

	opts, repaired := poll.NormalizeJSON(raw)
	if repaired {
		slog.Warn("Poll options repaired on read", "poll_id", p.ID)
		if r.OnRepair != nil {
			r.OnRepair(p.ID)
		}
	}
	p.Options = opts
	return &p, nil
}

func (r *PollRepo) collect(rows pgx.Rows) ([]domain.Poll, error) {
	defer rows.Close()

	polls := []domain.Poll{}
	for rows.Next() {
		p, err := r.scanPoll(rows)
		if err != nil {
			return nil, err
		}
		polls = append(polls, *p)
	}
	return polls, rows.Err()
}

func (r *PollRepo) Create(ctx context.Context, p *domain.Poll) error {
	doc, err := json.Marshal(poll.Normalize(p.Options))
	if err != nil {
		return domain.NewStorageError("encode poll options", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO polls (`+pollColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ID, p.Question, doc, p.CreatedBy, p.CreatedAt, p.ExpiresAt)
	return domain.NewStorageError("insert poll", err)
}

func (r *PollRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Poll, error) {
	p, err := r.scanPoll(r.pool.QueryRow(ctx, `SELECT `+pollColumns+` FROM polls WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPollNotFound
	}
	if err != nil {
		return nil, domain.NewStorageError("get poll", err)
	}
	return p, nil
}

func (r *PollRepo) ListActive(ctx context.Context, now time.Time) ([]domain.Poll, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+pollColumns+` FROM polls
		WHERE expires_at IS NULL OR expires_at >= $1
		ORDER BY created_at DESC
	`, now)
	if err != nil {
		return nil, domain.NewStorageError("list active polls", err)
	}
	polls, err := r.collect(rows)
	if err != nil {
		return nil, domain.NewStorageError("scan polls", err)
	}
	return polls, nil
}

func (r *PollRepo) ListAll(ctx context.Context) ([]domain.Poll, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+pollColumns+` FROM polls ORDER BY created_at DESC`)
	if err != nil {
		return nil, domain.NewStorageError("list polls", err)
	}
	polls, err := r.collect(rows)
	if err != nil {
		return nil, domain.NewStorageError("scan polls", err)
	}
	return polls, nil
}

// UpdateOptions locks the poll row, hands the current poll to fn and writes
// back what fn returns, all in one transaction. Concurrent updates of the
// same poll serialize on the row lock. Errors from fn are returned unchanged
// and nothing is written.
func (r *PollRepo) UpdateOptions(ctx context.Context, id uuid.UUID, fn domain.OptionsMutator) ([]domain.PollOption, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, domain.NewStorageError("begin transaction", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	p, err := r.scanPoll(tx.QueryRow(ctx, `SELECT `+pollColumns+` FROM polls WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPollNotFound
	}
	if err != nil {
		return nil, domain.NewStorageError("lock poll", err)
	}

	opts, err := fn(*p)
	if err != nil {
		return nil, err
	}

	doc, err := json.Marshal(opts)
	if err != nil {
		return nil, domain.NewStorageError("encode poll options", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE polls SET options = $2 WHERE id = $1`, id, doc); err != nil {
		return nil, domain.NewStorageError("update poll options", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, domain.NewCommitError("commit poll options", err)
	}
	return opts, nil
}

// ListRaw returns every poll's options document exactly as stored.
func (r *PollRepo) ListRaw(ctx context.Context) ([]domain.StoredPoll, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, options FROM polls ORDER BY created_at`)
	if err != nil {
		return nil, domain.NewStorageError("list raw polls", err)
	}
	defer rows.Close()

	out := []domain.StoredPoll{}
	for rows.Next() {
		var sp domain.StoredPoll
		if err := rows.Scan(&sp.ID, &sp.RawOptions); err != nil {
			return nil, domain.NewStorageError("scan raw poll", err)
		}
		out = append(out, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("list raw polls", err)
	}
	return out, nil
}

// RepairOptions reads the stored document under FOR UPDATE, so a vote that
// committed after ListRaw is part of what gets normalized.
func (r *PollRepo) RepairOptions(ctx context.Context, id uuid.UUID) ([]domain.PollOption, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, domain.NewStorageError("begin transaction", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	var raw []byte
	err = tx.QueryRow(ctx, `SELECT options FROM polls WHERE id = $1 FOR UPDATE`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, domain.ErrPollNotFound
	}
	if err != nil {
		return nil, false, domain.NewStorageError("lock poll", err)
	}

	opts, repaired := poll.NormalizeJSON(raw)
	if !repaired {
		return opts, false, nil
	}

	doc, err := json.Marshal(opts)
	if err != nil {
		return nil, false, domain.NewStorageError("encode poll options", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE polls SET options = $2 WHERE id = $1`, id, doc); err != nil {
		return nil, false, domain.NewStorageError("repair poll options", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, domain.NewCommitError("commit repaired options", err)
	}
	return opts, true, nil
}
