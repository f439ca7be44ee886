package calls

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"coincall/pkg/utils"
)

// PostgresRepo implements Repository over the calls table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const callColumns = `
id, caller_id, receiver_id, medium, rate_per_minute, status,
created_at, started_at, receiver_joined_at, ended_at,
coins_spent_by_caller, coins_earned_by_receiver,
COALESCE(upgraded_from::text, ''), COALESCE(end_reason, ''), settled_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (CallRecord, error) {
	var c CallRecord
	err := row.Scan(
		&c.ID,
		&c.CallerID,
		&c.ReceiverID,
		&c.Medium,
		&c.RatePerMinute,
		&c.Status,
		&c.CreatedAt,
		&c.StartedAt,
		&c.ReceiverJoinedAt,
		&c.EndedAt,
		&c.CoinsSpentByCaller,
		&c.CoinsEarnedByReceiver,
		&c.UpgradedFrom,
		&c.EndReason,
		&c.SettledAt,
		&c.UpdatedAt,
	)
	return c, err
}

func (r *PostgresRepo) Create(ctx context.Context, c CallRecord) error {
	const q = `
INSERT INTO calls (
  id, caller_id, receiver_id, medium, rate_per_minute, status,
  created_at, upgraded_from, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8,'')::uuid,$9)
`
	_, err := r.db.ExecContext(ctx, q,
		c.ID, c.CallerID, c.ReceiverID, c.Medium, c.RatePerMinute, c.Status,
		c.CreatedAt, c.UpgradedFrom, c.UpdatedAt,
	)
	if utils.IsUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (CallRecord, error) {
	q := `SELECT ` + callColumns + ` FROM calls WHERE id = $1`
	c, err := scanCall(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallRecord{}, ErrNotFound
		}
		return CallRecord{}, err
	}
	return c, nil
}

func (r *PostgresRepo) CompareAndSwap(ctx context.Context, expected Status, next CallRecord) error {
	const q = `
UPDATE calls
SET status = $3,
    started_at = $4,
    receiver_joined_at = $5,
    ended_at = $6,
    end_reason = NULLIF($7,''),
    updated_at = $8
WHERE id = $1 AND status = $2
`
	res, err := r.db.ExecContext(ctx, q,
		next.ID, expected, next.Status,
		next.StartedAt, next.ReceiverJoinedAt, next.EndedAt,
		next.EndReason, next.UpdatedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	if _, err := r.Get(ctx, next.ID); err != nil {
		return err
	}
	return ErrConflict
}

func (r *PostgresRepo) ListRinging(ctx context.Context, receiverID string, since time.Time) ([]CallRecord, error) {
	q := `SELECT ` + callColumns + `
FROM calls
WHERE receiver_id = $1 AND status IN ('PENDING','CONNECTING') AND created_at >= $2
ORDER BY created_at DESC`
	return r.list(ctx, q, receiverID, since)
}

func (r *PostgresRepo) ListRingingBefore(ctx context.Context, cutoff time.Time, limit int) ([]CallRecord, error) {
	q := `SELECT ` + callColumns + `
FROM calls
WHERE status IN ('PENDING','CONNECTING') AND created_at < $1
ORDER BY created_at ASC
LIMIT $2`
	return r.list(ctx, q, cutoff, pageSize(limit))
}

func (r *PostgresRepo) ListUnsettled(ctx context.Context, limit int) ([]CallRecord, error) {
	q := `SELECT ` + callColumns + `
FROM calls
WHERE status IN ('ENDED','MISSED','REJECTED','CANCELLED') AND settled_at IS NULL
ORDER BY updated_at ASC
LIMIT $1`
	return r.list(ctx, q, pageSize(limit))
}

func (r *PostgresRepo) MarkSettled(ctx context.Context, id string, s Settlement, at time.Time) error {
	const q = `
UPDATE calls
SET settled_at = $2, coins_spent_by_caller = $3, coins_earned_by_receiver = $4
WHERE id = $1 AND settled_at IS NULL
`
	_, err := r.db.ExecContext(ctx, q, id, at.UTC(), s.CoinsSpent, s.CoinsEarned)
	return err
}

func (r *PostgresRepo) list(ctx context.Context, q string, args ...any) ([]CallRecord, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CallRecord
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func pageSize(limit int) int {
	if limit <= 0 || limit > 500 {
		return 500
	}
	return limit
}
