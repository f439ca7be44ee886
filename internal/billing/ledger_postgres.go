package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"coincall/internal/accounts"
	"coincall/pkg/utils"
)

// PostgresLedger implements Ledger over ledger_entries, admin_adjustments and the
// accounts.coin_balance cache.
//
// It relies on UNIQUE (reference, user_id, entry_type) on ledger_entries; the constraint,
// not application locking, is what makes settlement exactly-once. Each posting locks the
// account row, inserts the entry and moves the balance in one transaction.
type PostgresLedger struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db, clock: time.Now}
}

type execQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (l *PostgresLedger) Post(ctx context.Context, e LedgerEntry) (LedgerEntry, bool, error) {
	var out LedgerEntry
	var created bool
	err := utils.WithTx(ctx, l.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		out, created, err = l.postTx(ctx, tx, e)
		return err
	})
	if err != nil {
		return LedgerEntry{}, false, err
	}
	return out, created, nil
}

func (l *PostgresLedger) PostAdjustment(ctx context.Context, adj Adjustment, e LedgerEntry) (Adjustment, LedgerEntry, bool, error) {
	var outAdj Adjustment
	var outEntry LedgerEntry
	var created bool

	err := utils.WithTx(ctx, l.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		stored, ok, err := l.postTx(ctx, tx, e)
		if err != nil {
			return err
		}
		outEntry = stored
		created = ok
		if !ok {
			existing, err := findAdjustment(ctx, tx, stored.ID)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
			outAdj = existing
			return nil
		}

		adj.LedgerEntryID = stored.ID
		const q = `
INSERT INTO admin_adjustments (
  id, idempotency_key, user_id, entry_type, amount, reason, call_id,
  admin_user_id, admin_role, ledger_entry_id, created_at
) VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''),$8,$9,$10,$11)
`
		if _, err := tx.ExecContext(ctx, q,
			adj.ID, adj.IdempotencyKey, adj.UserID, adj.Type, adj.Amount, adj.Reason, adj.CallID,
			adj.AdminUserID, adj.AdminRole, adj.LedgerEntryID, adj.CreatedAt,
		); err != nil {
			return err
		}
		outAdj = adj
		return nil
	})
	if err != nil {
		return Adjustment{}, LedgerEntry{}, false, err
	}
	return outAdj, outEntry, created, nil
}

// postTx locks the account row before the insert so Rebuild cannot read the new entry
// without its delta.
func (l *PostgresLedger) postTx(ctx context.Context, tx *sql.Tx, e LedgerEntry) (LedgerEntry, bool, error) {
	bal, err := accounts.LockBalance(ctx, tx, e.UserID)
	if err != nil {
		return LedgerEntry{}, false, fmt.Errorf("%w: user %s: %v", ErrBalanceNotApplied, e.UserID, err)
	}
	stored, created, err := insertEntry(ctx, tx, e)
	if err != nil || !created {
		return stored, false, err
	}
	if err := accounts.StoreBalance(ctx, tx, e.UserID, bal+e.Amount, l.clock()); err != nil {
		return LedgerEntry{}, false, fmt.Errorf("%w: user %s: %v", ErrBalanceNotApplied, e.UserID, err)
	}
	return stored, true, nil
}

func (l *PostgresLedger) Rebuild(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, ErrInvalidArgument
	}
	var sum int64
	err := utils.WithTx(ctx, l.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		// Lock first: the sum below then runs on a snapshot taken after any posting that
		// held the row has committed.
		if _, err := accounts.LockBalance(ctx, tx, userID); err != nil {
			return err
		}
		const q = `SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE user_id = $1`
		if err := tx.QueryRowContext(ctx, q, userID).Scan(&sum); err != nil {
			return err
		}
		return accounts.StoreBalance(ctx, tx, userID, sum, l.clock())
	})
	if err != nil {
		return 0, err
	}
	return sum, nil
}

func (l *PostgresLedger) Drifted(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	const q = `
SELECT a.user_id
FROM accounts a
LEFT JOIN (
  SELECT user_id, SUM(amount) AS total
  FROM ledger_entries
  GROUP BY user_id
) l ON l.user_id = a.user_id
WHERE a.coin_balance <> COALESCE(l.total, 0)
ORDER BY a.user_id
LIMIT $1
`
	rows, err := l.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func insertEntry(ctx context.Context, db execQuerier, e LedgerEntry) (LedgerEntry, bool, error) {
	if e.Reference == "" || e.UserID == "" || e.Type == "" {
		return LedgerEntry{}, false, ErrInvalidArgument
	}
	const ins = `
INSERT INTO ledger_entries (id, reference, user_id, entry_type, amount, metadata, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (reference, user_id, entry_type) DO NOTHING
RETURNING id
`
	var id string
	err := db.QueryRowContext(ctx, ins, e.ID, e.Reference, e.UserID, e.Type, e.Amount, e.Metadata, e.CreatedAt).Scan(&id)
	if err == nil {
		return e, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return LedgerEntry{}, false, err
	}

	const sel = `
SELECT id, reference, user_id, entry_type, amount, COALESCE(metadata, ''), created_at
FROM ledger_entries
WHERE reference = $1 AND user_id = $2 AND entry_type = $3
`
	var existing LedgerEntry
	if err := db.QueryRowContext(ctx, sel, e.Reference, e.UserID, e.Type).Scan(
		&existing.ID,
		&existing.Reference,
		&existing.UserID,
		&existing.Type,
		&existing.Amount,
		&existing.Metadata,
		&existing.CreatedAt,
	); err != nil {
		return LedgerEntry{}, false, err
	}
	return existing, false, nil
}

func findAdjustment(ctx context.Context, tx *sql.Tx, ledgerEntryID string) (Adjustment, error) {
	const q = `
SELECT id, idempotency_key, user_id, entry_type, amount, reason, COALESCE(call_id, ''),
       admin_user_id, admin_role, ledger_entry_id, created_at
FROM admin_adjustments
WHERE ledger_entry_id = $1
`
	var a Adjustment
	if err := tx.QueryRowContext(ctx, q, ledgerEntryID).Scan(
		&a.ID,
		&a.IdempotencyKey,
		&a.UserID,
		&a.Type,
		&a.Amount,
		&a.Reason,
		&a.CallID,
		&a.AdminUserID,
		&a.AdminRole,
		&a.LedgerEntryID,
		&a.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Adjustment{}, ErrNotFound
		}
		return Adjustment{}, err
	}
	return a, nil
}

func (l *PostgresLedger) ListByReference(ctx context.Context, reference string) ([]LedgerEntry, error) {
	const q = `
SELECT id, reference, user_id, entry_type, amount, COALESCE(metadata, ''), created_at
FROM ledger_entries
WHERE reference = $1
ORDER BY created_at ASC
`
	return l.list(ctx, q, reference)
}

func (l *PostgresLedger) ListByUser(ctx context.Context, userID string, limit int) ([]LedgerEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	const q = `
SELECT id, reference, user_id, entry_type, amount, COALESCE(metadata, ''), created_at
FROM ledger_entries
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2
`
	return l.list(ctx, q, userID, limit)
}

// ListByUserBetween returns the user's entries created in [from, to), oldest first.
func (l *PostgresLedger) ListByUserBetween(ctx context.Context, userID string, from, to time.Time) ([]LedgerEntry, error) {
	const q = `
SELECT id, reference, user_id, entry_type, amount, COALESCE(metadata, ''), created_at
FROM ledger_entries
WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
ORDER BY created_at ASC
`
	return l.list(ctx, q, userID, from.UTC(), to.UTC())
}

func (l *PostgresLedger) SumByUser(ctx context.Context, userID string) (int64, error) {
	const q = `SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE user_id = $1`
	var sum int64
	if err := l.db.QueryRowContext(ctx, q, userID).Scan(&sum); err != nil {
		return 0, err
	}
	return sum, nil
}

func (l *PostgresLedger) list(ctx context.Context, q string, args ...any) ([]LedgerEntry, error) {
	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.ID, &e.Reference, &e.UserID, &e.Type, &e.Amount, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
