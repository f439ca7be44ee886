package accounts

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresStore implements Store over the accounts table.
type PostgresStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, clock: time.Now}
}

func (s *PostgresStore) Get(ctx context.Context, userID string) (Account, error) {
	const q = `
SELECT user_id, role, display_name, coin_balance, call_rate, updated_at
FROM accounts
WHERE user_id = $1
`
	var a Account
	if err := s.db.QueryRowContext(ctx, q, userID).Scan(
		&a.UserID,
		&a.Role,
		&a.DisplayName,
		&a.CoinBalance,
		&a.CallRate,
		&a.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func (s *PostgresStore) GetBalance(ctx context.Context, userID string) (int64, error) {
	a, err := s.Get(ctx, userID)
	if err != nil {
		return 0, err
	}
	return a.CoinBalance, nil
}

func (s *PostgresStore) GetCallRate(ctx context.Context, userID string) (int64, error) {
	a, err := s.Get(ctx, userID)
	if err != nil {
		return 0, err
	}
	return a.CallRate, nil
}

// LockBalance takes the row lock on userID's account inside tx and returns the cached balance.
// Every ledger write and rebuild locks the account first, so they serialize per user.
func LockBalance(ctx context.Context, tx *sql.Tx, userID string) (int64, error) {
	const q = `SELECT coin_balance FROM accounts WHERE user_id = $1 FOR UPDATE`
	var bal int64
	if err := tx.QueryRowContext(ctx, q, userID).Scan(&bal); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return bal, nil
}

// StoreBalance overwrites the cached balance inside tx. Callers hold the row lock.
func StoreBalance(ctx context.Context, tx *sql.Tx, userID string, balance int64, at time.Time) error {
	const q = `
UPDATE accounts
SET coin_balance = $2, updated_at = $3
WHERE user_id = $1
`
	res, err := tx.ExecContext(ctx, q, userID, balance, at.UTC())
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Upsert(ctx context.Context, a Account) error {
	if a.UserID == "" {
		return ErrInvalidArgument
	}
	const q = `
INSERT INTO accounts (user_id, role, display_name, coin_balance, call_rate, updated_at)
VALUES ($1,$2,$3,0,$4,$5)
ON CONFLICT (user_id)
DO UPDATE SET role = EXCLUDED.role,
              display_name = EXCLUDED.display_name,
              call_rate = EXCLUDED.call_rate,
              updated_at = EXCLUDED.updated_at
`
	// coin_balance is never written here; balances move only through the ledger.
	_, err := s.db.ExecContext(ctx, q, a.UserID, a.Role, a.DisplayName, a.CallRate, s.clock().UTC())
	return err
}
