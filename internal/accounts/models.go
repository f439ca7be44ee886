package accounts

import (
	"context"
	"errors"
	"time"
)

// Account is the profile-store view the call core depends on.
//
// CoinBalance is a cache derived from the billing ledger: the sum of a user's ledger entries
// is authoritative and Reconcile can always rebuild this column from it.
type Account struct {
	UserID      string `json:"user_id" db:"user_id"`
	Role        string `json:"role" db:"role"`
	DisplayName string `json:"display_name" db:"display_name"`
	CoinBalance int64  `json:"coin_balance" db:"coin_balance"`

	// CallRate is the per-minute coin rate charged to callers of this user.
	CallRate int64 `json:"call_rate" db:"call_rate"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

var (
	ErrNotFound        = errors.New("accounts: not found")
	ErrInvalidArgument = errors.New("accounts: invalid argument")
)

// Store is the profile/account store contract.
type Store interface {
	Get(ctx context.Context, userID string) (Account, error)
	GetBalance(ctx context.Context, userID string) (int64, error)
	GetCallRate(ctx context.Context, userID string) (int64, error)
	// Upsert never touches the balance; it moves only with ledger entries.
	Upsert(ctx context.Context, a Account) error
}
