package billing

import (
	"context"
	"errors"
	"time"
)

// LedgerEntry is an immutable coin movement.
//
// Invariants:
// - (Reference, UserID, Type) is unique. For call settlement Reference is the call id, so a
//   call can produce at most one SPENT and one EARNED entry per user.
// - Entries are never updated or deleted; a user's balance is the sum of their entries.
type LedgerEntry struct {
	ID        string    `json:"id" db:"id"`
	Reference string    `json:"reference" db:"reference"`
	UserID    string    `json:"user_id" db:"user_id"`
	Type      EntryType `json:"entry_type" db:"entry_type"`

	// Amount is signed: SPENT is negative, everything else positive.
	Amount int64 `json:"amount" db:"amount"`

	Metadata  string    `json:"metadata,omitempty" db:"metadata"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EntryType string

const (
	EntryTypeSpent  EntryType = "SPENT"
	EntryTypeEarned EntryType = "EARNED"
	EntryTypeRefund EntryType = "REFUND"
	EntryTypeBonus  EntryType = "BONUS"
)

func (t EntryType) IsAdjustment() bool { return t == EntryTypeRefund || t == EntryTypeBonus }

// Adjustment is an admin action that produced a REFUND or BONUS ledger entry.
type Adjustment struct {
	ID             string    `json:"id" db:"id"`
	IdempotencyKey string    `json:"idempotency_key" db:"idempotency_key"`
	UserID         string    `json:"user_id" db:"user_id"`
	Type           EntryType `json:"entry_type" db:"entry_type"`
	Amount         int64     `json:"amount" db:"amount"`
	Reason         string    `json:"reason" db:"reason"`
	CallID         string    `json:"call_id,omitempty" db:"call_id"`

	AdminUserID string `json:"admin_user_id" db:"admin_user_id"`
	AdminRole   string `json:"admin_role" db:"admin_role"`

	LedgerEntryID string    `json:"ledger_entry_id" db:"ledger_entry_id"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

var (
	ErrNotFound        = errors.New("billing: not found")
	ErrInvalidArgument = errors.New("billing: invalid argument")
	// ErrBalanceNotApplied means an entry could not be posted because its balance update
	// failed. Neither the entry nor the delta was written; posting again is safe.
	ErrBalanceNotApplied = errors.New("billing: balance not applied")
	ErrSettlementBusy    = errors.New("billing: settlement in progress elsewhere")
)

// Ledger persists ledger entries together with the cached balances derived from them.
//
// Post and PostAdjustment store an entry unless one with the same (Reference, UserID, Type)
// exists, and apply its amount to the user's cached balance in the same transaction. They
// return the stored entry and whether this call created it.
type Ledger interface {
	Post(ctx context.Context, e LedgerEntry) (LedgerEntry, bool, error)
	PostAdjustment(ctx context.Context, adj Adjustment, e LedgerEntry) (Adjustment, LedgerEntry, bool, error)
	// Rebuild sets the cached balance to the ledger sum, serialized with Post for that user.
	Rebuild(ctx context.Context, userID string) (int64, error)
	// Drifted lists users whose cached balance differs from their ledger sum.
	Drifted(ctx context.Context, limit int) ([]string, error)
	ListByReference(ctx context.Context, reference string) ([]LedgerEntry, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]LedgerEntry, error)
	SumByUser(ctx context.Context, userID string) (int64, error)
}

// Balances reads the cached balance column of the profile store.
type Balances interface {
	GetBalance(ctx context.Context, userID string) (int64, error)
}

// Auditor records admin adjustments. Best effort.
type Auditor interface {
	LogAdjustment(ctx context.Context, actorUserID, actorRole, userID, entryType string, amount int64, reason, reference string) error
}
