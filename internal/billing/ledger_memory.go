package billing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

type entryKey struct {
	reference string
	userID    string
	typ       EntryType
}

// BalanceCache is the balance column MemoryLedger keeps in step with its entries.
type BalanceCache interface {
	ApplyDelta(ctx context.Context, userID string, delta int64) (int64, error)
	SetBalance(ctx context.Context, userID string, balance int64) error
	Balances(ctx context.Context) (map[string]int64, error)
}

// MemoryLedger is an in-memory Ledger enforcing the same uniqueness as the Postgres schema.
// Its mutex plays the role of the account row lock: postings and rebuilds never interleave.
type MemoryLedger struct {
	mu          sync.Mutex
	cache       BalanceCache
	entries     map[entryKey]LedgerEntry
	order       []entryKey
	adjustments map[entryKey]Adjustment
}

// NewMemoryLedger returns a ledger that posts into cache. A nil cache keeps entries only.
func NewMemoryLedger(cache BalanceCache) *MemoryLedger {
	return &MemoryLedger{
		cache:       cache,
		entries:     map[entryKey]LedgerEntry{},
		adjustments: map[entryKey]Adjustment{},
	}
}

func (l *MemoryLedger) Post(ctx context.Context, e LedgerEntry) (LedgerEntry, bool, error) {
	if e.Reference == "" || e.UserID == "" || e.Type == "" {
		return LedgerEntry{}, false, ErrInvalidArgument
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.postLocked(ctx, e)
}

func (l *MemoryLedger) PostAdjustment(ctx context.Context, adj Adjustment, e LedgerEntry) (Adjustment, LedgerEntry, bool, error) {
	if e.Reference == "" || e.UserID == "" || !e.Type.IsAdjustment() {
		return Adjustment{}, LedgerEntry{}, false, ErrInvalidArgument
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	k := entryKey{reference: e.Reference, userID: e.UserID, typ: e.Type}
	out, created, err := l.postLocked(ctx, e)
	if err != nil {
		return Adjustment{}, LedgerEntry{}, false, err
	}
	if !created {
		return l.adjustments[k], out, false, nil
	}
	adj.LedgerEntryID = out.ID
	l.adjustments[k] = adj
	return adj, out, true, nil
}

// postLocked applies the delta before recording the entry so a failed update leaves neither.
func (l *MemoryLedger) postLocked(ctx context.Context, e LedgerEntry) (LedgerEntry, bool, error) {
	k := entryKey{reference: e.Reference, userID: e.UserID, typ: e.Type}
	if existing, ok := l.entries[k]; ok {
		return existing, false, nil
	}
	if l.cache != nil {
		if _, err := l.cache.ApplyDelta(ctx, e.UserID, e.Amount); err != nil {
			return LedgerEntry{}, false, fmt.Errorf("%w: user %s: %v", ErrBalanceNotApplied, e.UserID, err)
		}
	}
	out, created := l.insertLocked(e)
	return out, created, nil
}

func (l *MemoryLedger) Rebuild(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, ErrInvalidArgument
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	sum := l.sumLocked(userID)
	if l.cache != nil {
		if err := l.cache.SetBalance(ctx, userID, sum); err != nil {
			return 0, err
		}
	}
	return sum, nil
}

func (l *MemoryLedger) Drifted(ctx context.Context, limit int) ([]string, error) {
	if l.cache == nil {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	balances, err := l.cache.Balances(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for userID, bal := range balances {
		if bal != l.sumLocked(userID) {
			out = append(out, userID)
		}
	}
	sort.Strings(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *MemoryLedger) insertLocked(e LedgerEntry) (LedgerEntry, bool) {
	k := entryKey{reference: e.Reference, userID: e.UserID, typ: e.Type}
	if existing, ok := l.entries[k]; ok {
		return existing, false
	}
	l.entries[k] = e
	l.order = append(l.order, k)
	return e, true
}

func (l *MemoryLedger) ListByReference(_ context.Context, reference string) ([]LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []LedgerEntry
	for _, k := range l.order {
		if k.reference == reference {
			out = append(out, l.entries[k])
		}
	}
	return out, nil
}

func (l *MemoryLedger) ListByUser(_ context.Context, userID string, limit int) ([]LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []LedgerEntry
	for _, k := range l.order {
		if k.userID == userID {
			out = append(out, l.entries[k])
		}
	}
	// newest first
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListByUserBetween returns the user's entries created in [from, to), oldest first.
func (l *MemoryLedger) ListByUserBetween(_ context.Context, userID string, from, to time.Time) ([]LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []LedgerEntry
	for _, k := range l.order {
		e := l.entries[k]
		if k.userID == userID && !e.CreatedAt.Before(from) && e.CreatedAt.Before(to) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (l *MemoryLedger) SumByUser(_ context.Context, userID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sumLocked(userID), nil
}

func (l *MemoryLedger) sumLocked(userID string) int64 {
	var sum int64
	for k, e := range l.entries {
		if k.userID == userID {
			sum += e.Amount
		}
	}
	return sum
}

// Len is the number of stored entries.
func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
