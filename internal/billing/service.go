package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"coincall/internal/calls"
	"coincall/pkg/logger"

	"github.com/google/uuid"
)

// lockAttempts and lockBackoff bound how long Settle waits for a concurrent settler.
const (
	lockAttempts = 5
	lockBackoff  = 40 * time.Millisecond
)

// driftBatch bounds how many drifted balances one ReconcileDrift pass rebuilds.
const driftBatch = 200

// Service is the billing ledger.
//
// Money invariants:
// - No balance change without a ledger entry; both are written in one posting.
// - A balance delta is applied only by the posting that created the entry.
// - Ledger entries are immutable; Reconcile rebuilds the cached balance from their sum.
type Service struct {
	ledger   Ledger
	balances Balances
	locker   Locker
	auditor  Auditor
	tariff   Tariff

	// clock is injectable for deterministic tests.
	clock func() time.Time
}

type Options struct {
	Locker  Locker
	Auditor Auditor
	Tariff  Tariff
}

func NewService(ledger Ledger, balances Balances, opts Options) *Service {
	s := &Service{
		ledger:   ledger,
		balances: balances,
		locker:   opts.Locker,
		auditor:  opts.Auditor,
		tariff:   opts.Tariff,
		clock:    time.Now,
	}
	if s.locker == nil {
		s.locker = nopLocker{}
	}
	if s.tariff == (Tariff{}) {
		s.tariff = DefaultTariff()
	}
	if s.tariff.IncrementSeconds <= 0 {
		s.tariff.IncrementSeconds = 1
	}
	return s
}

// Settle writes the SPENT and EARNED entries for a terminal call. Calling it again for the
// same call is a no-op that returns the same settlement.
func (s *Service) Settle(ctx context.Context, rec calls.CallRecord) (calls.Settlement, error) {
	if rec.ID == "" || !rec.Status.IsTerminal() {
		return calls.Settlement{}, ErrInvalidArgument
	}
	q := s.tariff.Quote(rec.BillableSeconds(), rec.RatePerMinute)
	out := calls.Settlement{BillableSeconds: q.BillableSeconds, CoinsSpent: q.Spent, CoinsEarned: q.Earned}
	if q.Spent == 0 {
		return out, nil
	}

	release, err := s.lock(ctx, "billing:settle:"+rec.ID)
	if err != nil {
		return calls.Settlement{}, err
	}
	defer release()

	now := s.clock().UTC()
	meta := fmt.Sprintf(`{"billable_seconds":%d,"rate_per_minute":%d}`, q.BillableSeconds, q.RatePerMinute)
	entries := []LedgerEntry{{
		ID:        uuid.NewString(),
		Reference: rec.ID,
		UserID:    rec.CallerID,
		Type:      EntryTypeSpent,
		Amount:    -q.Spent,
		Metadata:  meta,
		CreatedAt: now,
	}}
	if q.Earned > 0 {
		entries = append(entries, LedgerEntry{
			ID:        uuid.NewString(),
			Reference: rec.ID,
			UserID:    rec.ReceiverID,
			Type:      EntryTypeEarned,
			Amount:    q.Earned,
			Metadata:  meta,
			CreatedAt: now,
		})
	}

	log := logger.ForCall(ctx, rec.ID)
	for _, e := range entries {
		_, created, err := s.ledger.Post(ctx, e)
		if err != nil {
			// Entries already posted stay; a retry posts the rest exactly once.
			log.Error("settlement posting failed", "entry_type", string(e.Type), "user_id", e.UserID, "err", err)
			return calls.Settlement{}, fmt.Errorf("post %s: %w", e.Type, err)
		}
		if !created {
			log.Info("settlement entry already recorded", "entry_type", string(e.Type), "user_id", e.UserID)
		}
	}

	log.Info("call settled",
		"billable_seconds", q.BillableSeconds,
		"coins_spent", q.Spent,
		"coins_earned", q.Earned,
	)
	return out, nil
}

type AdjustRequest struct {
	UserID         string    `json:"user_id"`
	Type           EntryType `json:"entry_type"`
	Amount         int64     `json:"amount"`
	Reason         string    `json:"reason"`
	IdempotencyKey string    `json:"idempotency_key"`
	CallID         string    `json:"call_id,omitempty"`
}

// Adjust credits a user through a REFUND or BONUS ledger entry. The idempotency key makes
// retries safe.
func (s *Service) Adjust(ctx context.Context, adminUserID, adminRole string, req AdjustRequest) (Adjustment, LedgerEntry, error) {
	if adminUserID == "" || adminRole == "" {
		return Adjustment{}, LedgerEntry{}, ErrInvalidArgument
	}
	if req.UserID == "" || !req.Type.IsAdjustment() || req.Amount <= 0 {
		return Adjustment{}, LedgerEntry{}, ErrInvalidArgument
	}
	if strings.TrimSpace(req.Reason) == "" || strings.TrimSpace(req.IdempotencyKey) == "" {
		return Adjustment{}, LedgerEntry{}, ErrInvalidArgument
	}

	now := s.clock().UTC()
	entry := LedgerEntry{
		ID:        uuid.NewString(),
		Reference: req.IdempotencyKey,
		UserID:    req.UserID,
		Type:      req.Type,
		Amount:    req.Amount,
		Metadata:  req.Reason,
		CreatedAt: now,
	}
	adj := Adjustment{
		ID:             uuid.NewString(),
		IdempotencyKey: req.IdempotencyKey,
		UserID:         req.UserID,
		Type:           req.Type,
		Amount:         req.Amount,
		Reason:         req.Reason,
		CallID:         req.CallID,
		AdminUserID:    adminUserID,
		AdminRole:      adminRole,
		CreatedAt:      now,
	}

	outAdj, outEntry, created, err := s.ledger.PostAdjustment(ctx, adj, entry)
	if err != nil {
		return Adjustment{}, LedgerEntry{}, err
	}
	if !created {
		return outAdj, outEntry, nil
	}

	if s.auditor != nil {
		if err := s.auditor.LogAdjustment(ctx, adminUserID, adminRole, req.UserID, string(req.Type), req.Amount, req.Reason, req.IdempotencyKey); err != nil {
			logger.From(ctx).Warn("audit adjustment failed", "err", err)
		}
	}
	return outAdj, outEntry, nil
}

// Reconcile rebuilds a user's cached balance from the ledger sum.
func (s *Service) Reconcile(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, ErrInvalidArgument
	}
	return s.ledger.Rebuild(ctx, userID)
}

// ReconcileDrift rebuilds every balance that no longer matches its ledger sum.
func (s *Service) ReconcileDrift(ctx context.Context) (int, error) {
	users, err := s.ledger.Drifted(ctx, driftBatch)
	if err != nil {
		return 0, err
	}
	var errs []error
	done := 0
	for _, userID := range users {
		sum, err := s.Reconcile(ctx, userID)
		if err != nil {
			errs = append(errs, fmt.Errorf("reconcile %s: %w", userID, err))
			continue
		}
		logger.From(ctx).Warn("balance drift reconciled", "user_id", userID, "balance", sum)
		done++
	}
	return done, errors.Join(errs...)
}

func (s *Service) EntriesForCall(ctx context.Context, callID string) ([]LedgerEntry, error) {
	return s.ledger.ListByReference(ctx, callID)
}

func (s *Service) EntriesForUser(ctx context.Context, userID string, limit int) ([]LedgerEntry, error) {
	return s.ledger.ListByUser(ctx, userID, limit)
}

func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	return s.balances.GetBalance(ctx, userID)
}

func (s *Service) lock(ctx context.Context, key string) (func(), error) {
	for attempt := 0; attempt < lockAttempts; attempt++ {
		release, ok, err := s.locker.TryLock(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("settle lock: %w", err)
		}
		if ok {
			return release, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockBackoff):
		}
	}
	return nil, ErrSettlementBusy
}
