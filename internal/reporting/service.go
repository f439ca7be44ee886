package reporting

import (
	"context"
	"errors"
	"time"

	"coincall/internal/billing"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository reads immutable ledger entries. billing.MemoryLedger and
// billing.PostgresLedger both satisfy it.
type Repository interface {
	ListByUserBetween(ctx context.Context, userID string, from, to time.Time) ([]billing.LedgerEntry, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) CoinSummary(ctx context.Context, req SummaryRequest) (CoinSummary, error) {
	if req.UserID == "" {
		return CoinSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return CoinSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CoinSummary{}, errors.New("reporting: repository not configured")
	}

	entries, err := s.repo.ListByUserBetween(ctx, req.UserID, req.Range.From, req.Range.To)
	if err != nil {
		return CoinSummary{}, err
	}

	out := CoinSummary{UserID: req.UserID, Range: req.Range}
	billed := map[string]struct{}{}
	for _, e := range entries {
		out.Net += e.Amount
		switch e.Type {
		case billing.EntryTypeSpent:
			out.Spent += -e.Amount
			billed[e.Reference] = struct{}{}
		case billing.EntryTypeEarned:
			out.Earned += e.Amount
			billed[e.Reference] = struct{}{}
		case billing.EntryTypeRefund:
			out.Refunded += e.Amount
		case billing.EntryTypeBonus:
			out.Bonus += e.Amount
		}
	}
	out.BilledCalls = len(billed)
	return out, nil
}
