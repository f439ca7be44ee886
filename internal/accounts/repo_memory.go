package accounts

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used by tests and local development. It also serves
// as the balance cache behind billing's MemoryLedger.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]Account

	// FailApplyDelta makes ApplyDelta fail, to exercise failed ledger postings.
	FailApplyDelta error
}

func NewMemoryStore(seed ...Account) *MemoryStore {
	s := &MemoryStore{accounts: map[string]Account{}}
	for _, a := range seed {
		s.accounts[a.UserID] = a
	}
	return s
}

func (s *MemoryStore) Get(ctx context.Context, userID string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[userID]
	if !ok {
		return Account{}, ErrNotFound
	}
	return a, nil
}

func (s *MemoryStore) GetBalance(ctx context.Context, userID string) (int64, error) {
	a, err := s.Get(ctx, userID)
	if err != nil {
		return 0, err
	}
	return a.CoinBalance, nil
}

func (s *MemoryStore) GetCallRate(ctx context.Context, userID string) (int64, error) {
	a, err := s.Get(ctx, userID)
	if err != nil {
		return 0, err
	}
	return a.CallRate, nil
}

func (s *MemoryStore) ApplyDelta(ctx context.Context, userID string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailApplyDelta != nil {
		return 0, s.FailApplyDelta
	}
	a, ok := s.accounts[userID]
	if !ok {
		return 0, ErrNotFound
	}
	a.CoinBalance += delta
	a.UpdatedAt = time.Now().UTC()
	s.accounts[userID] = a
	return a.CoinBalance, nil
}

func (s *MemoryStore) SetBalance(ctx context.Context, userID string, balance int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[userID]
	if !ok {
		return ErrNotFound
	}
	a.CoinBalance = balance
	a.UpdatedAt = time.Now().UTC()
	s.accounts[userID] = a
	return nil
}

// Balances snapshots every cached balance by user id.
func (s *MemoryStore) Balances(ctx context.Context) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64, len(s.accounts))
	for id, a := range s.accounts {
		out[id] = a.CoinBalance
	}
	return out, nil
}

func (s *MemoryStore) Upsert(ctx context.Context, a Account) error {
	if a.UserID == "" {
		return ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.accounts[a.UserID]; ok {
		a.CoinBalance = existing.CoinBalance
	}
	a.UpdatedAt = time.Now().UTC()
	s.accounts[a.UserID] = a
	return nil
}
