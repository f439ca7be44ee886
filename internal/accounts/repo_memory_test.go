package accounts

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStore_ApplyDeltaAndRate(t *testing.T) {
	s := NewMemoryStore(Account{UserID: "r1", Role: "receiver", CallRate: 10})
	ctx := context.Background()

	bal, err := s.ApplyDelta(ctx, "r1", 25)
	if err != nil || bal != 25 {
		t.Fatalf("expected 25, got %d (%v)", bal, err)
	}
	bal, _ = s.ApplyDelta(ctx, "r1", -5)
	if bal != 20 {
		t.Fatalf("expected 20, got %d", bal)
	}
	rate, err := s.GetCallRate(ctx, "r1")
	if err != nil || rate != 10 {
		t.Fatalf("expected rate 10, got %d (%v)", rate, err)
	}
}

func TestMemoryStore_UnknownUser(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.GetBalance(context.Background(), "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Upsert(context.Background(), Account{}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}
