package calls

import (
	"errors"
	"testing"
	"time"
)

func TestApply_HappyPathStampsTimestamps(t *testing.T) {
	t0 := time.Unix(1700000000, 0).UTC()
	rec := CallRecord{ID: "c", Status: StatusPending, CreatedAt: t0}

	if err := Apply(&rec, StatusConnecting, t0.Add(time.Second)); err != nil {
		t.Fatalf("connecting: %v", err)
	}
	if rec.StartedAt == nil || rec.ReceiverJoinedAt != nil {
		t.Fatalf("expected started_at only, got %+v", rec)
	}
	if err := Apply(&rec, StatusOngoing, t0.Add(30*time.Second)); err != nil {
		t.Fatalf("ongoing: %v", err)
	}
	if rec.ReceiverJoinedAt == nil || !rec.ReceiverJoinedAt.Equal(t0.Add(30*time.Second)) {
		t.Fatalf("expected receiver_joined_at stamped, got %+v", rec.ReceiverJoinedAt)
	}
	if err := Apply(&rec, StatusEnded, t0.Add(90*time.Second)); err != nil {
		t.Fatalf("ended: %v", err)
	}
	if got := rec.BillableSeconds(); got != 60 {
		t.Fatalf("expected 60 billable seconds, got %d", got)
	}
}

func TestApply_TerminalIsAbsorbing(t *testing.T) {
	now := time.Now()
	for _, s := range []Status{StatusEnded, StatusMissed, StatusRejected, StatusCancelled} {
		rec := CallRecord{Status: s}
		for _, to := range []Status{StatusPending, StatusConnecting, StatusOngoing, StatusEnded, StatusMissed} {
			if err := Apply(&rec, to, now); !errors.Is(err, ErrAlreadyTerminal) {
				t.Fatalf("%s -> %s: expected ErrAlreadyTerminal, got %v", s, to, err)
			}
		}
	}
}

func TestApply_RejectsSkippingStates(t *testing.T) {
	rec := CallRecord{Status: StatusPending}
	if err := Apply(&rec, StatusOngoing, time.Now()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	rec = CallRecord{Status: StatusOngoing}
	if err := Apply(&rec, StatusMissed, time.Now()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("ongoing call cannot be missed, got %v", err)
	}
}

func TestApply_JoinNeverBeforeCreation(t *testing.T) {
	t0 := time.Unix(1700000000, 0).UTC()
	rec := CallRecord{Status: StatusConnecting, CreatedAt: t0}
	if err := Apply(&rec, StatusOngoing, t0.Add(-5*time.Second)); err != nil {
		t.Fatalf("ongoing: %v", err)
	}
	if rec.ReceiverJoinedAt.Before(t0) {
		t.Fatalf("receiver_joined_at must be >= created_at")
	}
}

func TestBillableSeconds_NeverJoinedIsZero(t *testing.T) {
	t0 := time.Unix(1700000000, 0).UTC()
	ended := t0.Add(45 * time.Second)
	rec := CallRecord{CreatedAt: t0, EndedAt: &ended, Status: StatusMissed}
	if got := rec.BillableSeconds(); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestBillableSeconds_UsesJoinNotCreation(t *testing.T) {
	t0 := time.Unix(1700000000, 0).UTC()
	joined := t0.Add(30 * time.Second)
	ended := t0.Add(90 * time.Second)
	rec := CallRecord{CreatedAt: t0, ReceiverJoinedAt: &joined, EndedAt: &ended}
	if got := rec.BillableSeconds(); got != 60 {
		t.Fatalf("expected 60, got %d", got)
	}
}
