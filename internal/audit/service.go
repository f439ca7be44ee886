package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"coincall/internal/calls"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only. No Update/Delete methods are provided.
type Repository interface {
	Append(ctx context.Context, e Event) error
	List(ctx context.Context, f Filter) ([]Event, error)
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Type   EventType
	CallID string
	Limit  int
}

// Service logs internal audit information.
//
// Audit is internal-only and callers treat it as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	if e.IPAddress == "" {
		e.IPAddress = ClientIPFromContext(ctx)
	}
	return s.repo.Append(ctx, e)
}

func (s *Service) List(ctx context.Context, f Filter) ([]Event, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	return s.repo.List(ctx, f)
}

// LogAdjustment records an admin REFUND/BONUS ledger adjustment.
func (s *Service) LogAdjustment(ctx context.Context, actorUserID, actorRole, userID, entryType string, amount int64, reason, reference string) error {
	return s.Append(ctx, Event{
		Type:          EventTypeAdminAdjustment,
		ActorUserID:   actorUserID,
		ActorRole:     actorRole,
		SubjectUserID: userID,
		Reference:     reference,
		Message:       reason,
		Metadata:      fmt.Sprintf(`{"entry_type":%q,"amount":%d}`, entryType, amount),
	})
}

// LogRejectedTransition records a lifecycle request refused by the state machine.
func (s *Service) LogRejectedTransition(ctx context.Context, callID, actorUserID string, from, to calls.Status, reason string) error {
	return s.Append(ctx, Event{
		Type:        EventTypeRejectedTransition,
		ActorUserID: actorUserID,
		CallID:      callID,
		Message:     reason,
		Metadata:    fmt.Sprintf(`{"from":%q,"to":%q}`, from, to),
	})
}

// LogReconcile records an admin-triggered balance rebuild.
func (s *Service) LogReconcile(ctx context.Context, actorUserID, actorRole, userID string, balance int64) error {
	return s.Append(ctx, Event{
		Type:          EventTypeReconcile,
		ActorUserID:   actorUserID,
		ActorRole:     actorRole,
		SubjectUserID: userID,
		Metadata:      fmt.Sprintf(`{"balance":%d}`, balance),
	})
}
