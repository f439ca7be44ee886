package calls

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("calls: not found")
	ErrInvalidArgument = errors.New("calls: invalid argument")
	// ErrConflict means the stored status no longer matches the expected one.
	ErrConflict = errors.New("calls: concurrent status change")
)

// Repository persists call records. Records are never deleted.
type Repository interface {
	Create(ctx context.Context, rec CallRecord) error
	Get(ctx context.Context, id string) (CallRecord, error)

	// CompareAndSwap stores next only while the stored status still equals expected.
	// It returns ErrConflict when another writer moved the call first.
	CompareAndSwap(ctx context.Context, expected Status, next CallRecord) error

	// ListRinging returns PENDING/CONNECTING calls for receiverID created at or after since, newest first.
	ListRinging(ctx context.Context, receiverID string, since time.Time) ([]CallRecord, error)
	// ListRingingBefore returns PENDING/CONNECTING calls created before cutoff, oldest first.
	ListRingingBefore(ctx context.Context, cutoff time.Time, limit int) ([]CallRecord, error)
	// ListUnsettled returns terminal calls whose settlement has not been recorded, oldest first.
	ListUnsettled(ctx context.Context, limit int) ([]CallRecord, error)

	// MarkSettled records the settlement outcome once. A second call is a no-op.
	MarkSettled(ctx context.Context, id string, s Settlement, at time.Time) error
}
