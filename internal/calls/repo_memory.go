package calls

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests and local runs.
type MemoryRepo struct {
	mu    sync.Mutex
	calls map[string]CallRecord
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{calls: map[string]CallRecord{}}
}

func (r *MemoryRepo) Create(_ context.Context, rec CallRecord) error {
	if rec.ID == "" {
		return ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.calls[rec.ID]; ok {
		return ErrConflict
	}
	r.calls[rec.ID] = rec
	return nil
}

func (r *MemoryRepo) Get(_ context.Context, id string) (CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.calls[id]
	if !ok {
		return CallRecord{}, ErrNotFound
	}
	return rec, nil
}

func (r *MemoryRepo) CompareAndSwap(_ context.Context, expected Status, next CallRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.calls[next.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Status != expected {
		return ErrConflict
	}
	// Settlement columns belong to MarkSettled.
	next.SettledAt = cur.SettledAt
	next.CoinsSpentByCaller = cur.CoinsSpentByCaller
	next.CoinsEarnedByReceiver = cur.CoinsEarnedByReceiver
	r.calls[next.ID] = next
	return nil
}

func (r *MemoryRepo) ListRinging(_ context.Context, receiverID string, since time.Time) ([]CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []CallRecord
	for _, c := range r.calls {
		if c.ReceiverID == receiverID && c.Status.IsRinging() && !c.CreatedAt.Before(since) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) ListRingingBefore(_ context.Context, cutoff time.Time, limit int) ([]CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []CallRecord
	for _, c := range r.calls {
		if c.Status.IsRinging() && c.CreatedAt.Before(cutoff) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return truncate(out, limit), nil
}

func (r *MemoryRepo) ListUnsettled(_ context.Context, limit int) ([]CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []CallRecord
	for _, c := range r.calls {
		if c.Status.IsTerminal() && c.SettledAt == nil {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return truncate(out, limit), nil
}

func (r *MemoryRepo) MarkSettled(_ context.Context, id string, s Settlement, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[id]
	if !ok {
		return ErrNotFound
	}
	if c.SettledAt != nil {
		return nil
	}
	at = at.UTC()
	c.SettledAt = &at
	c.CoinsSpentByCaller = s.CoinsSpent
	c.CoinsEarnedByReceiver = s.CoinsEarned
	r.calls[id] = c
	return nil
}

func truncate(in []CallRecord, limit int) []CallRecord {
	if limit > 0 && len(in) > limit {
		return in[:limit]
	}
	return in
}
