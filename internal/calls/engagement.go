package calls

import (
	"context"
	"sync"
	"time"

	"coincall/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// RedisEngagement caps each receiver at one live call using a Redis counter.
type RedisEngagement struct {
	rdb redis.Scripter
	ttl time.Duration
}

func NewRedisEngagement(rdb redis.Scripter, ttl time.Duration) *RedisEngagement {
	if ttl <= 0 {
		ttl = 3 * time.Hour
	}
	return &RedisEngagement{rdb: rdb, ttl: ttl}
}

func engagementKey(receiverID string) string { return "calls:engaged:" + receiverID }

func (e *RedisEngagement) Acquire(ctx context.Context, receiverID string) (bool, error) {
	return utils.AcquireConcurrencyCap(ctx, e.rdb, engagementKey(receiverID), 1, e.ttl)
}

func (e *RedisEngagement) Release(ctx context.Context, receiverID string) error {
	return utils.ReleaseConcurrencyCap(ctx, e.rdb, engagementKey(receiverID))
}

// MemoryEngagement is the in-process Engagement used by tests and single-node local runs.
type MemoryEngagement struct {
	mu      sync.Mutex
	engaged map[string]bool
}

func NewMemoryEngagement() *MemoryEngagement {
	return &MemoryEngagement{engaged: map[string]bool{}}
}

func (e *MemoryEngagement) Acquire(_ context.Context, receiverID string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.engaged[receiverID] {
		return false, nil
	}
	e.engaged[receiverID] = true
	return true, nil
}

func (e *MemoryEngagement) Release(_ context.Context, receiverID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.engaged, receiverID)
	return nil
}
