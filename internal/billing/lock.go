package billing

import (
	"context"
	"time"

	"coincall/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker serializes settlement of one call across API replicas and the sweeper.
type Locker interface {
	// TryLock returns a release func when the lock was taken, or ok=false when held elsewhere.
	TryLock(ctx context.Context, key string) (release func(), ok bool, err error)
}

type redisLockClient interface {
	redis.Cmdable
	redis.Scripter
}

// RedisLocker takes SET NX PX locks released by compare-and-delete.
type RedisLocker struct {
	rdb redisLockClient
	ttl time.Duration
}

func NewRedisLocker(rdb redisLockClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{rdb: rdb, ttl: ttl}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := utils.AcquireLock(ctx, l.rdb, key, token, l.ttl)
	if err != nil || !ok {
		return nil, false, err
	}
	release := func() {
		// Detached so a cancelled request still frees the lock.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = utils.ReleaseLock(ctx, l.rdb, key, token)
	}
	return release, true, nil
}

// nopLocker always grants the lock. Ledger uniqueness still guarantees exactly-once.
type nopLocker struct{}

func (nopLocker) TryLock(context.Context, string) (func(), bool, error) {
	return func() {}, true, nil
}
