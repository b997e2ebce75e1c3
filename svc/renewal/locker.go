package renewal

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrymomot/creditkit/pkg/redis"
)

// Locker serializes sweeps across processes. TryLock returns
// ErrSweepInProgress when another process holds the lock.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(context.Context) error, err error)
}

type redisLocker struct {
	locker *redis.Locker
}

// NewRedisLocker adapts a redis.Locker to Locker.
func NewRedisLocker(l *redis.Locker) Locker {
	if l == nil {
		panic("renewal: redis locker is required")
	}
	return redisLocker{locker: l}
}

func (l redisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	lock, err := l.locker.Acquire(ctx, key, ttl)
	if errors.Is(err, redis.ErrLockNotAcquired) {
		return nil, ErrSweepInProgress
	}
	if err != nil {
		return nil, errors.Join(ErrFailedToAcquireLock, err)
	}
	return lock.Release, nil
}
