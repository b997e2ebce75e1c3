package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out short-lived exclusive locks backed by SET NX PX.
// Locks are advisory: they coordinate processes, they do not fence writes.
type Locker struct {
	client redis.UniversalClient
	prefix string
}

// NewLocker creates a Locker. Keys are stored as prefix+key.
func NewLocker(client redis.UniversalClient, prefix string) *Locker {
	if client == nil {
		panic("redis: client is required")
	}
	return &Locker{client: client, prefix: prefix}
}

// Lock is a held lock. Release it when the guarded work is done; otherwise it
// expires after its TTL.
type Lock struct {
	client redis.UniversalClient
	key    string
	token  string
}

// Acquire takes the lock named key for ttl.
// Returns ErrLockNotAcquired if someone else holds it.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	if ttl <= 0 {
		return nil, ErrInvalidLockTTL
	}

	lock := &Lock{
		client: l.client,
		key:    l.prefix + key,
		token:  uuid.NewString(),
	}

	ok, err := l.client.SetNX(ctx, lock.key, lock.token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}
	return lock, nil
}

// Key returns the full redis key of the lock.
func (l *Lock) Key() string { return l.key }

// Release frees the lock if it is still ours.
// Returns ErrLockNotHeld when the TTL ran out and the key expired or moved on.
func (l *Lock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}
