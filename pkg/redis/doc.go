// Package redis provides helpers for connecting to a Redis server and
// coordinating work across processes.
//
// Connect wraps the go-redis client with retry and timeout handling driven by
// Config, which is populated from REDIS_* environment variables via
// github.com/caarlos0/env. Healthcheck returns a probe for readiness endpoints.
//
// Locker implements a simple exclusive lock on top of SET NX PX. Each Lock
// carries a random token, and Release only deletes the key while it still holds
// that token, so an expired lock picked up by another process is never freed by
// the previous owner.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	locker := redis.NewLocker(client, cfg.LockPrefix)
//	lock, err := locker.Acquire(ctx, "renewal-sweep", 10*time.Minute)
//	if errors.Is(err, redis.ErrLockNotAcquired) {
//		return nil // another instance is running
//	}
//	defer lock.Release(ctx)
//
// Errors are sentinel values joined with the underlying go-redis error via
// errors.Join, so errors.Is works on both.
package redis
