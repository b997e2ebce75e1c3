package redis_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/creditkit/pkg/redis"
)

func TestConnect_InvalidConfig(t *testing.T) {
	t.Parallel()

	t.Run("empty url", func(t *testing.T) {
		t.Parallel()
		_, err := redis.Connect(context.Background(), redis.Config{})
		assert.ErrorIs(t, err, redis.ErrEmptyConnectionURL)
	})

	t.Run("malformed url", func(t *testing.T) {
		t.Parallel()
		_, err := redis.Connect(context.Background(), redis.Config{ConnectionURL: "http://localhost:6379"})
		assert.ErrorIs(t, err, redis.ErrFailedToParseRedisConnString)
	})
}

func TestNewLocker_NilClientPanics(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { redis.NewLocker(nil, "lock:") })
}

func connectForTest(t *testing.T) *redis.Locker {
	t.Helper()

	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL is not set")
	}

	client, err := redis.Connect(context.Background(), redis.Config{
		ConnectionURL:  url,
		RetryAttempts:  1,
		ConnectTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return redis.NewLocker(client, "test:lock:"+t.Name()+":")
}

func TestLocker(t *testing.T) {
	locker := connectForTest(t)
	ctx := context.Background()

	t.Run("exclusive until released", func(t *testing.T) {
		lock, err := locker.Acquire(ctx, "sweep", time.Minute)
		require.NoError(t, err)

		_, err = locker.Acquire(ctx, "sweep", time.Minute)
		assert.ErrorIs(t, err, redis.ErrLockNotAcquired)

		require.NoError(t, lock.Release(ctx))

		again, err := locker.Acquire(ctx, "sweep", time.Minute)
		require.NoError(t, err)
		require.NoError(t, again.Release(ctx))
	})

	t.Run("release after expiry", func(t *testing.T) {
		lock, err := locker.Acquire(ctx, "short", 50*time.Millisecond)
		require.NoError(t, err)

		time.Sleep(150 * time.Millisecond)
		assert.ErrorIs(t, lock.Release(ctx), redis.ErrLockNotHeld)
	})

	t.Run("rejects zero ttl", func(t *testing.T) {
		_, err := locker.Acquire(ctx, "zero", 0)
		assert.ErrorIs(t, err, redis.ErrInvalidLockTTL)
	})
}
