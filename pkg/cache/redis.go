package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/julioctb/Dashboard-pletorica-sub001/pkg/config"
)

// NewRedis returns a configured Redis client.
func NewRedis(cfg config.RedisConfig) (*redis.Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return client, nil
}

// ErrLockNotObtained is returned when another holder owns the lock.
var ErrLockNotObtained = redislock.ErrNotObtained

// Locker is a best-effort distributed mutex on top of Redis.
type Locker struct {
	client *redislock.Client
	wait   time.Duration
}

// NewLocker builds a locker on an existing Redis connection. It returns nil without a client.
// Acquire retries for up to wait before giving up.
func NewLocker(client *redis.Client, wait time.Duration) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: redislock.New(client), wait: wait}
}

// Acquire obtains key for ttl and returns the function releasing it.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	if l == nil || l.client == nil {
		return nil, ErrLockNotObtained
	}
	opts := &redislock.Options{}
	if l.wait > 0 {
		const step = 50 * time.Millisecond
		opts.RetryStrategy = redislock.LimitRetry(redislock.LinearBackoff(step), int(l.wait/step))
	}
	lock, err := l.client.Obtain(ctx, key, ttl, opts)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) error {
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			return fmt.Errorf("release %s: %w", key, err)
		}
		return nil
	}, nil
}
