package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julioctb/Dashboard-pletorica-sub001/pkg/config"
)

func TestLockerWithoutClient(t *testing.T) {
	assert.Nil(t, NewLocker(nil, time.Second))

	var locker *Locker
	release, err := locker.Acquire(context.Background(), "lock:test", time.Second)
	assert.Nil(t, release)
	assert.ErrorIs(t, err, ErrLockNotObtained)
}

func TestLockerUnreachableRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()

	locker := NewLocker(client, 0)
	require.NotNil(t, locker)
	_, err := locker.Acquire(context.Background(), "lock:test", time.Second)
	require.Error(t, err)
}

func TestNewRedisFailsFast(t *testing.T) {
	_, err := NewRedis(config.RedisConfig{Host: "127.0.0.1", Port: 1})
	require.Error(t, err)
}
