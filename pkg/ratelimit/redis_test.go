package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	redisURL := os.Getenv("IGSYNC_TEST_REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379/15"
	}
	client, err := NewRedisClient(context.Background(), redisURL)
	if err != nil {
		t.Skip("Redis not available for testing")
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisWindowReserve(t *testing.T) {
	client := newTestRedisClient(t)
	ctx := context.Background()
	key := "igsync:test:" + t.Name()
	client.Del(ctx, key)
	t.Cleanup(func() { client.Del(ctx, key) })

	w := NewRedisWindow(client, key, 2, 10*time.Second)
	now := time.Now()

	wait, err := w.Reserve(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, wait)

	wait, err = w.Reserve(ctx, now.Add(time.Second))
	require.NoError(t, err)
	assert.Zero(t, wait)

	// full: the oldest entry leaves the window 9s later
	wait, err = w.Reserve(ctx, now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 9*time.Second, wait)

	wait, err = w.Reserve(ctx, now.Add(10*time.Second))
	require.NoError(t, err)
	assert.Zero(t, wait)
}

func TestRedisWindowWithGovernor(t *testing.T) {
	client := newTestRedisClient(t)
	ctx := context.Background()
	key := "igsync:test:" + t.Name()
	client.Del(ctx, key)
	t.Cleanup(func() { client.Del(ctx, key) })

	shared := NewRedisWindow(client, key, 60, time.Minute)
	g, _ := newTestGovernor(60, 0, 0, WithSharedWindow(shared))
	require.NoError(t, g.Admit(ctx, KindGlobal, ""))

	n, err := client.ZCard(ctx, key).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestNewRedisClientBadURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "not a url")
	assert.Error(t, err)
}
