package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// reserveScript trims the sorted set to the trailing window, admits the call
// if there is room, and otherwise returns the milliseconds until the oldest
// entry expires.
var reserveScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count < limit then
  redis.call('ZADD', key, now, member)
  redis.call('PEXPIRE', key, window)
  return 0
end

local oldest = redis.call('ZRANGE', key, count - limit, count - limit, 'WITHSCORES')
local wait = tonumber(oldest[2]) + window - now
if wait < 1 then
  wait = 1
end
return wait
`)

// RedisWindow is a sliding window log stored in a Redis sorted set, shared
// by every process using the same key.
type RedisWindow struct {
	client redis.Scripter
	key    string
	limit  int
	window time.Duration
}

// NewRedisWindow creates a shared window of limit calls per window
func NewRedisWindow(client redis.Scripter, key string, limit int, window time.Duration) *RedisWindow {
	return &RedisWindow{client: client, key: key, limit: limit, window: window}
}

// NewRedisClient opens a client for redis_url
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Reserve implements SharedWindow
func (w *RedisWindow) Reserve(ctx context.Context, now time.Time) (time.Duration, error) {
	nowMs := now.UnixMilli()
	member := fmt.Sprintf("%d-%s", nowMs, uuid.NewString())

	waitMs, err := reserveScript.Run(ctx, w.client, []string{w.key},
		nowMs, w.window.Milliseconds(), w.limit, member).Int64()
	if err != nil {
		return 0, fmt.Errorf("reserve shared window %s: %w", w.key, err)
	}
	return time.Duration(waitMs) * time.Millisecond, nil
}
