package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrementScript runs reset-or-increment as one server-side step.
// KEYS[1] = counter hash; ARGV[1] = now (ms); ARGV[2] = window (ms).
var incrementScript = redis.NewScript(`
local start = tonumber(redis.call('HGET', KEYS[1], 'start') or '-1')
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
if start < 0 or now - start >= window then
  redis.call('HSET', KEYS[1], 'count', 0, 'start', now)
  start = now
end
local count = redis.call('HINCRBY', KEYS[1], 'count', 1)
redis.call('PEXPIRE', KEYS[1], window * 2)
return {count, start}
`)

// RedisStore shares counters across API replicas.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a store writing keys under prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "presensi:ratelimit:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Increment implements CounterStore.
func (s *RedisStore) Increment(ctx context.Context, key string, now time.Time, window time.Duration) (Counter, error) {
	res, err := incrementScript.Run(ctx, s.client, []string{s.prefix + key}, now.UnixMilli(), window.Milliseconds()).Int64Slice()
	if err != nil {
		return Counter{}, fmt.Errorf("ratelimit: redis increment: %w", err)
	}
	if len(res) != 2 {
		return Counter{}, fmt.Errorf("ratelimit: unexpected script reply %v", res)
	}
	return Counter{Count: int(res[0]), WindowStart: time.UnixMilli(res[1])}, nil
}
