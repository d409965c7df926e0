package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// checkTimeout bounds every counter round-trip so a slow Redis degrades
// to fail-open instead of stalling request workers.
const checkTimeout = 2 * time.Second

// slidingWindowScript performs trim + add + count + expire atomically.
// KEYS[1] = scope counter key (sorted set of request timestamps)
// ARGV[1] = window start (epoch micros; older entries are trimmed)
// ARGV[2] = now (epoch micros, the new entry's score)
// ARGV[3] = unique member for the new entry
// ARGV[4] = key TTL in seconds
// Returns {count, oldest score or 0}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local window_start = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local member = ARGV[3]
local ttl = tonumber(ARGV[4])

redis.call("ZREMRANGEBYSCORE", key, 0, window_start)
redis.call("ZADD", key, now, member)
local count = redis.call("ZCARD", key)
redis.call("EXPIRE", key, ttl)

local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
local oldest_score = 0
if oldest[2] then
    oldest_score = oldest[2]
end

return {count, tostring(oldest_score)}
`)

// RedisStore implements Store on a Redis sorted set per scope.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

// Check runs the sliding-window script as one atomic unit.
func (s *RedisStore) Check(ctx context.Context, scopeKey string, now time.Time) (int64, time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	windowStart := now.Add(-WindowSize).UnixMicro()
	ttl := int64((WindowSize + expireMargin) / time.Second)
	member := fmt.Sprintf("%d-%s", now.UnixMicro(), uuid.New().String())

	res, err := slidingWindowScript.Run(ctx, s.client, []string{scopeKey},
		windowStart, now.UnixMicro(), member, ttl).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("sliding window script: %w", err)
	}

	values, ok := res.([]interface{})
	if !ok || len(values) != 2 {
		return 0, time.Time{}, fmt.Errorf("unexpected script response %T", res)
	}

	count, _ := values[0].(int64)

	var oldest time.Time
	if raw, ok := values[1].(string); ok {
		if micros, err := strconv.ParseFloat(raw, 64); err == nil && micros > 0 {
			oldest = time.UnixMicro(int64(micros))
		}
	}

	return count, oldest, nil
}

// Reset deletes the scope counter. Deleting a missing key is a no-op.
func (s *RedisStore) Reset(ctx context.Context, scopeKey string) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	return s.client.Del(ctx, scopeKey).Err()
}
