package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// admitScript performs purge, count, and conditional record as one atomic
// unit so concurrent callers on the same key cannot interleave between the
// count and the add.
var admitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local count = redis.call('ZCARD', key)

local oldest = now
local head = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if head[2] then
  oldest = math.floor(tonumber(head[2]))
end

if count >= limit then
  return {0, count, oldest}
end

redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, window)
if count == 0 then
  oldest = now
end
return {1, count + 1, oldest}
`)

// RedisStore implements WindowStore on a Redis sorted set per key, scored by
// request timestamp in milliseconds.
type RedisStore struct {
	rdb redis.Scripter
}

func NewRedisStore(rdb redis.Scripter) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Admit(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (Admission, error) {
	res, err := admitScript.Run(ctx, s.rdb,
		[]string{key},
		now.UnixMilli(),
		window.Milliseconds(),
		limit,
		uuid.NewString(),
	).Result()
	if err != nil {
		return Admission{}, fmt.Errorf("rate limit script: %w", err)
	}

	values, ok := res.([]interface{})
	if !ok || len(values) != 3 {
		return Admission{}, fmt.Errorf("rate limit script: unexpected reply %v", res)
	}

	allowed, _ := values[0].(int64)
	count, _ := values[1].(int64)
	oldestMs, _ := values[2].(int64)

	return Admission{
		Allowed:  allowed == 1,
		Count:    int(count),
		OldestAt: time.UnixMilli(oldestMs),
	}, nil
}

var _ WindowStore = (*RedisStore)(nil)
