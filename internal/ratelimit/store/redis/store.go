package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"contribgate/internal/ratelimit"
)

const keyPrefix = "contribgate:ratelimit:"

// allowScript keeps one sorted set per key scored by request time in
// milliseconds. Expired members are trimmed before counting so the window
// slides; members are only added when the whole cost fits.
//
// KEYS[1] window key. ARGV: now_ms, window_ms, limit, cost, member prefix.
// Returns {allowed, count, oldest_ms}.
var allowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])

redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)
local count = redis.call("ZCARD", key)
local allowed = 0
if count + cost <= limit then
	for i = 1, cost do
		redis.call("ZADD", key, now, ARGV[5] .. ":" .. i)
	end
	count = count + cost
	allowed = 1
end
redis.call("PEXPIRE", key, window)

local oldest = now
local first = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
if first[2] then
	oldest = tonumber(first[2])
end
return {allowed, count, oldest}
`)

// Store is a sliding-window counter shared by every instance on the same Redis.
type Store struct {
	client redis.UniversalClient
	now    func() time.Time
}

func New(client redis.UniversalClient) *Store {
	return &Store{client: client, now: time.Now}
}

func (s *Store) AllowN(ctx context.Context, key string, cost, limit int, window time.Duration) (*ratelimit.Result, error) {
	now := s.now()
	res, err := allowScript.Run(ctx, s.client, []string{keyPrefix + key},
		now.UnixMilli(),
		window.Milliseconds(),
		limit,
		cost,
		uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("run sliding window script: %w", err)
	}
	if len(res) != 3 {
		return nil, fmt.Errorf("unexpected sliding window reply: %v", res)
	}

	allowed := res[0] == 1
	result := &ratelimit.Result{
		Allowed: allowed,
		Limit:   limit,
		ResetAt: time.UnixMilli(res[2]).Add(window),
	}
	if allowed {
		result.Remaining = limit - int(res[1])
	}
	return result, nil
}

// Reset forgets a key.
func (s *Store) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("reset rate limit key: %w", err)
	}
	return nil
}
