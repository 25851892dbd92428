package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const windowKeyPrefix = "palisade:rl:"

// reserveScript evicts expired members, counts the remainder, and appends the
// current request only when the count is below the limit, all in one atomic
// step on the server. KEYS[1] window zset; ARGV: now-micros, window-micros,
// limit, member.
var reserveScript = redis.NewScript(`
local cutoff = tonumber(ARGV[1]) - tonumber(ARGV[2])
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", cutoff)
local count = redis.call("ZCARD", KEYS[1])
local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
if count >= tonumber(ARGV[3]) then
	return {0, count, oldest[2] or ARGV[1]}
end
redis.call("ZADD", KEYS[1], ARGV[1], ARGV[4])
redis.call("PEXPIRE", KEYS[1], math.ceil(tonumber(ARGV[2]) / 1000))
if oldest[2] == nil then
	oldest[2] = ARGV[1]
end
return {1, count, oldest[2]}
`)

// RedisWindowStore is the Redis-backed WindowStore for deployments where
// several serving instances must share one rate-limit view. Each identity is
// a sorted set of request timestamps scored in microseconds.
type RedisWindowStore struct {
	client *redis.Client
}

// NewRedisWindowStore constructs a Redis-backed window store.
func NewRedisWindowStore(client *redis.Client) *RedisWindowStore {
	return &RedisWindowStore{client: client}
}

func (s *RedisWindowStore) Reserve(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	nowMicros := time.Now().UnixMicro()
	windowMicros := window.Microseconds()

	// Member must be unique per request so two requests in the same
	// microsecond both count.
	member := uuid.NewString()

	raw, err := reserveScript.Run(ctx, s.client, []string{windowKey(key)},
		nowMicros, windowMicros, limit, member).Slice()
	if err != nil {
		return nil, fmt.Errorf("reserve window for %s: %w", key, err)
	}
	if len(raw) != 3 {
		return nil, fmt.Errorf("reserve window for %s: unexpected script reply %v", key, raw)
	}

	allowed := toInt64(raw[0]) == 1
	count := int(toInt64(raw[1]))
	oldestMicros := toInt64(raw[2])

	return &Result{
		Allowed: allowed,
		Count:   count,
		Limit:   limit,
		ResetAt: time.UnixMicro(oldestMicros).Add(window),
	}, nil
}

func (s *RedisWindowStore) Count(ctx context.Context, key string, window time.Duration) (int, error) {
	cutoff := time.Now().Add(-window).UnixMicro()
	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, windowKey(key), "-inf", fmt.Sprintf("%d", cutoff))
	card := pipe.ZCard(ctx, windowKey(key))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("count window for %s: %w", key, err)
	}
	return int(card.Val()), nil
}

func (s *RedisWindowStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, windowKey(key)).Err()
}

func windowKey(key string) string {
	return windowKeyPrefix + key
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case string:
		var out int64
		fmt.Sscan(n, &out)
		return out
	default:
		return 0
	}
}
