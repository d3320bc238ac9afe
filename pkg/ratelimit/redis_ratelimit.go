package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lua 스크립트로 원자적 연산 (Token Bucket)
// 1. 현재 토큰 수와 마지막 리필 시간 조회
// 2. 경과 시간에 따라 토큰 리필
// 3. 토큰 1개 소비
var tokenBucketScript = redis.NewScript(`
	local tokens_key = KEYS[1] .. ":tokens"
	local timestamp_key = KEYS[1] .. ":timestamp"
	local capacity = tonumber(ARGV[1])
	local refill_ms = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])
	local ttl_ms = tonumber(ARGV[4])

	local tokens = tonumber(redis.call('GET', tokens_key))
	local last = tonumber(redis.call('GET', timestamp_key))

	-- 첫 요청
	if tokens == nil or last == nil then
		tokens = capacity
		last = now
	end

	local elapsed = math.max(0, now - last)
	tokens = math.min(capacity, tokens + elapsed / refill_ms)

	local allowed = 0
	if tokens >= 1 then
		tokens = tokens - 1
		allowed = 1
	end

	redis.call('SET', tokens_key, tostring(tokens), 'PX', ttl_ms)
	redis.call('SET', timestamp_key, now, 'PX', ttl_ms)

	return {allowed, math.floor(tokens)}
`)

// RedisRateLimiter Redis 기반 분산 Rate Limiter. Instances behind a load
// balancer share one bucket per key.
type RedisRateLimiter struct {
	client      *redis.Client
	keyPrefix   string
	capacity    int
	refillEvery time.Duration
}

// NewRedisRateLimiter shares the caller's Redis client.
func NewRedisRateLimiter(client *redis.Client, keyPrefix string, capacity int, refillEvery time.Duration) *RedisRateLimiter {
	if keyPrefix == "" {
		keyPrefix = "ratelimit:"
	}
	return &RedisRateLimiter{
		client:      client,
		keyPrefix:   keyPrefix,
		capacity:    capacity,
		refillEvery: refillEvery,
	}
}

// Allow 요청 허용 여부 확인
func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	refillMs := r.refillEvery.Milliseconds()
	if refillMs <= 0 {
		refillMs = 1
	}
	// a bucket idle long enough to be full again can be forgotten
	ttlMs := refillMs * int64(r.capacity+1)

	result, err := tokenBucketScript.Run(ctx, r.client,
		[]string{r.keyPrefix + key},
		r.capacity, refillMs, time.Now().UnixMilli(), ttlMs,
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("redis rate limit script failed: %w", err)
	}
	if len(result) < 1 {
		return false, fmt.Errorf("invalid rate limit script result")
	}

	return result[0] == 1, nil
}

// Reset 특정 키의 Rate Limit 초기화
func (r *RedisRateLimiter) Reset(ctx context.Context, key string) error {
	redisKey := r.keyPrefix + key
	if err := r.client.Del(ctx, redisKey+":tokens", redisKey+":timestamp").Err(); err != nil {
		return fmt.Errorf("failed to reset rate limit: %w", err)
	}
	return nil
}
