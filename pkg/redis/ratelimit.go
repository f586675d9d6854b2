package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RateLimiter implements per-key sliding window rate limiting in Redis.
// Without Redis it falls back to an in-process token bucket per key.
type RateLimiter struct {
	client *Client
	prefix string

	mu    sync.Mutex
	local map[string]*rate.Limiter
}

// RateLimitConfig defines rate limit parameters
type RateLimitConfig struct {
	Key    string        // Unique identifier, e.g. an API key
	Limit  int           // Maximum requests allowed
	Window time.Duration // Time window
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(client *Client, prefix string) *RateLimiter {
	return &RateLimiter{
		client: client,
		prefix: prefix,
		local:  make(map[string]*rate.Limiter),
	}
}

var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)

	local count = redis.call('ZCARD', key)

	if count < limit then
		redis.call('ZADD', key, now, now)
		redis.call('PEXPIRE', key, window_ms)
		return {1, limit - count - 1}
	else
		return {0, 0}
	end
`)

// Allow checks if a request is allowed under the rate limit
// Returns (allowed, remaining, error)
func (r *RateLimiter) Allow(ctx context.Context, cfg RateLimitConfig) (bool, int, error) {
	if cfg.Limit <= 0 {
		return true, 0, nil
	}

	if !r.client.Enabled() {
		return r.allowLocal(cfg)
	}

	key := fmt.Sprintf("%s:ratelimit:%s", r.prefix, cfg.Key)
	now := time.Now().UnixMilli()
	windowStart := now - cfg.Window.Milliseconds()

	result, err := slidingWindowScript.Run(ctx, r.client.Redis(), []string{key},
		now,
		windowStart,
		cfg.Limit,
		cfg.Window.Milliseconds(),
	).Slice()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit script failed: %w", err)
	}

	allowed := result[0].(int64) == 1
	remaining := int(result[1].(int64))

	return allowed, remaining, nil
}

func (r *RateLimiter) allowLocal(cfg RateLimitConfig) (bool, int, error) {
	r.mu.Lock()
	limiter, ok := r.local[cfg.Key]
	if !ok {
		every := cfg.Window / time.Duration(cfg.Limit)
		limiter = rate.NewLimiter(rate.Every(every), cfg.Limit)
		r.local[cfg.Key] = limiter
	}
	r.mu.Unlock()

	if !limiter.Allow() {
		return false, 0, nil
	}
	return true, int(limiter.Tokens()), nil
}

// PerMinute builds a config allowing limit requests per minute for key
func PerMinute(key string, limit int) RateLimitConfig {
	return RateLimitConfig{
		Key:    key,
		Limit:  limit,
		Window: time.Minute,
	}
}
