package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/adminhub/pkg/httputil"
	"github.com/platinummonkey/adminhub/pkg/observability"
)

// RateLimitConfig defines a fixed window limit
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
}

// DefaultLoginRateLimitConfig allows 10 attempts per minute per client
func DefaultLoginRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    time.Minute,
	}
}

// Limiter counts requests per key. retryAfter is meaningful when allowed is
// false.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// RedisRateLimiter shares a fixed window counter across instances
type RedisRateLimiter struct {
	redis  *redis.Client
	config RateLimitConfig
	prefix string
}

// NewRedisRateLimiter creates a Redis-backed limiter
func NewRedisRateLimiter(client *redis.Client, config RateLimitConfig, prefix string) *RedisRateLimiter {
	prefix = strings.TrimRight(prefix, ":")
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisRateLimiter{redis: client, config: config, prefix: prefix}
}

// hitScript counts a hit and opens the window in one step. A key that lost
// its TTL gets a fresh one so a client can never be locked out for good.
var hitScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 or redis.call('PTTL', KEYS[1]) < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {count, redis.call('PTTL', KEYS[1])}
`)

func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	redisKey := fmt.Sprintf("%s:%s", rl.prefix, key)

	res, err := hitScript.Run(ctx, rl.redis, []string{redisKey}, rl.config.WindowDuration.Milliseconds()).Result()
	if err != nil {
		return true, 0, fmt.Errorf("redis error: %w", err)
	}
	values, ok := res.([]interface{})
	if !ok || len(values) != 2 {
		return true, 0, fmt.Errorf("redis error: unexpected reply %v", res)
	}
	count, _ := values[0].(int64)
	pttl, _ := values[1].(int64)

	if count <= int64(rl.config.RequestsPerWindow) {
		return true, 0, nil
	}
	ttl := time.Duration(pttl) * time.Millisecond
	if ttl <= 0 {
		ttl = rl.config.WindowDuration
	}
	return false, ttl, nil
}

// Reset clears the counter for a key
func (rl *RedisRateLimiter) Reset(ctx context.Context, key string) error {
	return rl.redis.Del(ctx, fmt.Sprintf("%s:%s", rl.prefix, key)).Err()
}

// MemoryRateLimiter is the single-instance fallback
type MemoryRateLimiter struct {
	config  RateLimitConfig
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

type window struct {
	start time.Time
	count int
}

// NewMemoryRateLimiter creates an in-process limiter
func NewMemoryRateLimiter(config RateLimitConfig) *MemoryRateLimiter {
	return &MemoryRateLimiter{
		config:  config,
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

func (rl *MemoryRateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	win, ok := rl.windows[key]
	if !ok || now.Sub(win.start) >= rl.config.WindowDuration {
		win = &window{start: now}
		rl.windows[key] = win
	}
	win.count++
	if win.count <= rl.config.RequestsPerWindow {
		return true, 0, nil
	}
	return false, win.start.Add(rl.config.WindowDuration).Sub(now), nil
}

// Len returns the number of tracked windows
func (rl *MemoryRateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.windows)
}

// Cleanup drops expired windows
func (rl *MemoryRateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, win := range rl.windows {
		if now.Sub(win.start) >= rl.config.WindowDuration {
			delete(rl.windows, key)
		}
	}
}

// RateLimit limits requests per client IP. Limiter errors fail open.
func RateLimit(limiter Limiter, name string, metrics *observability.Metrics, logger logrus.FieldLogger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := name + ":" + ClientIP(r)
			allowed, retryAfter, err := limiter.Allow(r.Context(), key)
			if err != nil {
				observability.FromContext(r.Context(), logger).WithError(err).
					WithField("limiter", name).Warn("rate limiter unavailable, allowing request")
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				if metrics != nil {
					metrics.RateLimitedTotal.WithLabelValues(name).Inc()
				}
				seconds := int(retryAfter.Round(time.Second).Seconds())
				if seconds < 1 {
					seconds = 1
				}
				w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
				httputil.WriteTooManyRequests(w, "too many attempts, try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
