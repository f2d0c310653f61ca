package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/trmquang93/planning-poker-sub001/internal/audit"
	apperrors "github.com/trmquang93/planning-poker-sub001/internal/errors"
	"github.com/trmquang93/planning-poker-sub001/internal/httputil"
)

const (
	rateLimitKeyPrefix = "poker:ratelimit:"

	maxEntries      = 10000
	cleanupInterval = time.Minute
	entryTTL        = 5 * time.Minute
)

// Limiter decides whether one more hit under key fits in a sliding window.
type Limiter interface {
	Check(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, remaining int, resetAt time.Time)
}

type rateLimitEntry struct {
	timestamps []time.Time
	lastAccess time.Time
}

// MemoryLimiter is a per-process sliding window limiter.
type MemoryLimiter struct {
	mu          sync.Mutex
	store       map[string]*rateLimitEntry
	lastCleanup time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		store:       make(map[string]*rateLimitEntry),
		lastCleanup: time.Now(),
	}
}

func (rl *MemoryLimiter) cleanup(now time.Time) {
	if now.Sub(rl.lastCleanup) < cleanupInterval {
		return
	}
	rl.lastCleanup = now

	for key, entry := range rl.store {
		if now.Sub(entry.lastAccess) > entryTTL {
			delete(rl.store, key)
		}
	}

	if len(rl.store) > maxEntries {
		drop := len(rl.store) / 5
		for key := range rl.store {
			if drop == 0 {
				break
			}
			delete(rl.store, key)
			drop--
		}
	}
}

func (rl *MemoryLimiter) Check(_ context.Context, key string, limit int, window time.Duration) (bool, int, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.cleanup(now)

	entry, exists := rl.store[key]
	if !exists {
		entry = &rateLimitEntry{}
		rl.store[key] = entry
	}
	entry.lastAccess = now

	windowStart := now.Add(-window)
	filtered := entry.timestamps[:0]
	for _, ts := range entry.timestamps {
		if ts.After(windowStart) {
			filtered = append(filtered, ts)
		}
	}
	entry.timestamps = filtered

	resetAt := now.Add(window)
	if len(entry.timestamps) > 0 {
		resetAt = entry.timestamps[0].Add(window)
	}

	if len(entry.timestamps) >= limit {
		return false, 0, resetAt
	}

	entry.timestamps = append(entry.timestamps, now)
	return true, limit - len(entry.timestamps), resetAt
}

var rateLimitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

local count = redis.call('ZCARD', key)

if count >= limit then
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    local resetAt = now + window
    if #oldest >= 2 then
        resetAt = tonumber(oldest[2]) + window
    end
    return {0, 0, resetAt}
end

redis.call('ZADD', key, now, now .. '-' .. math.random())
redis.call('EXPIRE', key, window + 10)

return {1, limit - count - 1, now + window}
`)

// RedisLimiter shares the sliding window across instances.
type RedisLimiter struct {
	client redis.Scripter
}

func NewRedisLimiter(client redis.Scripter) *RedisLimiter {
	return &RedisLimiter{client: client}
}

// Check allows the request when Redis cannot be reached.
func (rl *RedisLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (bool, int, time.Time) {
	now := time.Now().Unix()
	seconds := int64(window.Seconds())

	result, err := rateLimitScript.Run(ctx, rl.client, []string{rateLimitKeyPrefix + key}, now, seconds, limit).Int64Slice()
	if err != nil || len(result) != 3 {
		log.Warn().Err(err).Str("key", key).Msg("redis rate limit check failed, allowing request")
		return true, limit - 1, time.Unix(now+seconds, 0)
	}

	return result[0] == 1, int(result[1]), time.Unix(result[2], 0)
}

// IPRateLimitMiddleware limits requests per client IP.
type IPRateLimitMiddleware struct {
	limiter Limiter
	limit   int
	window  time.Duration
	prefix  string
}

func NewIPRateLimitMiddleware(limiter Limiter, limit int, window time.Duration, prefix string) *IPRateLimitMiddleware {
	return &IPRateLimitMiddleware{
		limiter: limiter,
		limit:   limit,
		window:  window,
		prefix:  prefix,
	}
}

func (m *IPRateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := fmt.Sprintf("ip:%s:%s", m.prefix, remoteHost(r))
		allowed, remaining, resetAt := m.limiter.Check(r.Context(), key, m.limit, m.window)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			secondsLeft := int(time.Until(resetAt).Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(secondsLeft))
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventRateLimitExceed,
				Details: map[string]interface{}{"scope": m.prefix},
			})
			httputil.WriteError(w, apperrors.RateLimitExceeded())
			return
		}

		next.ServeHTTP(w, r)
	})
}

// remoteHost is the client address without its port. Forwarding headers are
// only honored once chi's RealIP has rewritten RemoteAddr.
func remoteHost(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
