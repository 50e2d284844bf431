package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tasklist/apiserver/config"
	"github.com/tasklist/apiserver/internal/logging"
)

// tokenBucket refills whole intervals only, so a burst of Capacity requests
// is followed by one request per RefillInterval.
var tokenBucket = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local refill_tokens = tonumber(ARGV[3])
local interval_ms = tonumber(ARGV[4])
local ttl_seconds = tonumber(ARGV[5])

local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if tokens == nil or last_refill == nil then
	tokens = capacity
	last_refill = now_ms
end

if interval_ms > 0 and refill_tokens > 0 then
	local elapsed = math.max(0, now_ms - last_refill)
	local intervals = math.floor(elapsed / interval_ms)
	if intervals > 0 then
		tokens = math.min(capacity, tokens + (intervals * refill_tokens))
		last_refill = last_refill + (intervals * interval_ms)
	end
end

local allowed = 0
local retry_after_ms = 0
if tokens > 0 then
	allowed = 1
	tokens = tokens - 1
else
	retry_after_ms = math.max(0, interval_ms - (now_ms - last_refill))
end

redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
redis.call('EXPIRE', key, ttl_seconds)

return { allowed, tokens, retry_after_ms }
`)

// Decision is the outcome of taking one token from a bucket.
type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

type bucket interface {
	take(ctx context.Context, key string) (Decision, error)
}

type redisBucket struct {
	rdb redis.Scripter
	cfg config.RateLimitConfig
	now func() time.Time
}

func (b redisBucket) take(ctx context.Context, key string) (Decision, error) {
	ttl := int64(b.cfg.TTL / time.Second)
	if ttl < 1 {
		ttl = 1
	}
	vals, err := tokenBucket.Run(ctx, b.rdb, []string{key},
		b.now().UnixMilli(),
		b.cfg.Capacity,
		b.cfg.RefillTokens,
		b.cfg.RefillInterval.Milliseconds(),
		ttl,
	).Int64Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(vals) != 3 {
		return Decision{}, fmt.Errorf("unexpected script result %v", vals)
	}
	return Decision{
		Allowed:    vals[0] == 1,
		Remaining:  vals[1],
		RetryAfter: time.Duration(vals[2]) * time.Millisecond,
	}, nil
}

// Limiter throttles requests per client address and route using a token
// bucket kept in Redis. A nil Limiter lets every request through.
type Limiter struct {
	bucket   bucket
	capacity int
	prefix   string
	log      *slog.Logger
}

// New returns a Limiter backed by rdb, or nil when limiting is disabled or
// no Redis client is available.
func New(cfg config.RateLimitConfig, rdb *redis.Client, log *slog.Logger) *Limiter {
	if !cfg.Enabled || rdb == nil {
		return nil
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Limiter{
		bucket:   redisBucket{rdb: rdb, cfg: cfg, now: time.Now},
		capacity: cfg.Capacity,
		prefix:   cfg.Prefix,
		log:      log,
	}
}

// Middleware rejects requests whose bucket is empty with 429. Redis errors
// fail open.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := l.key(r)
		decision, err := l.bucket.take(r.Context(), key)
		if err != nil {
			l.log.WarnContext(r.Context(), "rate limiter unavailable", "key", key, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.capacity))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
		if !decision.Allowed {
			l.log.InfoContext(r.Context(), "rate limited", "key", key, "retry_after", decision.RetryAfter)
			writeLimited(w, decision.RetryAfter)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *Limiter) key(r *http.Request) string {
	return strings.Join([]string{l.prefix, "ip", clientIP(r), "route", r.Method + " " + r.URL.Path}, ":")
}

// clientIP reads RemoteAddr, which chi's RealIP middleware has already
// rewritten from forwarding headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "" {
		return "unknown"
	}
	return host
}

func writeLimited(w http.ResponseWriter, retryAfter time.Duration) {
	secs := int(math.Ceil(retryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"kind":    "rate_limited",
		"message": "rate limit exceeded",
	})
}
