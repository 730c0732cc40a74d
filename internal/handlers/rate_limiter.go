package handlers

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tienda-delivery/api/internal/platform/httpx"
	"github.com/tienda-delivery/api/internal/platform/requestctx"
)

// Decision is the outcome of charging one request against a fixed window.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// RateLimiter charges a request to the budget of key.
type RateLimiter interface {
	Take(ctx context.Context, key string) Decision
}

type memoryWindow struct {
	used    int
	resetAt time.Time
}

type memoryRateLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	windows map[string]memoryWindow
	sweepAt time.Time
}

// NewMemoryRateLimiter keeps fixed windows in process. It returns nil, which
// disables limiting, when limit or window is not positive.
func NewMemoryRateLimiter(limit int, window time.Duration, clock func() time.Time) RateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &memoryRateLimiter{limit: limit, window: window, clock: clock, windows: map[string]memoryWindow{}}
}

func (l *memoryRateLimiter) Take(_ context.Context, key string) Decision {
	key = limiterKey(key)
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.After(l.sweepAt) {
		for k, w := range l.windows {
			if !now.Before(w.resetAt) {
				delete(l.windows, k)
			}
		}
		l.sweepAt = now.Add(l.window)
	}

	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = memoryWindow{resetAt: now.Add(l.window)}
	}
	if w.used >= l.limit {
		return Decision{Limit: l.limit, RetryAfter: w.resetAt.Sub(now)}
	}
	w.used++
	l.windows[key] = w
	return Decision{Allowed: true, Limit: l.limit, Remaining: l.limit - w.used}
}

type redisRateLimiter struct {
	client redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
	clock  func() time.Time
	logger *zap.Logger
}

// NewRedisRateLimiter counts windows in Redis so replicas share one budget.
// When Redis cannot be reached the request is allowed.
func NewRedisRateLimiter(client redis.UniversalClient, prefix string, limit int, window time.Duration, logger *zap.Logger) RateLimiter {
	if client == nil || limit <= 0 || window <= 0 {
		return nil
	}
	if prefix = strings.TrimSpace(prefix); prefix == "" {
		prefix = "ratelimit:"
	}
	return &redisRateLimiter{client: client, prefix: prefix, limit: limit, window: window, clock: time.Now, logger: logger}
}

func (l *redisRateLimiter) Take(ctx context.Context, key string) Decision {
	now := l.clock()
	slot := now.UnixNano() / int64(l.window)
	counter := l.prefix + limiterKey(key) + ":" + strconv.FormatInt(slot, 10)

	pipe := l.client.TxPipeline()
	used := pipe.Incr(ctx, counter)
	pipe.Expire(ctx, counter, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		requestctx.LoggerOr(ctx, l.logger).Warn("rate limiter unavailable", zap.String("key", counter), zap.Error(err))
		return Decision{Allowed: true, Limit: l.limit, Remaining: l.limit}
	}

	count := int(min(used.Val(), int64(math.MaxInt32)))
	if count > l.limit {
		resetAt := time.Unix(0, (slot+1)*int64(l.window))
		return Decision{Limit: l.limit, RetryAfter: resetAt.Sub(now)}
	}
	return Decision{Allowed: true, Limit: l.limit, Remaining: l.limit - count}
}

func limiterKey(key string) string {
	if key = strings.TrimSpace(key); key != "" {
		return key
	}
	return "anonymous"
}

// rateLimited answers 429 once a client exhausts its window under scope. A nil limiter passes everything.
func rateLimited(limiter RateLimiter, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := limiter.Take(r.Context(), scope+":"+clientAddress(r))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			if !decision.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(decision.RetryAfter)))
				httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many requests, try again later", http.StatusTooManyRequests))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func retryAfterSeconds(d time.Duration) int {
	return max(1, int(math.Ceil(d.Seconds())))
}

func clientAddress(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
