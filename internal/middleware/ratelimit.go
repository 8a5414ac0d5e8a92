package middleware

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/akshaypatra/learning-path-dashboard-backend/internal/http/respond"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/logger"
)

// Decision is the result of a single rate-limit check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter decides whether the caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// MemoryLimiter keeps one token bucket per key. Buckets idle for longer than a
// refill cycle are evicted by go-cache.
type MemoryLimiter struct {
	buckets *gocache.Cache
	limit   rate.Limit
	burst   int
}

// NewMemoryLimiter allows perMinute requests per key, with bursts of the same size.
func NewMemoryLimiter(perMinute int) *MemoryLimiter {
	if perMinute < 1 {
		perMinute = 1
	}
	return &MemoryLimiter{
		buckets: gocache.New(2*time.Minute, 5*time.Minute),
		limit:   rate.Limit(float64(perMinute) / 60.0),
		burst:   perMinute,
	}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	var l *rate.Limiter
	if v, ok := m.buckets.Get(key); ok {
		l = v.(*rate.Limiter)
	} else {
		l = rate.NewLimiter(m.limit, m.burst)
		if err := m.buckets.Add(key, l, gocache.DefaultExpiration); err != nil {
			// Lost a race with a concurrent first request for the same key.
			if v, ok := m.buckets.Get(key); ok {
				l = v.(*rate.Limiter)
			}
		}
	}
	m.buckets.SetDefault(key, l)

	if l.Allow() {
		return Decision{Allowed: true}, nil
	}
	return Decision{RetryAfter: time.Duration(float64(time.Second) / float64(m.limit))}, nil
}

// RedisLimiter is a fixed-window counter shared by every instance pointing at the same redis.
type RedisLimiter struct {
	client redis.Cmdable
	prefix string
	max    int64
	window time.Duration
	now    func() time.Time
}

// NewRedisLimiter allows perMinute requests per key and minute window.
func NewRedisLimiter(client redis.Cmdable, prefix string, perMinute int) *RedisLimiter {
	if prefix == "" {
		prefix = "rl:"
	}
	if perMinute < 1 {
		perMinute = 1
	}
	return &RedisLimiter{client: client, prefix: prefix, max: int64(perMinute), window: time.Minute, now: time.Now}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	windowStart := l.now().UTC().Truncate(l.window)
	redisKey := fmt.Sprintf("%s%s:%d", l.prefix, key, windowStart.Unix())

	hits, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return Decision{}, err
	}
	if hits == 1 {
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return Decision{}, err
		}
	}
	if hits <= l.max {
		return Decision{Allowed: true}, nil
	}
	retry := windowStart.Add(l.window).Sub(l.now().UTC())
	if retry <= 0 {
		retry = time.Second
	}
	return Decision{RetryAfter: retry}, nil
}

// RateLimitRecorder is told about rejected requests.
type RateLimitRecorder interface {
	RateLimited(route string)
}

// RateLimit rejects callers over the limit with 429. Requests are keyed by client IP and
// route. When the limiter itself fails the request is let through.
func RateLimit(l Limiter, route string, rec RateLimitRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := route + "|" + clientIP(r)
			d, err := l.Allow(r.Context(), key)
			if err != nil {
				logger.From(r.Context()).Warn("rate limiter unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if !d.Allowed {
				if rec != nil {
					rec.RateLimited(route)
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.RetryAfter.Seconds()))))
				respond.Error(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
