package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dangerclosesec/tenantkit/internal/metrics"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window counter per scope and client IP, stored in
// Redis so limits hold across API replicas.
type RateLimiter struct {
	client  *redis.Client
	limit   int
	window  time.Duration
	metrics *metrics.Metrics
	prefix  string
}

func NewRateLimiter(client *redis.Client, limit int, window time.Duration, m *metrics.Metrics) *RateLimiter {
	return &RateLimiter{
		client:  client,
		limit:   limit,
		window:  window,
		metrics: m,
		prefix:  "tenantkit:ratelimit:",
	}
}

// Allow counts one hit for key and reports whether it is within the limit,
// along with the time until the window resets.
func (l *RateLimiter) Allow(ctx context.Context, scope, key string) (bool, time.Duration, error) {
	redisKey := l.prefix + scope + ":" + key

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, 0, err
	}

	// First hit of a window, or a key that lost its TTL.
	retry := ttl.Val()
	if retry < 0 {
		if err := l.client.PExpire(ctx, redisKey, l.window).Err(); err != nil {
			return true, 0, err
		}
		retry = l.window
	}
	return incr.Val() <= int64(l.limit), retry, nil
}

// Limit returns middleware enforcing the limit for scope. A nil limiter or
// a Redis failure lets requests through.
func (l *RateLimiter) Limit(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil || l.client == nil || l.limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, retry, err := l.Allow(r.Context(), scope, clientIP(r))
			if err != nil {
				slog.WarnContext(r.Context(), "rate limiter unavailable",
					"scope", scope,
					"error", err,
					"requestID", chimw.GetReqID(r.Context()))
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				l.metrics.RateLimited(scope)
				secs := int(retry.Round(time.Second) / time.Second)
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				respondWithError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
