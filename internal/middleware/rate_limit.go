package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window request counter per client IP kept in Redis.
type RateLimiter struct {
	redis  redis.UniversalClient
	limit  int
	window time.Duration
	prefix string
	log    *slog.Logger
}

func NewRateLimiter(rdb redis.UniversalClient, limit int, window time.Duration, log *slog.Logger) *RateLimiter {
	return &RateLimiter{
		redis:  rdb,
		limit:  limit,
		window: window,
		prefix: "authapi:rl:",
		log:    log.With("component", "rate-limit"),
	}
}

// Allow counts one hit for key and reports whether it fits the window.
// When it does not, retryAfter is the time left until the window resets.
func (l *RateLimiter) Allow(ctx context.Context, key string) (allowed bool, remaining int, retryAfter time.Duration, err error) {
	k := l.prefix + key
	count, err := l.redis.Incr(ctx, k).Result()
	if err != nil {
		return false, 0, 0, err
	}
	// окно открывается первым запросом
	if count == 1 {
		if err := l.redis.Expire(ctx, k, l.window).Err(); err != nil {
			return false, 0, 0, err
		}
	}
	if count <= int64(l.limit) {
		return true, l.limit - int(count), 0, nil
	}

	ttl, err := l.redis.PTTL(ctx, k).Result()
	if err != nil {
		return false, 0, 0, err
	}
	if ttl <= 0 {
		ttl = l.window
	}
	return false, 0, ttl, nil
}

// Middleware lets requests through when Redis is unreachable.
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, remaining, retryAfter, err := l.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			l.log.WarnContext(c.Request.Context(), "rate limiter unavailable", "err", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(l.limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !allowed {
			secs := int((retryAfter + time.Second - 1) / time.Second)
			c.Header("Retry-After", strconv.Itoa(secs))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"status":  "failed",
				"message": "Too many requests, please try again later.",
			})
			return
		}
		c.Next()
	}
}
