// Package ratelimit bounds how many API requests a user can make in a
// sliding window, using a Redis sorted set per user.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/aimerfeng/minerewards/internal/cache"
	"github.com/aimerfeng/minerewards/internal/config"
	apierrors "github.com/aimerfeng/minerewards/internal/errors"
	"github.com/aimerfeng/minerewards/internal/logging"
	"github.com/aimerfeng/minerewards/internal/monitoring"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Limiter implements sliding window rate limiting using Redis
type Limiter struct {
	redis  *cache.Redis
	config *config.RateLimitConfig
	now    func() time.Time
}

// Result contains the result of a rate limit check
type Result struct {
	Allowed    bool
	Remaining  int64
	Limit      int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// New creates a limiter
func New(redis *cache.Redis, cfg *config.RateLimitConfig) *Limiter {
	return &Limiter{
		redis:  redis,
		config: cfg,
		now:    time.Now,
	}
}

func (l *Limiter) window() time.Duration {
	seconds := l.config.WindowSeconds
	if seconds <= 0 {
		seconds = 60
	}
	return time.Duration(seconds) * time.Second
}

func key(userID string) string {
	return fmt.Sprintf("ratelimit:sliding:%s", userID)
}

// slidingScript trims the window, then either records the request or
// reports the oldest entry so the caller can compute Retry-After. Counting
// and adding in one script keeps concurrent requests from overshooting.
//
// KEYS[1] window key; ARGV: now, window start, limit, member, ttl (ms)
var slidingScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '0', ARGV[2])
local count = redis.call('ZCARD', KEYS[1])
if count >= tonumber(ARGV[3]) then
	local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
	if oldest[2] then
		return {0, count, oldest[2]}
	end
	return {0, count}
end
redis.call('ZADD', KEYS[1], ARGV[1], ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return {1, count}
`)

// Check records a request for userID if it fits in the window. Redis errors
// allow the request.
func (l *Limiter) Check(ctx context.Context, userID string) (*Result, error) {
	limit := l.config.RequestsLimit
	now := l.now()
	window := l.window()

	// Trim, count and add atomically
	vals, err := slidingScript.Run(ctx, l.redis.Client, []string{key(userID)},
		now.UnixNano(), now.Add(-window).UnixNano(), limit, uuid.NewString(), (window * 2).Milliseconds(),
	).Slice()
	if err != nil || len(vals) < 2 {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to check rate limit")
		return &Result{Allowed: true, Remaining: int64(limit), Limit: limit}, nil
	}

	allowed, _ := vals[0].(int64)
	count, _ := vals[1].(int64)
	result := &Result{
		Limit:   limit,
		ResetAt: now.Add(window),
	}

	if allowed == 0 {
		result.RetryAfter = window

		// Retry once the oldest request leaves the window
		if len(vals) > 2 {
			if raw, ok := vals[2].(string); ok {
				if score, err := strconv.ParseFloat(raw, 64); err == nil {
					oldestAt := time.Unix(0, int64(score))
					result.RetryAfter = oldestAt.Add(window).Sub(now)
				}
			}
		}
		if result.RetryAfter < time.Second {
			result.RetryAfter = time.Second
		}
		result.ResetAt = now.Add(result.RetryAfter)
		return result, nil
	}

	result.Allowed = true
	result.Remaining = int64(limit) - count - 1
	if result.Remaining < 0 {
		result.Remaining = 0
	}
	return result, nil
}

// Reset clears the window of userID
func (l *Limiter) Reset(ctx context.Context, userID string) error {
	return l.redis.Client.Del(ctx, key(userID)).Err()
}

// Middleware limits authenticated requests per user. It must run after the
// authentication middleware.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("user_id")
		if userID == "" {
			c.Next()
			return
		}

		result, err := l.Check(c.Request.Context(), userID)
		if err != nil || result == nil {
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			monitoring.RecordRateLimitHit()
			logging.LogSecurityEvent("rate_limited", userID, c.ClientIP(), c.Request.URL.Path)
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(result.RetryAfter.Seconds()))))

			apiErr := *apierrors.ErrRateLimitedError
			apiErr.Details = map[string]any{"retry_after_seconds": int(math.Ceil(result.RetryAfter.Seconds()))}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, apierrors.NewErrorResponse(
				&apiErr,
				c.GetString("request_id"),
				c.GetString("correlation_id"),
				c.Request.URL.Path,
				c.Request.Method,
			))
			return
		}
		c.Next()
	}
}
