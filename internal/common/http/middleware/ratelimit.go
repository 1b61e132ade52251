package middleware

import (
	"context"
	"time"

	"hsoj/internal/common/cache"
	appErr "hsoj/pkg/errors"
	"hsoj/pkg/utils/logger"
	"hsoj/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	rateKeyPrefix       = "judge:rate:"
	defaultCacheTimeout = 200 * time.Millisecond
)

// RateLimiter enforces a fixed-window request limit per key using Redis.
type RateLimiter struct {
	counter cache.CounterOps
	max     int
	window  time.Duration
	timeout time.Duration
}

// NewRateLimiter allows max requests per window. max <= 0 disables limiting.
func NewRateLimiter(counter cache.CounterOps, max int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{counter: counter, max: max, window: window, timeout: defaultCacheTimeout}
}

// Allow counts one request for key and fails with TooManyRequests once the
// window's budget is spent.
func (l *RateLimiter) Allow(ctx context.Context, key string) error {
	if l == nil || l.max <= 0 {
		return nil
	}
	if l.counter == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("rate limit cache is unavailable")
	}
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	key = rateKeyPrefix + key
	acquired, err := l.counter.SetNX(ctx, key, 1, l.window)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "rate limit check failed")
	}
	count := int64(1)
	if !acquired {
		count, err = l.counter.Incr(ctx, key)
		if err != nil {
			return appErr.Wrapf(err, appErr.CacheError, "rate limit check failed")
		}
		if ttl, ttlErr := l.counter.TTL(ctx, key); ttlErr == nil && ttl <= 0 {
			_ = l.counter.Expire(ctx, key, l.window)
		}
	}
	if count > int64(l.max) {
		return appErr.Newf(appErr.TooManyRequests, "rate limit exceeded, retry in %s", l.window)
	}
	return nil
}

// RateLimit limits requests per client IP under routeKey. Cache failures are
// logged and let the request through.
func RateLimit(l *RateLimiter, routeKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := l.Allow(c.Request.Context(), routeKey+":"+c.ClientIP())
		if err == nil {
			c.Next()
			return
		}
		if appErr.Is(err, appErr.TooManyRequests) {
			response.AbortWithError(c, err)
			return
		}
		logger.Warn(c.Request.Context(), "rate limit check failed", zap.Error(err))
		c.Next()
	}
}
