package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mocktalk/realtime/internal/pkg/response"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimitOptions configures a fixed-window limiter.
type RateLimitOptions struct {
	Prefix string
	Max    int64
	Window time.Duration
	// Key identifies the caller; an empty key skips limiting.
	Key func(c *gin.Context) string
}

// ByUser keys the limiter on the authenticated user, falling back to client ip.
func ByUser(c *gin.Context) string {
	if id := CurrentUserID(c); id > 0 {
		return fmt.Sprintf("u%d", id)
	}
	return c.ClientIP()
}

// RateLimit returns a middleware backed by Redis INCR counters. The limiter
// fails open when Redis is unavailable.
func RateLimit(rdb *redis.Client, opts RateLimitOptions, log *zap.Logger) gin.HandlerFunc {
	if opts.Window <= 0 {
		opts.Window = time.Second
	}
	if opts.Key == nil {
		opts.Key = ByUser
	}
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		if rdb == nil || opts.Max <= 0 {
			c.Next()
			return
		}

		id := opts.Key(c)
		if id == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		windowKey := time.Now().UnixNano() / int64(opts.Window)
		key := fmt.Sprintf("forum:rate_limit:%s:%s:%d", opts.Prefix, id, windowKey)

		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			log.Debug("rate limit counter unavailable", zap.Error(err))
			c.Next()
			return
		}

		if count == 1 {
			rdb.PExpire(ctx, key, opts.Window+time.Second)
		}

		if count > opts.Max {
			c.Header("Retry-After", fmt.Sprintf("%d", int(opts.Window.Seconds())+1))
			response.TooManyRequests(c)
			return
		}

		c.Next()
	}
}
