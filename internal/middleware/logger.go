package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Logger returns a Gin middleware that logs each request using zap.
// Long-lived streams are logged when they end, with their full duration.
func Logger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		}
		if id := CurrentUserID(c); id > 0 {
			fields = append(fields, zap.Int64("user_id", id))
		}
		if strings.HasSuffix(path, "/health") {
			log.Debug("request", fields...)
			return
		}
		log.Info("request", fields...)
	}
}
