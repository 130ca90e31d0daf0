package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"authapi/internal/metrics"
)

// RequestLogger logs one line per request and records HTTP metrics.
// Only the route pattern is logged, never the raw path: verify-email
// carries its token in the path.
func RequestLogger(log *slog.Logger, m *metrics.Metrics) gin.HandlerFunc {
	log = log.With("component", "http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		elapsed := time.Since(start)
		route := c.FullPath()
		status := c.Writer.Status()
		m.ObserveHTTP(c.Request.Method, route, status, elapsed)

		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		attrs := []any{
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"took", elapsed.Truncate(time.Microsecond).String(),
			"ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}
		log.Log(c.Request.Context(), level, "request", attrs...)
	}
}
