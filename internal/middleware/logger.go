package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// quietPaths are polled by supervisors and scrapers; successful hits log at debug
var quietPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// Logger returns a request logging middleware
func Logger(logger *zap.Logger) gin.HandlerFunc {
	logger = logger.With(zap.String("component", "agent_http"))

	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		fields := []zap.Field{
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", latency),
			zap.String("request_id", GetRequestID(c)),
		}

		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case status >= 500:
			logger.Error("server error", fields...)
		case status >= 400:
			logger.Warn("client error", fields...)
		default:
			if _, quiet := quietPaths[path]; quiet {
				logger.Debug("request", fields...)
				return
			}
			logger.Info("request", fields...)
		}
	}
}
