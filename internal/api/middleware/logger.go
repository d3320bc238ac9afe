package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rl-arena/rl-arena-matchmaker/pkg/logger"
)

// Logger HTTP 요청 로깅 미들웨어
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := redactedQuery(c)

		c.Next()

		fields := []interface{}{
			"method", c.Request.Method,
			"path", path,
			"query", query,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}

		if c.Writer.Status() >= 500 {
			logger.Error("HTTP Request", fields...)
			return
		}
		logger.Info("HTTP Request", fields...)
	}
}

// redactedQuery drops the websocket token so it never reaches the logs.
func redactedQuery(c *gin.Context) string {
	values := c.Request.URL.Query()
	if values.Get("token") == "" {
		return c.Request.URL.RawQuery
	}
	values.Set("token", "REDACTED")
	return values.Encode()
}
