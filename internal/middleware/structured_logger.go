package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tesslate/studio-orchestrator/internal/logger"
)

// StructuredLoggerConfig controls what StructuredLogger logs.
type StructuredLoggerConfig struct {
	SkipPaths       []string
	SkipHealthCheck bool
	LogQuery        bool
}

// DefaultStructuredLoggerConfig skips /health and logs query strings.
func DefaultStructuredLoggerConfig() StructuredLoggerConfig {
	return StructuredLoggerConfig{SkipHealthCheck: true, LogQuery: true}
}

// StructuredLogger logs every HTTP request as a structured zerolog event,
// carrying the request ID set by RequestID for cross-component correlation.
func StructuredLogger(config StructuredLoggerConfig) gin.HandlerFunc {
	skip := make(map[string]bool, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skip[p] = true
	}
	if config.SkipHealthCheck {
		skip["/health"] = true
	}

	log := logger.HTTP()

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if skip[path] {
			c.Next()
			return
		}

		start := time.Now()
		raw := c.Request.URL.RawQuery
		c.Next()
		duration := time.Since(start)
		status := c.Writer.Status()

		evt := log.Info()
		switch {
		case status >= 500:
			evt = log.Error()
		case status >= 400:
			evt = log.Warn()
		}

		evt = evt.
			Str("request_id", GetRequestID(c)).
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP())

		if config.LogQuery && raw != "" {
			evt = evt.Str("query", raw)
		}
		if len(c.Errors) > 0 {
			evt = evt.Str("errors", c.Errors.String())
		}
		evt.Msg("http_request")
	}
}
