// Package middleware provides HTTP middleware for the orchestration core's
// control-plane API.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader is the header name for request correlation.
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is the context key for the request ID.
	RequestIDKey = "request_id"
)

// RequestID generates or extracts a correlation ID for each request, enabling
// log correlation across the control plane, substrate drivers, and task bus.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(RequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)
		c.Next()
	}
}

// GetRequestID retrieves the request ID from the Gin context.
func GetRequestID(c *gin.Context) string {
	if requestID, exists := c.Get(RequestIDKey); exists {
		if id, ok := requestID.(string); ok {
			return id
		}
	}
	return ""
}
