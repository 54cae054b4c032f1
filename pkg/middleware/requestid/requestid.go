// Package requestid assigns every request a correlation id.
package requestid

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nimburion/servicekit/pkg/middleware"
	"github.com/nimburion/servicekit/pkg/observability/logger"
)

// RequestIDHeader is the HTTP header name for request ID.
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLength bounds client supplied ids.
const maxRequestIDLength = 128

// RequestID creates middleware that generates or extracts request IDs.
// It preserves an incoming X-Request-ID, generates a UUID otherwise,
// echoes the id on the response and stores it on both the gin and request contexts.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = generateRequestID()
		}

		c.Set(string(middleware.RequestIDKey), requestID)
		c.Header(RequestIDHeader, requestID)

		ctx := logger.ContextWithRequestID(c.Request.Context(), requestID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

func generateRequestID() string {
	return uuid.New().String()
}

// GetRequestID extracts the request ID from a context.
// Returns empty string if no request ID is found.
func GetRequestID(ctx context.Context) string {
	return logger.RequestIDFromContext(ctx)
}
