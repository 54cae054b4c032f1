// Package recovery turns handler panics into 500 responses.
package recovery

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/nimburion/servicekit/pkg/middleware/requestid"
	"github.com/nimburion/servicekit/pkg/observability/logger"
)

// Recovery creates middleware that recovers from panics in HTTP handlers.
// It logs the panic with its stack trace and answers HTTP 500 when nothing
// has been written yet.
func Recovery(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			requestID := requestid.GetRequestID(c.Request.Context())

			log.Error("panic recovered",
				"request_id", requestID,
				"panic", r,
				"stack", string(debug.Stack()),
			)

			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":      "internal_server_error",
				"message":    "an unexpected error occurred",
				"request_id": requestID,
			})
		}()

		c.Next()
	}
}
