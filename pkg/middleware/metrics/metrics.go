// Package metrics records Prometheus HTTP metrics for every request.
package metrics

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nimburion/servicekit/pkg/observability/metrics"
)

// unmatchedPath labels requests that hit no route, keeping label cardinality bounded.
const unmatchedPath = "unmatched"

// Metrics creates middleware that records request duration, count and in-flight
// requests on m. Paths are labelled with the route template, not the raw URL.
func Metrics(m *metrics.HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		m.IncrementInFlight()
		defer m.DecrementInFlight()

		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = unmatchedPath
		}
		m.Record(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
