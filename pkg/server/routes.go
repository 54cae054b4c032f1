package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nimburion/servicekit/pkg/health"
	"github.com/nimburion/servicekit/pkg/lifecycle"
	"github.com/nimburion/servicekit/pkg/middleware/logging"
	httpmetrics "github.com/nimburion/servicekit/pkg/middleware/metrics"
	"github.com/nimburion/servicekit/pkg/middleware/recovery"
	"github.com/nimburion/servicekit/pkg/middleware/requestid"
	"github.com/nimburion/servicekit/pkg/middleware/tracing"
	"github.com/nimburion/servicekit/pkg/observability/logger"
	"github.com/nimburion/servicekit/pkg/observability/metrics"
	"github.com/nimburion/servicekit/pkg/version"
)

// Route paths served by the status surface.
const (
	PathVersion = "/server/version"
	PathStatus  = "/server/status"
	PathHealth  = "/health"
	PathMetrics = "/metrics"
)

// StatusProvider reports the service status snapshot.
type StatusProvider interface {
	Status() lifecycle.Status
}

// EngineOptions are the collaborators of the status surface.
type EngineOptions struct {
	Version version.Info
	Status  StatusProvider
	Health  *health.Registry
	Metrics *metrics.Registry
	Logger  logger.Logger
}

// NewEngine builds the gin engine serving version, status, health and metrics.
//
// The middleware stack is, in order:
// 1. Request ID - generates/extracts request IDs for correlation
// 2. Tracing - opens a server span and exposes the trace id to loggers
// 3. Logging - logs HTTP requests with structured data
// 4. Recovery - catches panics and returns 500 errors
// 5. Metrics - records request count, duration and in-flight requests
func NewEngine(opts EngineOptions) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Health == nil {
		opts.Health = health.NewRegistry()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewRegistry()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(
		requestid.RequestID(),
		tracing.Tracing(tracing.DefaultConfig()),
		logging.Logging(opts.Logger),
		recovery.Recovery(opts.Logger),
		httpmetrics.Metrics(opts.Metrics.HTTP()),
	)

	engine.GET(PathVersion, func(c *gin.Context) {
		c.JSON(http.StatusOK, opts.Version)
	})

	engine.GET(PathStatus, func(c *gin.Context) {
		if opts.Status == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "status_unavailable"})
			return
		}
		c.JSON(http.StatusOK, opts.Status.Status())
	})

	engine.GET(PathHealth, func(c *gin.Context) {
		result := opts.Health.Check(c.Request.Context())
		status := http.StatusOK
		if result.Status == health.StatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, result)
	})

	engine.GET(PathMetrics, gin.WrapH(opts.Metrics.Handler()))

	return engine
}
