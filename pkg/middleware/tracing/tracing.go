// Package tracing opens an OpenTelemetry server span for every HTTP request.
package tracing

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/nimburion/servicekit/pkg/middleware/requestid"
	"github.com/nimburion/servicekit/pkg/observability/logger"
)

// Config holds configuration for the tracing middleware.
type Config struct {
	// TracerName defaults to "http-server".
	TracerName string

	// ExcludedPathPrefixes disables tracing for matching path prefixes.
	ExcludedPathPrefixes []string

	// PathPolicies applies mode by best-matching path prefix.
	PathPolicies []PathPolicy
}

// Mode defines tracing verbosity for matching request paths.
type Mode string

const (
	ModeOff     Mode = "off"
	ModeMinimal Mode = "minimal"
	ModeFull    Mode = "full"
)

// PathPolicy configures tracing mode for a path prefix.
type PathPolicy struct {
	Prefix string
	Mode   Mode
}

// DefaultConfig skips the Prometheus scrape endpoint.
func DefaultConfig() Config {
	return Config{
		TracerName:           "http-server",
		ExcludedPathPrefixes: []string{"/metrics"},
	}
}

// Tracing extracts the W3C trace context of the caller, opens a server span named
// "HTTP <method> <route>" and exposes the trace id to loggers through the request context.
func Tracing(cfg Config) gin.HandlerFunc {
	if cfg.TracerName == "" {
		cfg.TracerName = "http-server"
	}
	cfg = normalize(cfg)

	tracer := otel.Tracer(cfg.TracerName)

	return func(c *gin.Context) {
		req := c.Request
		mode := cfg.modeForPath(req.URL.Path)
		if mode == ModeOff {
			c.Next()
			return
		}

		ctx := otel.GetTextMapPropagator().Extract(req.Context(), propagation.HeaderCarrier(req.Header))
		ctx, span := tracer.Start(ctx, spanName(c), trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		span.SetAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.target", req.URL.Path),
		)
		if mode == ModeFull {
			span.SetAttributes(
				attribute.String("http.route", c.FullPath()),
				attribute.String("http.host", req.Host),
				attribute.String("http.user_agent", req.UserAgent()),
				attribute.String("http.remote_addr", req.RemoteAddr),
			)
		}
		if id := requestid.GetRequestID(ctx); id != "" {
			span.SetAttributes(attribute.String("request.id", id))
		}
		if sc := span.SpanContext(); sc.HasTraceID() {
			ctx = logger.ContextWithTraceID(ctx, sc.TraceID().String())
		}

		c.Request = req.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		switch {
		case len(c.Errors) > 0:
			span.RecordError(c.Errors.Last())
			span.SetStatus(codes.Error, c.Errors.Last().Error())
		case status >= 500:
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
		default:
			span.SetStatus(codes.Ok, "")
		}
	}
}

func spanName(c *gin.Context) string {
	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	return fmt.Sprintf("HTTP %s %s", c.Request.Method, route)
}

func normalize(cfg Config) Config {
	policies := make([]PathPolicy, len(cfg.PathPolicies))
	for i, policy := range cfg.PathPolicies {
		policies[i] = PathPolicy{Prefix: policy.Prefix, Mode: parseMode(policy.Mode)}
	}
	cfg.PathPolicies = policies
	return cfg
}

func (cfg Config) modeForPath(path string) Mode {
	for _, prefix := range cfg.ExcludedPathPrefixes {
		if strings.HasPrefix(path, prefix) {
			return ModeOff
		}
	}

	bestLen := -1
	bestMode := ModeFull
	for _, policy := range cfg.PathPolicies {
		if strings.TrimSpace(policy.Prefix) == "" {
			continue
		}
		if strings.HasPrefix(path, policy.Prefix) && len(policy.Prefix) > bestLen {
			bestLen = len(policy.Prefix)
			bestMode = policy.Mode
		}
	}
	return bestMode
}

func parseMode(mode Mode) Mode {
	switch strings.ToLower(strings.TrimSpace(string(mode))) {
	case string(ModeOff):
		return ModeOff
	case string(ModeMinimal):
		return ModeMinimal
	default:
		return ModeFull
	}
}
