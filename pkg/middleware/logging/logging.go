// Package logging emits one structured log event per HTTP request.
package logging

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nimburion/servicekit/pkg/observability/logger"
)

// Mode defines the logging verbosity for matching request paths.
type Mode string

// Logging mode constants
const (
	// ModeOff disables request logging
	ModeOff Mode = "off"
	// ModeMinimal logs method, path and status only
	ModeMinimal Mode = "minimal"
	// ModeFull logs the start event and every configured field
	ModeFull Mode = "full"
)

// Log field name constants
const (
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldRoute      = "route"
	FieldStatus     = "status"
	FieldDurationMS = "duration_ms"
	FieldRemoteAddr = "remote_addr"
	FieldUserAgent  = "user_agent"
	FieldError      = "error"
)

var minimalFields = []string{FieldMethod, FieldPath, FieldStatus}

var fullFields = []string{
	FieldMethod,
	FieldPath,
	FieldRoute,
	FieldStatus,
	FieldDurationMS,
	FieldRemoteAddr,
	FieldUserAgent,
	FieldError,
}

// Config configures request logging middleware behavior.
type Config struct {
	Enabled              bool
	LogStart             bool
	ExcludedPathPrefixes []string
	PathPolicies         []PathPolicy
}

// PathPolicy configures a logging mode for a path prefix.
type PathPolicy struct {
	Prefix string
	Mode   Mode
}

// DefaultConfig returns default request logging behavior. Scrapes of /metrics
// are excluded.
func DefaultConfig() Config {
	return Config{
		Enabled:              true,
		LogStart:             false,
		ExcludedPathPrefixes: []string{"/metrics"},
		PathPolicies:         []PathPolicy{},
	}
}

// Logging creates middleware with default configuration.
func Logging(log logger.Logger) gin.HandlerFunc {
	return WithConfig(log, DefaultConfig())
}

// WithConfig creates request logging middleware with custom configuration.
// The request logger is derived from the request context, so request and trace
// ids set by earlier middleware are attached to every event.
func WithConfig(log logger.Logger, cfg Config) gin.HandlerFunc {
	normalized := normalize(cfg)

	return func(c *gin.Context) {
		mode := normalized.modeForPath(c.Request.URL.Path)
		if mode == ModeOff {
			c.Next()
			return
		}

		reqLog := log.WithContext(c.Request.Context())
		start := time.Now()

		if normalized.LogStart && mode == ModeFull {
			reqLog.Info("request started", FieldMethod, c.Request.Method, FieldPath, c.Request.URL.Path)
		}

		c.Next()

		fields := buildFields(mode, c, time.Since(start))
		status := c.Writer.Status()
		switch {
		case len(c.Errors) > 0 || status >= http.StatusInternalServerError:
			reqLog.Error("request failed", fields...)
		case status >= http.StatusBadRequest:
			reqLog.Warn("request completed", fields...)
		default:
			reqLog.Info("request completed", fields...)
		}
	}
}

func normalize(cfg Config) Config {
	normalized := cfg
	normalized.PathPolicies = make([]PathPolicy, 0, len(cfg.PathPolicies))
	for _, policy := range cfg.PathPolicies {
		normalized.PathPolicies = append(normalized.PathPolicies, PathPolicy{
			Prefix: policy.Prefix,
			Mode:   parseMode(policy.Mode),
		})
	}
	return normalized
}

func (c Config) modeForPath(path string) Mode {
	if !c.Enabled {
		return ModeOff
	}

	for _, prefix := range c.ExcludedPathPrefixes {
		if strings.HasPrefix(path, prefix) {
			return ModeOff
		}
	}

	bestLen := -1
	bestMode := ModeFull
	for _, policy := range c.PathPolicies {
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

func buildFields(mode Mode, c *gin.Context, duration time.Duration) []any {
	fields := fullFields
	if mode == ModeMinimal {
		fields = minimalFields
	}

	args := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		value, ok := resolveFieldValue(field, c, duration)
		if !ok {
			continue
		}
		args = append(args, field, value)
	}
	return args
}

func resolveFieldValue(field string, c *gin.Context, duration time.Duration) (any, bool) {
	switch field {
	case FieldMethod:
		return c.Request.Method, true
	case FieldPath:
		return c.Request.URL.Path, true
	case FieldRoute:
		route := c.FullPath()
		return route, route != ""
	case FieldStatus:
		return c.Writer.Status(), true
	case FieldDurationMS:
		return duration.Milliseconds(), true
	case FieldRemoteAddr:
		return c.ClientIP(), true
	case FieldUserAgent:
		return c.Request.UserAgent(), true
	case FieldError:
		if len(c.Errors) == 0 {
			return nil, false
		}
		return c.Errors.String(), true
	default:
		return nil, false
	}
}
