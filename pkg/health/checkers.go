package health

import (
	"context"
	"errors"
	"time"

	"github.com/nimburion/servicekit/pkg/observability/tracing"
	"github.com/nimburion/servicekit/pkg/store"
)

const defaultCheckTimeout = 5 * time.Second

// Pinger is anything that can verify its own liveness, such as a store.Manager.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// BackendChecker pings one backend under a timeout and records a
// backend.healthcheck span for each run.
type BackendChecker struct {
	name      string
	target    Pinger
	timeout   time.Duration
	connected func() bool
}

// NewBackendChecker returns a checker for target. A non-positive timeout means five seconds.
func NewBackendChecker(name string, target Pinger, timeout time.Duration) *BackendChecker {
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}
	c := &BackendChecker{name: name, target: target, timeout: timeout}
	if m, ok := target.(store.Manager); ok {
		c.connected = m.Connected
	}
	return c
}

// Name returns the registry key the checker reports under.
func (c *BackendChecker) Name() string { return c.name }

// Check pings the backend once. A timeout is reported with its own message.
func (c *BackendChecker) Check(ctx context.Context) CheckResult {
	ctx, span := tracing.StartBackendSpan(ctx, tracing.SpanOperationHealthCheck, c.name)

	start := time.Now()
	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	err := c.target.HealthCheck(checkCtx)
	cancel()
	tracing.End(span, err)

	result := CheckResult{
		Name:      c.name,
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Duration:  time.Since(start),
	}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			result.Error = "health check timed out after " + c.timeout.String()
		}
	}
	if c.connected != nil {
		result.Metadata = map[string]any{"connected": c.connected()}
	}
	return result
}

// RegisterStore adds a BackendChecker for every manager currently held by
// backends, named after its registry key.
func (r *Registry) RegisterStore(backends *store.Registry, timeout time.Duration) {
	for name, m := range backends.Snapshot() {
		r.Register(NewBackendChecker(name, m, timeout))
	}
}
