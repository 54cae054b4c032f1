// Package health aggregates readiness checks over the connected backends.
package health

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status is the outcome of a single check or of the aggregate.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// severity orders statuses so the aggregate can keep the worst one.
func (s Status) severity() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// CheckResult is the report of one checker.
type CheckResult struct {
	Name      string         `json:"name"`
	Status    Status         `json:"status"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Duration  time.Duration  `json:"duration"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Checker reports the health of one named component.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// CheckFunc adapts a plain function into a Checker.
type CheckFunc func(ctx context.Context) CheckResult

type funcChecker struct {
	name string
	fn   CheckFunc
}

func (c funcChecker) Name() string { return c.name }

func (c funcChecker) Check(ctx context.Context) CheckResult {
	result := c.fn(ctx)
	if result.Name == "" {
		result.Name = c.name
	}
	return result
}

// Registry holds checkers keyed by name. Registering a name twice replaces the first checker.
type Registry struct {
	mu       sync.RWMutex
	checkers map[string]Checker
}

func NewRegistry() *Registry {
	return &Registry{checkers: map[string]Checker{}}
}

func (r *Registry) Register(checker Checker) {
	r.mu.Lock()
	r.checkers[checker.Name()] = checker
	r.mu.Unlock()
}

func (r *Registry) RegisterFunc(name string, fn CheckFunc) {
	r.Register(funcChecker{name: name, fn: fn})
}

func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	delete(r.checkers, name)
	r.mu.Unlock()
}

// List returns the registered names in lexical order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.checkers))
	for name := range r.checkers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// CheckOne runs the checker registered under name.
func (r *Registry) CheckOne(ctx context.Context, name string) (CheckResult, error) {
	r.mu.RLock()
	checker, ok := r.checkers[name]
	r.mu.RUnlock()
	if !ok {
		return CheckResult{}, fmt.Errorf("health check not found: %s", name)
	}
	return checker.Check(ctx), nil
}

// Check runs every checker in parallel. Results come back in name order and the
// aggregate status is the worst individual status.
func (r *Registry) Check(ctx context.Context) AggregatedResult {
	names := r.List()
	r.mu.RLock()
	checkers := make([]Checker, 0, len(names))
	for _, name := range names {
		if c, ok := r.checkers[name]; ok {
			checkers = append(checkers, c)
		}
	}
	r.mu.RUnlock()

	start := time.Now()
	results := make([]CheckResult, len(checkers))
	var g errgroup.Group
	for i, c := range checkers {
		g.Go(func() error {
			results[i] = c.Check(ctx)
			return nil
		})
	}
	_ = g.Wait()

	agg := AggregatedResult{Status: StatusHealthy, Checks: results}
	for _, result := range results {
		if result.Status.severity() > agg.Status.severity() {
			agg.Status = result.Status
		}
	}
	agg.Timestamp = time.Now()
	agg.Duration = agg.Timestamp.Sub(start)
	return agg
}

// AggregatedResult is the combined report served on the health endpoint.
type AggregatedResult struct {
	Status    Status        `json:"status"`
	Checks    []CheckResult `json:"checks"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
}

func (r AggregatedResult) IsHealthy() bool {
	return r.Status == StatusHealthy
}
