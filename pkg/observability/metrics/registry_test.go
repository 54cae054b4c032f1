package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func scrape(t *testing.T, registry *Registry) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	registry.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	return rec.Body.String()
}

func TestNewRegistry(t *testing.T) {
	registry := NewRegistry()
	if registry.registry == nil || registry.HTTP() == nil || registry.Backends() == nil {
		t.Fatal("registry not fully initialized")
	}
}

func TestRegistry_IsolatedInstances(t *testing.T) {
	a := NewRegistry()
	b := NewRegistry()

	a.HTTP().IncrementInFlight()

	if !strings.Contains(scrape(t, a), "http_requests_in_flight 1") {
		t.Error("expected in-flight 1 on the first registry")
	}
	if !strings.Contains(scrape(t, b), "http_requests_in_flight 0") {
		t.Error("second registry must not observe the first registry's metrics")
	}
}

func TestRegistry_RuntimeMetricsExposed(t *testing.T) {
	body := scrape(t, NewRegistry())
	for _, metric := range []string{"go_goroutines", "go_memstats_alloc_bytes", "lifecycle_state"} {
		if !strings.Contains(body, metric) {
			t.Errorf("expected metric %s not found", metric)
		}
	}
}

func TestRegistry_CustomMetric(t *testing.T) {
	registry := NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "custom_jobs_total",
		Help: "A custom counter metric",
	})

	if err := registry.Register(counter); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	counter.Add(2)
	if !strings.Contains(scrape(t, registry), "custom_jobs_total 2") {
		t.Error("custom metric not exposed")
	}
	if err := registry.Register(counter); err == nil {
		t.Error("expected error on duplicate registration")
	}
	if !registry.Unregister(counter) {
		t.Error("Unregister() returned false")
	}
}

func TestRegistry_Gatherer(t *testing.T) {
	families, err := NewRegistry().Gatherer().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(families) == 0 {
		t.Error("expected gathered metric families")
	}
}

func TestRegistry_WithoutRuntimeCollectors(t *testing.T) {
	body := scrape(t, NewRegistry(WithoutRuntimeCollectors()))
	if strings.Contains(body, "go_goroutines") {
		t.Error("runtime collectors must be left out")
	}
	if !strings.Contains(body, "lifecycle_state") {
		t.Error("backend metrics must still be exposed")
	}
}
