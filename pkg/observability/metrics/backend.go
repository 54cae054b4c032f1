package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Connect outcomes recorded by BackendMetrics.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// BackendMetrics tracks the lifecycle of backend connections.
type BackendMetrics struct {
	lifecycleState  prometheus.Gauge
	connectAttempts *prometheus.CounterVec
	connected       *prometheus.GaugeVec
	closeErrors     *prometheus.CounterVec
}

func newBackendMetrics() *BackendMetrics {
	return &BackendMetrics{
		lifecycleState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lifecycle_state",
			Help: "Current lifecycle state (0=idle, 1=starting, 2=running, 3=stopping, 4=stopped)",
		}),
		connectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backend_connect_total",
			Help: "Backend connect attempts by outcome",
		}, []string{"backend", "result"}),
		connected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "backend_connected",
			Help: "Whether the backend connection is currently open (1) or not (0)",
		}, []string{"backend"}),
		closeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backend_close_errors_total",
			Help: "Errors raised while closing backend connections",
		}, []string{"backend"}),
	}
}

func (m *BackendMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.lifecycleState, m.connectAttempts, m.connected, m.closeErrors}
}

// SetLifecycleState records the numeric lifecycle state.
func (m *BackendMetrics) SetLifecycleState(state int) {
	m.lifecycleState.Set(float64(state))
}

// RecordConnect counts a connect attempt and updates the connected gauge.
func (m *BackendMetrics) RecordConnect(backend string, err error) {
	if err != nil {
		m.connectAttempts.WithLabelValues(backend, ResultFailure).Inc()
		m.connected.WithLabelValues(backend).Set(0)
		return
	}
	m.connectAttempts.WithLabelValues(backend, ResultSuccess).Inc()
	m.connected.WithLabelValues(backend).Set(1)
}

// RecordClose marks the backend disconnected and counts close failures.
func (m *BackendMetrics) RecordClose(backend string, err error) {
	m.connected.WithLabelValues(backend).Set(0)
	if err != nil {
		m.closeErrors.WithLabelValues(backend).Inc()
	}
}
