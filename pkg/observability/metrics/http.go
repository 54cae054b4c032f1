package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics tracks request duration, count and concurrency.
type HTTPMetrics struct {
	requestDuration  *prometheus.HistogramVec
	requestsTotal    *prometheus.CounterVec
	requestsInFlight prometheus.Gauge
}

func newHTTPMetrics() *HTTPMetrics {
	return &HTTPMetrics{
		// Labels: method, path, status
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		requestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
		),
	}
}

func (m *HTTPMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.requestDuration, m.requestsTotal, m.requestsInFlight}
}

// Record updates the duration histogram and request counter.
func (m *HTTPMetrics) Record(method, path string, status int, duration time.Duration) {
	statusStr := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, statusStr).Observe(duration.Seconds())
	m.requestsTotal.WithLabelValues(method, path, statusStr).Inc()
}

// IncrementInFlight increments the in-flight requests gauge.
func (m *HTTPMetrics) IncrementInFlight() {
	m.requestsInFlight.Inc()
}

// DecrementInFlight decrements the in-flight requests gauge.
func (m *HTTPMetrics) DecrementInFlight() {
	m.requestsInFlight.Dec()
}
