// Package metrics exposes the Prometheus collectors of a servicekit process.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns a private prometheus.Registry preloaded with the HTTP and
// backend collectors. Nothing is registered on the global default registry.
type Registry struct {
	registry *prometheus.Registry
	http     *HTTPMetrics
	backends *BackendMetrics
}

// Option customizes NewRegistry.
type Option func(*registryOptions)

type registryOptions struct {
	runtime bool
}

// WithoutRuntimeCollectors leaves out the Go runtime and process collectors.
func WithoutRuntimeCollectors() Option {
	return func(o *registryOptions) { o.runtime = false }
}

/*
NewRegistry builds an isolated registry.

Cosa fa:
  - registra le metriche HTTP (durata, contatore, richieste in corso)
  - registra le metriche dei backend (stato del lifecycle, esiti del connect, gauge connesso, errori di chiusura)
  - registra i collector Go runtime e process, salvo WithoutRuntimeCollectors

Cosa NON fa:
  - non tocca prometheus.DefaultRegisterer
*/
func NewRegistry(opts ...Option) *Registry {
	o := registryOptions{runtime: true}
	for _, opt := range opts {
		opt(&o)
	}

	r := &Registry{
		registry: prometheus.NewRegistry(),
		http:     newHTTPMetrics(),
		backends: newBackendMetrics(),
	}
	r.registry.MustRegister(r.http.collectors()...)
	r.registry.MustRegister(r.backends.collectors()...)
	if o.runtime {
		r.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return r
}

func (r *Registry) HTTP() *HTTPMetrics { return r.http }

func (r *Registry) Backends() *BackendMetrics { return r.backends }

// Register adds an application collector. Duplicate registrations return an error.
func (r *Registry) Register(c prometheus.Collector) error {
	return r.registry.Register(c)
}

// MustRegister is Register for collectors that cannot clash; it panics otherwise.
func (r *Registry) MustRegister(cs ...prometheus.Collector) {
	r.registry.MustRegister(cs...)
}

func (r *Registry) Unregister(c prometheus.Collector) bool {
	return r.registry.Unregister(c)
}

// Handler serves the registry in the Prometheus text or OpenMetrics format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		Registry:          r.registry,
		EnableOpenMetrics: true,
	})
}

func (r *Registry) Gatherer() prometheus.Gatherer { return r.registry }
