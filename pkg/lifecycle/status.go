package lifecycle

import "time"

// Status is the snapshot served by the status endpoint. Services lists the backends
// connected during Starting; it is not a live health probe.
type Status struct {
	Name       string    `json:"name" yaml:"name"`
	Version    string    `json:"version" yaml:"version"`
	APIVersion string    `json:"api_version" yaml:"api_version"`
	State      string    `json:"state" yaml:"state"`
	Services   []string  `json:"services" yaml:"services"`
	Timestamp  time.Time `json:"timestamp" yaml:"timestamp"`
}

// Status returns the current service status.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	services := make([]string, len(o.services))
	copy(services, o.services)
	o.mu.RUnlock()

	return Status{
		Name:       o.opts.Name,
		Version:    o.opts.Version,
		APIVersion: o.opts.APIVersion,
		State:      o.State().String(),
		Services:   services,
		Timestamp:  o.opts.now().UTC(),
	}
}
