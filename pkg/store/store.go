// Package store defines the connection manager contract shared by every backend adapter,
// the connection parameters they are built from, and the registry that holds live adapters.
package store

import "context"

// Manager is the lifecycle contract every backend adapter satisfies.
//
// Connect is idempotent: a second call while connected returns without touching the
// existing handle. Close is idempotent too and never fails on an adapter that was
// never connected. The handle owned by an adapter is non-nil only between a
// successful Connect and the matching Close.
type Manager interface {
	// Name identifies the backend kind and is used as registry key.
	Name() string
	// Kind returns the backend variant served by the adapter.
	Kind() Kind
	// Connect establishes the native handle if absent.
	Connect(ctx context.Context) error
	// Close releases the native handle and every pooled resource.
	Close(ctx context.Context) error
	// BuildURI renders the connection URI from the adapter parameters.
	BuildURI() string
	// Connected reports whether the native handle is currently held.
	Connected() bool
	// HealthCheck pings the backend with a short timeout.
	HealthCheck(ctx context.Context) error
}
