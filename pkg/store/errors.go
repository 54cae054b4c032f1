package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is matched by NotConfiguredError.
	ErrNotConfigured = errors.New("backend not configured")
	// ErrRegistrySealed is returned when a sealed registry is mutated.
	ErrRegistrySealed = errors.New("connection registry is sealed")
	// ErrNotConnected is returned when an adapter handle is requested before Connect.
	ErrNotConnected = errors.New("backend not connected")
)

// NotConfiguredError is returned by registry lookups for a backend that was never discovered.
type NotConfiguredError struct {
	Name string
}

// Error implements the error interface.
func (e *NotConfiguredError) Error() string {
	return fmt.Sprintf("backend %q is not configured", e.Name)
}

// Is matches ErrNotConfigured.
func (e *NotConfiguredError) Is(target error) bool {
	return target == ErrNotConfigured
}

// UnsupportedBackendError is returned when no adapter implementation exists for a backend.
type UnsupportedBackendError struct {
	Name string
}

// Error implements the error interface.
func (e *UnsupportedBackendError) Error() string {
	return fmt.Sprintf("unsupported backend %q (supported: %s, %s, %s)", e.Name, AliasPostgres, AliasMongo, AliasRedis)
}

// ConnectionError reports a failed network handshake with a configured backend.
type ConnectionError struct {
	Backend string
	Err     error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("connect to %s failed", e.Backend)
	}
	return fmt.Sprintf("connect to %s failed: %v", e.Backend, e.Err)
}

// Unwrap exposes the wrapped cause.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// CloseError reports a failure while releasing a backend's resources.
type CloseError struct {
	Backend string
	Err     error
}

// Error implements the error interface.
func (e *CloseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("close %s failed", e.Backend)
	}
	return fmt.Sprintf("close %s failed: %v", e.Backend, e.Err)
}

// Unwrap exposes the wrapped cause.
func (e *CloseError) Unwrap() error {
	return e.Err
}
