package store

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps backend names to live managers. It is created empty, populated
// once per discovered backend during startup and cleared during shutdown.
// Instances are independent; there is no package-level registry.
type Registry struct {
	mu       sync.RWMutex
	managers map[string]Manager
	sealed   bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		managers: make(map[string]Manager),
	}
}

// Register adds a manager under name. A name can be registered at most once.
func (r *Registry) Register(name string, m Manager) error {
	if name == "" {
		return fmt.Errorf("backend name is required")
	}
	if m == nil {
		return fmt.Errorf("manager for %q cannot be nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return ErrRegistrySealed
	}
	if _, exists := r.managers[name]; exists {
		return fmt.Errorf("backend %q already registered", name)
	}
	r.managers[name] = m
	return nil
}

// Get returns the manager registered under name or a *NotConfiguredError.
func (r *Registry) Get(name string) (Manager, error) {
	r.mu.RLock()
	m, ok := r.managers[name]
	r.mu.RUnlock()

	if !ok {
		return nil, &NotConfiguredError{Name: name}
	}
	return m, nil
}

// Lookup returns the manager registered under name as the concrete adapter type T.
//
//	pg, err := store.Lookup[*postgres.Adapter](registry, "postgres")
func Lookup[T Manager](r *Registry, name string) (T, error) {
	var zero T
	m, err := r.Get(name)
	if err != nil {
		return zero, err
	}
	typed, ok := m.(T)
	if !ok {
		return zero, fmt.Errorf("backend %q is a %s adapter, not %T", name, m.Kind(), zero)
	}
	return typed, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.managers))
	for name := range r.managers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered managers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.managers)
}

// Snapshot returns a copy of the current name to manager table.
func (r *Registry) Snapshot() map[string]Manager {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Manager, len(r.managers))
	for name, m := range r.managers {
		out[name] = m
	}
	return out
}

// Clear removes every entry and returns what was removed.
func (r *Registry) Clear() map[string]Manager {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := r.managers
	r.managers = make(map[string]Manager)
	return removed
}

// Seal forbids any further registration.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Sealed reports whether Seal was called.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}
