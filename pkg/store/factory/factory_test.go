package factory

import (
	"context"
	"errors"
	"testing"

	"github.com/nimburion/servicekit/pkg/observability/logger"
	"github.com/nimburion/servicekit/pkg/store"
	"github.com/nimburion/servicekit/pkg/store/mongodb"
	"github.com/nimburion/servicekit/pkg/store/postgres"
	"github.com/nimburion/servicekit/pkg/store/redis"
)

type stubManager struct {
	params store.Params
}

func (s *stubManager) Name() string                      { return s.params.Kind().Alias() }
func (s *stubManager) Kind() store.Kind                  { return s.params.Kind() }
func (s *stubManager) Connect(context.Context) error     { return nil }
func (s *stubManager) Close(context.Context) error       { return nil }
func (s *stubManager) BuildURI() string                  { return store.DefaultURI(s.params) }
func (s *stubManager) Connected() bool                   { return false }
func (s *stubManager) HealthCheck(context.Context) error { return nil }

func TestFactory_New(t *testing.T) {
	f := NewFactory(nil)

	tests := []struct {
		name   string
		params store.Params
		check  func(store.Manager) bool
	}{
		{
			name:   "relational",
			params: store.NewParams(store.KindRelational, 5432),
			check:  func(m store.Manager) bool { _, ok := m.(*postgres.Adapter); return ok },
		},
		{
			name:   "document",
			params: store.NewParams(store.KindDocument, 27017),
			check:  func(m store.Manager) bool { _, ok := m.(*mongodb.Adapter); return ok },
		},
		{
			name:   "key-value",
			params: store.NewParams(store.KindKeyValue, 6379),
			check:  func(m store.Manager) bool { _, ok := m.(*redis.Adapter); return ok },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := f.New(tt.params)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if !tt.check(m) {
				t.Errorf("New() returned %T", m)
			}
			if m.Name() != tt.params.Kind().Alias() {
				t.Errorf("Name() = %q, want %q", m.Name(), tt.params.Kind().Alias())
			}
			if m.Connected() {
				t.Error("factory must not connect")
			}
		})
	}
}

func TestFactory_UnsupportedKind(t *testing.T) {
	f := NewFactory(logger.Nop())

	_, err := f.New(store.NewParams(store.Kind(42), 1234))
	var unsupported *store.UnsupportedBackendError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected *store.UnsupportedBackendError, got %T: %v", err, err)
	}
	if f.Supports(store.Kind(42)) {
		t.Error("Supports() should be false for an unknown kind")
	}
}

func TestFactory_InvalidParams(t *testing.T) {
	f := NewFactory(nil)
	if _, err := f.New(store.NewParams(store.KindRelational, 0)); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestFactory_WithConstructor(t *testing.T) {
	var gotOpts Options
	f := NewFactory(nil,
		WithOptions(Options{SSLMode: "require"}),
		WithConstructor(store.KindKeyValue, func(params store.Params, opts Options, _ logger.Logger) (store.Manager, error) {
			gotOpts = opts
			return &stubManager{params: params}, nil
		}),
	)

	m, err := f.New(store.NewParams(store.KindKeyValue, 6379))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, ok := m.(*stubManager); !ok {
		t.Fatalf("New() returned %T, want *stubManager", m)
	}
	if gotOpts.SSLMode != "require" {
		t.Errorf("constructor received SSLMode %q", gotOpts.SSLMode)
	}
}

func TestFactory_ConstructorError(t *testing.T) {
	boom := errors.New("boom")
	f := NewFactory(nil, WithConstructor(store.KindDocument, func(store.Params, Options, logger.Logger) (store.Manager, error) {
		return nil, boom
	}))

	if _, err := f.New(store.NewParams(store.KindDocument, 27017)); !errors.Is(err, boom) {
		t.Fatalf("New() error = %v, want %v", err, boom)
	}
}

func TestFactory_SupportsEveryKind(t *testing.T) {
	f := NewFactory(logger.Nop())
	for _, kind := range store.Kinds() {
		if !f.Supports(kind) {
			t.Errorf("default factory does not support %s", kind)
		}
	}
}
