package mongodb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nimburion/servicekit/pkg/observability/logger"
	"github.com/nimburion/servicekit/pkg/store"
)

type mockLogger struct{}

func (m *mockLogger) Debug(string, ...any)                      {}
func (m *mockLogger) Info(string, ...any)                       {}
func (m *mockLogger) Warn(string, ...any)                       {}
func (m *mockLogger) Error(string, ...any)                      {}
func (m *mockLogger) With(...any) logger.Logger                 { return m }
func (m *mockLogger) WithContext(context.Context) logger.Logger { return m }

func newTestAdapter(t *testing.T, cfg Config, opts ...store.ParamOption) *Adapter {
	t.Helper()
	a, err := NewAdapter(store.NewParams(store.KindDocument, 27017, opts...), cfg, &mockLogger{})
	if err != nil {
		t.Fatalf("NewAdapter() error = %v", err)
	}
	return a
}

// newUnreachableAdapter points at a closed local port so every handshake fails fast.
func newUnreachableAdapter(t *testing.T) *Adapter {
	t.Helper()
	params := store.NewParams(store.KindDocument, 1, store.WithHost("127.0.0.1"))
	a, err := NewAdapter(params, Config{ConnectTimeout: 200 * time.Millisecond}, &mockLogger{})
	if err != nil {
		t.Fatalf("NewAdapter() error = %v", err)
	}
	return a
}

func TestNewAdapter_Validation(t *testing.T) {
	if _, err := NewAdapter(store.NewParams(store.KindRelational, 5432), Config{}, &mockLogger{}); err == nil {
		t.Fatal("expected error for relational params")
	}
	if _, err := NewAdapter(store.NewParams(store.KindDocument, 0), Config{}, &mockLogger{}); err == nil {
		t.Fatal("expected error for port 0")
	}
}

func TestBuildURI(t *testing.T) {
	tests := []struct {
		name string
		opts []store.ParamOption
		want string
	}{
		{
			name: "defaults",
			want: "mongodb://mongodb:27017/mongo",
		},
		{
			name: "user and password",
			opts: []store.ParamOption{store.WithCredentials("app", "pw"), store.WithDatabase("catalog")},
			want: "mongodb://app:pw@mongodb:27017/catalog",
		},
		{
			name: "user without password omits credentials",
			opts: []store.ParamOption{store.WithCredentials("app", ""), store.WithDatabase("catalog")},
			want: "mongodb://mongodb:27017/catalog",
		},
		{
			name: "password without user omits credentials",
			opts: []store.ParamOption{store.WithCredentials("", "pw")},
			want: "mongodb://mongodb:27017/mongo",
		},
		{
			name: "explicit host",
			opts: []store.ParamOption{store.WithHost("127.0.0.1")},
			want: "mongodb://127.0.0.1:27017/mongo",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAdapter(t, Config{}, tt.opts...)
			if got := a.BuildURI(); got != tt.want {
				t.Errorf("BuildURI() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCollection_NotConnected(t *testing.T) {
	a := newTestAdapter(t, Config{})
	if _, err := a.Collection("users"); !errors.Is(err, store.ErrNotConnected) {
		t.Fatalf("Collection() error = %v, want ErrNotConnected", err)
	}
	if err := a.HealthCheck(context.Background()); !errors.Is(err, store.ErrNotConnected) {
		t.Fatalf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestClose_NotConnectedIsNoop(t *testing.T) {
	a := newTestAdapter(t, Config{})
	if err := a.Close(context.Background()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if a.Connected() {
		t.Fatal("adapter should not be connected")
	}
}

func TestConnect_UnreachableServer(t *testing.T) {
	a := newUnreachableAdapter(t)

	err := a.Connect(context.Background())
	var connErr *store.ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected *store.ConnectionError, got %T: %v", err, err)
	}
	if connErr.Backend != store.AliasMongo {
		t.Errorf("Backend = %q, want %q", connErr.Backend, store.AliasMongo)
	}
	if a.Connected() {
		t.Error("adapter must not be connected after a failed ping")
	}
}

func TestOperation_LazyConnectFailure(t *testing.T) {
	a := newUnreachableAdapter(t)

	_, err := a.InsertOne(context.Background(), "users", map[string]any{"name": "ada"})
	var connErr *store.ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected *store.ConnectionError from lazy connect, got %T: %v", err, err)
	}
}

func TestWithOperationTimeout_UsesAdapterTimeoutWhenNoDeadline(t *testing.T) {
	a := &Adapter{timeout: 2 * time.Second}

	ctx, cancel := a.withOperationTimeout(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("expected deadline from operation timeout")
	}
	if remaining := time.Until(deadline); remaining <= 0 || remaining > 2*time.Second {
		t.Fatalf("unexpected remaining timeout: %v", remaining)
	}
}

func TestWithOperationTimeout_PreservesCallerDeadline(t *testing.T) {
	a := &Adapter{timeout: 2 * time.Second}
	parentCtx, parentCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer parentCancel()

	ctx, cancel := a.withOperationTimeout(parentCtx)
	defer cancel()

	parentDeadline, _ := parentCtx.Deadline()
	gotDeadline, _ := ctx.Deadline()
	if !gotDeadline.Equal(parentDeadline) {
		t.Fatalf("expected caller deadline to be preserved, got %v want %v", gotDeadline, parentDeadline)
	}
}

func TestAdapter_ImplementsManager(t *testing.T) {
	var _ store.Manager = (*Adapter)(nil)
}
