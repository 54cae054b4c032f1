package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nimburion/servicekit/pkg/config"
	"github.com/nimburion/servicekit/pkg/observability/logger"
	"github.com/nimburion/servicekit/pkg/observability/metrics"
	"github.com/nimburion/servicekit/pkg/store"
	"github.com/nimburion/servicekit/pkg/store/factory"
)

type fakeManager struct {
	params store.Params

	connectErr   error
	closeErr     error
	connectDelay time.Duration
	closeDelay   time.Duration

	mu        sync.Mutex
	connected bool
	connects  int
	closes    int
}

func (f *fakeManager) Name() string     { return f.params.Kind().Alias() }
func (f *fakeManager) Kind() store.Kind { return f.params.Kind() }
func (f *fakeManager) BuildURI() string { return store.DefaultURI(f.params) }

func (f *fakeManager) Connect(ctx context.Context) error {
	if f.connectDelay > 0 {
		select {
		case <-time.After(f.connectDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeManager) Close(context.Context) error {
	if f.closeDelay > 0 {
		time.Sleep(f.closeDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	f.connected = false
	return f.closeErr
}

func (f *fakeManager) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeManager) HealthCheck(context.Context) error { return nil }

func (f *fakeManager) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

type harness struct {
	orch     *Orchestrator
	fakes    map[store.Kind]*fakeManager
	registry *metrics.Registry
}

// newHarness wires an orchestrator whose factory hands out the given fakes.
func newHarness(t *testing.T, fakes map[store.Kind]*fakeManager, mutate func(*Options)) *harness {
	t.Helper()

	discovered := config.Discovered{}
	var factoryOpts []factory.Option
	for kind, fake := range fakes {
		fake.params = store.NewParams(kind, 1000+int(kind))
		discovered[kind.Alias()] = fake.params
		factoryOpts = append(factoryOpts, factory.WithConstructor(kind,
			func(store.Params, factory.Options, logger.Logger) (store.Manager, error) {
				return fake, nil
			}))
	}

	reg := metrics.NewRegistry()
	opts := Options{
		Name:       "orders",
		Version:    "1.2.3",
		APIVersion: "v1",
		Discover: func(context.Context) (config.Discovered, error) {
			return discovered, nil
		},
		Factory:        factory.NewFactory(nil, factoryOpts...),
		Metrics:        reg.Backends(),
		ConnectTimeout: time.Second,
		CloseTimeout:   time.Second,
		DrainTimeout:   time.Second,
		now: func() time.Time {
			return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		},
	}
	if mutate != nil {
		mutate(&opts)
	}

	orch, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &harness{orch: orch, fakes: fakes, registry: reg}
}

func TestNew_RequiresDiscover(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error without discover function")
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateIdle:     "idle",
		StateStarting: "starting",
		StateRunning:  "running",
		StateStopping: "stopping",
		StateStopped:  "stopped",
		State(42):     "state(42)",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int32(state), got, want)
		}
	}
}

func TestStart_ConnectsEveryBackend(t *testing.T) {
	h := newHarness(t, map[store.Kind]*fakeManager{
		store.KindRelational: {},
		store.KindKeyValue:   {},
	}, nil)

	if err := h.orch.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if h.orch.State() != StateRunning {
		t.Fatalf("state = %s, want running", h.orch.State())
	}

	names := h.orch.Registry().Names()
	if len(names) != 2 || names[0] != "postgres" || names[1] != "redis" {
		t.Fatalf("registry names = %v", names)
	}
	for kind, fake := range h.fakes {
		if !fake.Connected() {
			t.Errorf("%s not connected", kind)
		}
	}

	pg, err := store.Lookup[*fakeManager](h.orch.Registry(), "postgres")
	if err != nil || pg != h.fakes[store.KindRelational] {
		t.Fatalf("Lookup postgres = %v, %v", pg, err)
	}
	if _, err := h.orch.Registry().Get("mongo"); !errors.Is(err, store.ErrNotConfigured) {
		t.Fatalf("Get mongo err = %v, want ErrNotConfigured", err)
	}

	count, err := testutil.GatherAndCount(h.registry.Gatherer(), "backend_connect_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if count != 2 {
		t.Errorf("backend_connect_total series = %d, want 2", count)
	}
}

func TestStart_NoBackends(t *testing.T) {
	h := newHarness(t, map[store.Kind]*fakeManager{}, nil)

	if err := h.orch.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := h.orch.Status().Services; len(got) != 0 {
		t.Fatalf("services = %v, want empty", got)
	}
	if err := h.orch.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestStart_FailureLeavesNothingConnected(t *testing.T) {
	cause := errors.New("connection refused")
	h := newHarness(t, map[store.Kind]*fakeManager{
		store.KindRelational: {},
		store.KindDocument:   {connectErr: cause},
		store.KindKeyValue:   {connectDelay: 20 * time.Millisecond},
	}, nil)

	err := h.orch.Start(context.Background())

	var connErr *store.ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("Start err = %v, want ConnectionError", err)
	}
	if connErr.Backend != "mongo" || !errors.Is(err, cause) {
		t.Fatalf("unexpected connection error: %v", connErr)
	}
	if h.orch.State() != StateStopped {
		t.Fatalf("state = %s, want stopped", h.orch.State())
	}
	for kind, fake := range h.fakes {
		if fake.Connected() {
			t.Errorf("%s left connected after failed startup", kind)
		}
	}
	if h.orch.Registry().Len() != 0 || !h.orch.Registry().Sealed() {
		t.Fatal("registry should be empty and sealed")
	}
	select {
	case <-h.orch.Done():
	default:
		t.Fatal("Done not closed after failed startup")
	}
}

func TestStart_WrapsPlainConnectErrors(t *testing.T) {
	h := newHarness(t, map[store.Kind]*fakeManager{
		store.KindKeyValue: {connectErr: context.DeadlineExceeded},
	}, nil)

	err := h.orch.Start(context.Background())
	var connErr *store.ConnectionError
	if !errors.As(err, &connErr) || connErr.Backend != "redis" {
		t.Fatalf("Start err = %v, want ConnectionError for redis", err)
	}
}

func TestStart_DiscoveryFailure(t *testing.T) {
	cfgErr := &config.ConfigurationError{Key: "postgres_port", Value: "abc"}
	h := newHarness(t, map[store.Kind]*fakeManager{}, func(o *Options) {
		o.Discover = func(context.Context) (config.Discovered, error) { return nil, cfgErr }
	})

	err := h.orch.Start(context.Background())
	var got *config.ConfigurationError
	if !errors.As(err, &got) {
		t.Fatalf("Start err = %v, want ConfigurationError", err)
	}
	if h.orch.State() != StateStopped {
		t.Fatalf("state = %s, want stopped", h.orch.State())
	}
}

func TestStart_UnsupportedBackend(t *testing.T) {
	h := newHarness(t, map[store.Kind]*fakeManager{}, func(o *Options) {
		o.Factory = factory.NewFactory(nil, factory.WithConstructor(store.KindDocument, nil))
		o.Discover = func(context.Context) (config.Discovered, error) {
			return config.Discovered{"mongo": store.NewParams(store.KindDocument, 27017)}, nil
		}
	})

	err := h.orch.Start(context.Background())
	var unsupported *store.UnsupportedBackendError
	if !errors.As(err, &unsupported) {
		t.Fatalf("Start err = %v, want UnsupportedBackendError", err)
	}
	if h.orch.State() != StateStopped {
		t.Fatalf("state = %s, want stopped", h.orch.State())
	}
}

func TestStart_Twice(t *testing.T) {
	h := newHarness(t, map[store.Kind]*fakeManager{store.KindKeyValue: {}}, nil)
	ctx := context.Background()

	if err := h.orch.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.orch.Start(ctx); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second Start err = %v, want ErrInvalidState", err)
	}
}

func TestShutdown_ClosesEveryBackendDespiteFailures(t *testing.T) {
	h := newHarness(t, map[store.Kind]*fakeManager{
		store.KindRelational: {closeErr: errors.New("boom")},
		store.KindDocument:   {},
		store.KindKeyValue:   {closeErr: &store.CloseError{Backend: "redis", Err: errors.New("eof")}},
	}, nil)
	ctx := context.Background()

	if err := h.orch.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.orch.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown should absorb close errors, got %v", err)
	}

	for kind, fake := range h.fakes {
		if fake.closeCount() != 1 {
			t.Errorf("%s closed %d times, want 1", kind, fake.closeCount())
		}
	}
	if h.orch.State() != StateStopped {
		t.Fatalf("state = %s, want stopped", h.orch.State())
	}
	if h.orch.Registry().Len() != 0 {
		t.Fatal("registry not cleared")
	}
	if err := h.orch.Registry().Register("postgres", h.fakes[store.KindRelational]); !errors.Is(err, store.ErrRegistrySealed) {
		t.Fatalf("Register after shutdown err = %v, want ErrRegistrySealed", err)
	}

	count, err := testutil.GatherAndCount(h.registry.Gatherer(), "backend_close_errors_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if count != 2 {
		t.Errorf("backend_close_errors_total series = %d, want 2", count)
	}
}

func TestShutdown_ReentrantAndConcurrent(t *testing.T) {
	h := newHarness(t, map[store.Kind]*fakeManager{
		store.KindRelational: {closeDelay: 30 * time.Millisecond},
	}, nil)
	ctx := context.Background()

	if err := h.orch.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- h.orch.Shutdown(ctx)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	}
	if got := h.fakes[store.KindRelational].closeCount(); got != 1 {
		t.Fatalf("close called %d times, want 1", got)
	}
	if err := h.orch.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown after stop: %v", err)
	}
}

func TestShutdown_FromIdle(t *testing.T) {
	h := newHarness(t, map[store.Kind]*fakeManager{}, nil)

	if err := h.orch.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if h.orch.State() != StateStopped {
		t.Fatalf("state = %s, want stopped", h.orch.State())
	}
	if err := h.orch.Start(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("Start after stop err = %v, want ErrInvalidState", err)
	}
}

func TestStatus(t *testing.T) {
	h := newHarness(t, map[store.Kind]*fakeManager{
		store.KindRelational: {},
		store.KindKeyValue:   {},
	}, nil)

	if err := h.orch.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	got := h.orch.Status()
	if got.Name != "orders" || got.Version != "1.2.3" || got.APIVersion != "v1" {
		t.Fatalf("unexpected identity: %+v", got)
	}
	if got.State != "running" {
		t.Fatalf("state = %q", got.State)
	}
	if len(got.Services) != 2 || got.Services[0] != "postgres" || got.Services[1] != "redis" {
		t.Fatalf("services = %v", got.Services)
	}
	if !got.Timestamp.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Fatalf("timestamp = %v", got.Timestamp)
	}

	got.Services[0] = "mutated"
	if h.orch.Status().Services[0] != "postgres" {
		t.Fatal("Status must return a copy of services")
	}
}

func TestGo_RefusedWhenNotRunning(t *testing.T) {
	h := newHarness(t, map[store.Kind]*fakeManager{}, nil)
	noop := func(context.Context) error { return nil }

	if err := h.orch.Go("early", noop); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Go before Start err = %v, want ErrNotRunning", err)
	}

	ctx := context.Background()
	if err := h.orch.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.orch.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := h.orch.Go("late", noop); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Go after Shutdown err = %v, want ErrNotRunning", err)
	}
}

func TestShutdown_WaitsForTasksAfterClosingBackends(t *testing.T) {
	fake := &fakeManager{}
	h := newHarness(t, map[store.Kind]*fakeManager{store.KindKeyValue: fake}, nil)
	ctx := context.Background()

	if err := h.orch.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	release := make(chan struct{})
	var finished atomic.Bool
	var closedBeforeFinish atomic.Bool
	if err := h.orch.Go("flush", func(context.Context) error {
		<-release
		closedBeforeFinish.Store(!fake.Connected())
		finished.Store(true)
		return nil
	}); err != nil {
		t.Fatalf("Go: %v", err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()

	if err := h.orch.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !finished.Load() {
		t.Fatal("Shutdown returned before tracked work finished")
	}
	if !closedBeforeFinish.Load() {
		t.Fatal("backends should be closed before draining tracked work")
	}
}

func TestShutdown_DrainTimeout(t *testing.T) {
	h := newHarness(t, map[store.Kind]*fakeManager{}, func(o *Options) {
		o.DrainTimeout = 50 * time.Millisecond
	})
	ctx := context.Background()

	if err := h.orch.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	cancelled := make(chan struct{})
	if err := h.orch.Go("stuck", func(taskCtx context.Context) error {
		<-taskCtx.Done()
		close(cancelled)
		return taskCtx.Err()
	}); err != nil {
		t.Fatalf("Go: %v", err)
	}

	if err := h.orch.Shutdown(ctx); !errors.Is(err, ErrDrainTimeout) {
		t.Fatalf("Shutdown err = %v, want ErrDrainTimeout", err)
	}
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("stuck task context was not cancelled")
	}
	if h.orch.State() != StateStopped {
		t.Fatalf("state = %s, want stopped", h.orch.State())
	}
}

func TestGo_PanicIsContained(t *testing.T) {
	h := newHarness(t, map[store.Kind]*fakeManager{}, nil)
	ctx := context.Background()

	if err := h.orch.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.orch.Go("panicky", func(context.Context) error { panic("kaboom") }); err != nil {
		t.Fatalf("Go: %v", err)
	}
	if err := h.orch.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}
