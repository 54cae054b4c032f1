// Package lifecycle drives backend startup and shutdown.
//
// The Orchestrator moves through Idle → Starting → Running → Stopping → Stopped.
// Starting discovers the configured backends, builds one adapter per backend and
// connects them all; a single failure aborts startup and leaves nothing connected.
// Shutdown is triggered by SIGINT/SIGTERM, RequestShutdown or a direct Shutdown call,
// and is safe to trigger more than once.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nimburion/servicekit/pkg/config"
	"github.com/nimburion/servicekit/pkg/observability/logger"
	"github.com/nimburion/servicekit/pkg/observability/metrics"
	"github.com/nimburion/servicekit/pkg/observability/tracing"
	"github.com/nimburion/servicekit/pkg/store"
	"github.com/nimburion/servicekit/pkg/store/factory"
)

var (
	// ErrInvalidState is returned when an operation is not allowed in the current state.
	ErrInvalidState = errors.New("invalid lifecycle state")
	// ErrNotRunning is returned by Go outside the Running state.
	ErrNotRunning = errors.New("orchestrator is not running")
	// ErrDrainTimeout is returned by Shutdown when tracked work outlives the drain timeout.
	ErrDrainTimeout = errors.New("timed out draining in-flight work")
)

// DiscoverFunc produces the backends to connect during Starting.
type DiscoverFunc func(ctx context.Context) (config.Discovered, error)

// Options configures an Orchestrator.
type Options struct {
	Name       string
	Version    string
	APIVersion string

	// Discover is required.
	Discover DiscoverFunc
	// Factory defaults to factory.NewFactory(Logger).
	Factory *factory.Factory
	Logger  logger.Logger
	// Metrics is optional.
	Metrics *metrics.BackendMetrics

	ConnectTimeout time.Duration
	CloseTimeout   time.Duration
	DrainTimeout   time.Duration

	// Signals defaults to SIGINT and SIGTERM.
	Signals []os.Signal

	now func() time.Time
}

// Orchestrator owns the connection registry and the lifecycle state machine.
type Orchestrator struct {
	opts     Options
	log      logger.Logger
	registry *store.Registry

	state atomic.Int32

	mu       sync.RWMutex
	services []string
	hooks    []Hook

	taskMu      sync.Mutex
	tasks       sync.WaitGroup
	taskCtx     context.Context
	cancelTasks context.CancelFunc

	shutdownReq chan struct{}
	started     chan struct{}
	done        chan struct{}
	doneOnce    sync.Once
}

// Cosa fa: crea un orchestratore in stato Idle con un registry vuoto e isolato.
// Cosa NON fa: non legge la configurazione e non apre connessioni fino a Start.
// Esempio minimo: orch, err := lifecycle.New(lifecycle.Options{Name: "svc", Discover: discover})
func New(opts Options) (*Orchestrator, error) {
	if opts.Discover == nil {
		return nil, errors.New("discover function is required")
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Factory == nil {
		opts.Factory = factory.NewFactory(opts.Logger)
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.CloseTimeout <= 0 {
		opts.CloseTimeout = 10 * time.Second
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = 30 * time.Second
	}
	if len(opts.Signals) == 0 {
		opts.Signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	if opts.now == nil {
		opts.now = time.Now
	}

	taskCtx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		opts:        opts,
		log:         opts.Logger.With("component", "lifecycle"),
		registry:    store.NewRegistry(),
		taskCtx:     taskCtx,
		cancelTasks: cancel,
		shutdownReq: make(chan struct{}, 1),
		started:     make(chan struct{}),
		done:        make(chan struct{}),
	}
	o.setState(StateIdle)
	return o, nil
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Registry returns the connection registry. Request handlers look backends up through it.
func (o *Orchestrator) Registry() *store.Registry {
	return o.registry
}

// Done is closed once the orchestrator reaches Stopped.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
	if o.opts.Metrics != nil {
		o.opts.Metrics.SetLifecycleState(int(s))
	}
}

func (o *Orchestrator) transition(from, to State) bool {
	if !o.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	if o.opts.Metrics != nil {
		o.opts.Metrics.SetLifecycleState(int(to))
	}
	o.log.Debug("lifecycle transition", "from", from.String(), "to", to.String())
	return true
}

// finish seals the registry and marks the orchestrator Stopped.
func (o *Orchestrator) finish() {
	o.registry.Clear()
	o.registry.Seal()
	o.setState(StateStopped)
	o.cancelTasks()
	o.doneOnce.Do(func() { close(o.done) })
}

// Start discovers and connects every backend. It may be called once; any failure
// closes whatever connected, leaves the orchestrator Stopped and is returned as is.
func (o *Orchestrator) Start(ctx context.Context) error {
	if !o.transition(StateIdle, StateStarting) {
		return fmt.Errorf("%w: start called in state %s", ErrInvalidState, o.State())
	}

	defer close(o.started)

	ctx, span := tracing.StartLifecycleSpan(ctx, tracing.SpanOperationStartup, o.opts.Name)
	err := o.start(ctx)
	tracing.End(span, err)
	return err
}

func (o *Orchestrator) start(ctx context.Context) error {
	discovered, err := o.opts.Discover(ctx)
	if err != nil {
		o.log.Error("backend discovery failed", "error", err)
		o.abortStart(ctx)
		return err
	}

	names := discovered.Names()
	for _, name := range names {
		m, err := o.opts.Factory.New(discovered[name])
		if err == nil {
			err = o.registry.Register(name, m)
		}
		if err != nil {
			o.log.Error("failed to build backend adapter", "backend", name, "error", err)
			o.abortStart(ctx)
			return err
		}
	}

	if err := o.connectAll(ctx); err != nil {
		o.abortStart(ctx)
		return err
	}

	o.mu.Lock()
	o.services = names
	o.mu.Unlock()

	o.transition(StateStarting, StateRunning)
	o.log.Info("service is ready", "name", o.opts.Name, "version", o.opts.Version, "services", names)
	return nil
}

func (o *Orchestrator) connectAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for name, m := range o.registry.Snapshot() {
		g.Go(func() error {
			connectCtx, cancel := context.WithTimeout(gctx, o.opts.ConnectTimeout)
			defer cancel()

			connectCtx, span := tracing.StartBackendSpan(connectCtx, tracing.SpanOperationConnect, name, tracing.WithDBSystem(dbSystem(m.Kind())))
			err := m.Connect(connectCtx)
			tracing.End(span, err)
			if o.opts.Metrics != nil {
				o.opts.Metrics.RecordConnect(name, err)
			}
			if err != nil {
				var connErr *store.ConnectionError
				if !errors.As(err, &connErr) {
					err = &store.ConnectionError{Backend: name, Err: err}
				}
				o.log.Error("backend connection failed", "backend", name, "error", err)
				return err
			}
			o.log.Info("backend connected", "backend", name)
			return nil
		})
	}
	return g.Wait()
}

// abortStart releases every adapter registered so far and stops the orchestrator.
func (o *Orchestrator) abortStart(ctx context.Context) {
	if err := o.closeAll(context.WithoutCancel(ctx)); err != nil {
		o.log.Warn("errors while releasing backends after failed startup", "error", err)
	}
	o.finish()
	o.log.Info("startup aborted", "name", o.opts.Name)
}

// closeAll closes every registered adapter concurrently. Failures are isolated per
// backend and returned joined for logging only.
func (o *Orchestrator) closeAll(ctx context.Context) error {
	closeCtx, cancel := context.WithTimeout(ctx, o.opts.CloseTimeout)
	defer cancel()

	managers := o.registry.Snapshot()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for name, m := range managers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			spanCtx, span := tracing.StartBackendSpan(closeCtx, tracing.SpanOperationClose, name, tracing.WithDBSystem(dbSystem(m.Kind())))
			err := closeManager(spanCtx, m)
			tracing.End(span, err)
			if o.opts.Metrics != nil {
				o.opts.Metrics.RecordClose(name, err)
			}
			if err == nil {
				return
			}
			var closeErr *store.CloseError
			if !errors.As(err, &closeErr) {
				err = &store.CloseError{Backend: name, Err: err}
			}
			o.log.Error("failed to close backend", "backend", name, "error", err)
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(errs, func(i, j int) bool { return errs[i].Error() < errs[j].Error() })
	return errors.Join(errs...)
}

// closeManager shields the caller from a panicking Close.
func closeManager(ctx context.Context, m store.Manager) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during close: %v", r)
		}
	}()
	return m.Close(ctx)
}

// dbSystem maps a backend kind to its OpenTelemetry db.system value.
func dbSystem(k store.Kind) string {
	switch k {
	case store.KindRelational:
		return "postgresql"
	case store.KindDocument:
		return "mongodb"
	case store.KindKeyValue:
		return "redis"
	default:
		return "other"
	}
}
