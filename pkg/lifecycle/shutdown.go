package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/nimburion/servicekit/pkg/observability/tracing"
)

// RequestShutdown asks the supervisor started by Run to shut down. It never blocks
// and may be called from any goroutine; duplicate requests are dropped.
func (o *Orchestrator) RequestShutdown() {
	select {
	case o.shutdownReq <- struct{}{}:
	default:
	}
}

// Run supervises the orchestrator until a termination signal, a shutdown
// request or ctx cancellation, then shuts down. A request made before Run is
// honored immediately. Run may be started alongside Start; a request that
// arrives while backends are still connecting takes effect once Start returns.
func (o *Orchestrator) Run(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, o.opts.Signals...)
	defer func() {
		signal.Stop(sigCh)
		close(sigCh)
	}()

	go func() {
		for sig := range sigCh {
			o.log.Info("received signal, initiating shutdown", "signal", sig.String())
			o.RequestShutdown()
		}
	}()

	select {
	case <-o.shutdownReq:
		o.log.Info("shutdown requested")
	case <-ctx.Done():
		o.log.Info("context cancelled, initiating shutdown", "reason", ctx.Err())
	case <-o.done:
		return nil
	}

	return o.Shutdown(context.WithoutCancel(ctx))
}

// Shutdown closes every backend, then waits for tracked work up to the drain timeout.
// Close failures are logged and never returned. Concurrent and repeated calls wait
// for the first one to finish and return nil. A call made while Start is still
// connecting waits for startup to settle and then shuts down what it opened.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	for {
		if o.transition(StateRunning, StateStopping) {
			err := o.stop(ctx)
			o.finish()
			o.log.Info("service is shutdown", "name", o.opts.Name)
			return err
		}
		if o.transition(StateIdle, StateStopped) {
			o.finish()
			return nil
		}

		switch o.State() {
		case StateStarting:
			select {
			case <-o.started:
			case <-ctx.Done():
				return ctx.Err()
			}
		case StateStopping, StateStopped:
			select {
			case <-o.done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (o *Orchestrator) stop(ctx context.Context) error {
	o.log.Info("shutting down", "name", o.opts.Name, "services", o.registry.Names())

	ctx, span := tracing.StartLifecycleSpan(ctx, tracing.SpanOperationShutdown, o.opts.Name)
	o.runHooks(ctx)

	if err := o.closeAll(ctx); err != nil {
		o.log.Warn("shutdown completed with close errors", "error", err)
	}
	err := o.drain(ctx)
	tracing.End(span, err)
	return err
}

// drain waits for work started through Go, bounded by the drain timeout.
func (o *Orchestrator) drain(ctx context.Context) error {
	// no Go call can Add after this barrier: the state is no longer Running
	o.taskMu.Lock()
	o.taskMu.Unlock()

	finished := make(chan struct{})
	go func() {
		o.tasks.Wait()
		close(finished)
	}()

	timer := time.NewTimer(o.opts.DrainTimeout)
	defer timer.Stop()

	select {
	case <-finished:
		return nil
	case <-timer.C:
		o.cancelTasks()
		o.log.Warn("in-flight work did not finish in time", "drain_timeout", o.opts.DrainTimeout)
		return ErrDrainTimeout
	case <-ctx.Done():
		o.cancelTasks()
		return ctx.Err()
	}
}
