package lifecycle

import (
	"context"
	"errors"
	"fmt"
)

// Go runs fn in a tracked goroutine. Shutdown waits for tracked work after closing
// the backends; fn's context is cancelled if the drain times out. Go fails with
// ErrNotRunning outside the Running state.
func (o *Orchestrator) Go(name string, fn func(ctx context.Context) error) error {
	o.taskMu.Lock()
	if o.State() != StateRunning {
		o.taskMu.Unlock()
		return fmt.Errorf("%w: cannot start %q", ErrNotRunning, name)
	}
	o.tasks.Add(1)
	o.taskMu.Unlock()

	go func() {
		defer o.tasks.Done()
		defer func() {
			if r := recover(); r != nil {
				o.log.Error("task panicked", "task", name, "panic", r)
			}
		}()
		if err := fn(o.taskCtx); err != nil && !errors.Is(err, context.Canceled) {
			o.log.Error("task failed", "task", name, "error", err)
		}
	}()
	return nil
}
