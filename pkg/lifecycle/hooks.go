package lifecycle

import (
	"context"
	"strings"
)

// Hook is a named action run when shutdown begins, before any backend is closed.
// Hooks stop producers of new work, such as an HTTP listener.
type Hook struct {
	Name string
	Fn   func(context.Context) error
}

// OnShutdown registers h. Hooks run sequentially in registration order, each
// bounded by the close timeout; failures are logged and do not stop shutdown.
func (o *Orchestrator) OnShutdown(h Hook) {
	if h.Fn == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hooks = append(o.hooks, h)
}

func (o *Orchestrator) runHooks(ctx context.Context) {
	o.mu.RLock()
	hooks := append([]Hook(nil), o.hooks...)
	o.mu.RUnlock()

	for _, hook := range hooks {
		name := strings.TrimSpace(hook.Name)
		if name == "" {
			name = "unnamed"
		}
		o.log.Info("shutdown hook start", "hook", name)

		hookCtx, cancel := context.WithTimeout(ctx, o.opts.CloseTimeout)
		err := hook.Fn(hookCtx)
		cancel()

		if err != nil {
			o.log.Error("shutdown hook failed", "hook", name, "error", err)
			continue
		}
		o.log.Info("shutdown hook complete", "hook", name)
	}
}
