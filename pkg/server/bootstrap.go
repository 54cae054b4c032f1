package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/nimburion/servicekit/pkg/config"
	"github.com/nimburion/servicekit/pkg/health"
	"github.com/nimburion/servicekit/pkg/lifecycle"
	"github.com/nimburion/servicekit/pkg/observability/logger"
	"github.com/nimburion/servicekit/pkg/observability/metrics"
	"github.com/nimburion/servicekit/pkg/version"
)

// RunOptions defines the inputs of Run.
type RunOptions struct {
	Config       *config.Config
	Logger       logger.Logger
	Orchestrator *lifecycle.Orchestrator

	// HealthRegistry and MetricsRegistry are optional.
	HealthRegistry  *health.Registry
	MetricsRegistry *metrics.Registry
}

// Cosa fa: avvia i backend, espone la superficie HTTP di stato e blocca fino allo shutdown.
// Cosa NON fa: non ritenta connessioni fallite; un errore in avvio termina subito.
// Esempio minimo: err := server.Run(ctx, server.RunOptions{Config: cfg, Logger: log, Orchestrator: orch})
func Run(ctx context.Context, opts RunOptions) error {
	if opts.Config == nil {
		return errors.New("config is required")
	}
	if opts.Orchestrator == nil {
		return errors.New("orchestrator is required")
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.HealthRegistry == nil {
		opts.HealthRegistry = health.NewRegistry()
	}
	if opts.MetricsRegistry == nil {
		opts.MetricsRegistry = metrics.NewRegistry()
	}

	cfg := opts.Config
	orch := opts.Orchestrator

	info := version.Current(cfg.Service.Name, cfg.Service.Version, cfg.Service.APIVersion)
	opts.Logger.Info("application version metadata",
		"service", info.Service,
		"version", info.Version,
		"api_version", info.APIVersion,
		"commit", info.Commit,
		"build_time", info.BuildTime,
	)

	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}
	opts.HealthRegistry.RegisterStore(orch.Registry(), cfg.Lifecycle.OperationTimeout)

	srv := NewServer(Config{
		Port:            cfg.HTTP.InternalPort,
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		WriteTimeout:    cfg.HTTP.WriteTimeout,
		IdleTimeout:     cfg.HTTP.IdleTimeout,
		ShutdownTimeout: cfg.Lifecycle.CloseTimeout,
	}, NewEngine(EngineOptions{
		Version: info,
		Status:  orch,
		Health:  opts.HealthRegistry,
		Metrics: opts.MetricsRegistry,
		Logger:  opts.Logger,
	}), opts.Logger)

	srvCtx, stopServer := context.WithCancel(context.WithoutCancel(ctx))
	defer stopServer()

	srvDone := make(chan error, 1)
	go func() {
		err := srv.Start(srvCtx)
		if err != nil && srvCtx.Err() == nil {
			opts.Logger.Error("http server stopped unexpectedly", "error", err)
			orch.RequestShutdown()
		}
		srvDone <- err
	}()

	var serverErr error
	orch.OnShutdown(lifecycle.Hook{
		Name: "http-server",
		Fn: func(hookCtx context.Context) error {
			stopServer()
			select {
			case serverErr = <-srvDone:
				return serverErr
			case <-hookCtx.Done():
				return hookCtx.Err()
			}
		},
	})

	opts.Logger.Info("status server listening", "port", cfg.HTTP.InternalPort, "external_port", cfg.HTTP.ExternalPort)

	runErr := orch.Run(ctx)
	return errors.Join(runErr, serverErr)
}
