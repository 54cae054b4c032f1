// Package cli builds the standard command tree of a service: serve, discover,
// healthcheck, version and config show.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/nimburion/servicekit/pkg/config"
	"github.com/nimburion/servicekit/pkg/health"
	"github.com/nimburion/servicekit/pkg/lifecycle"
	"github.com/nimburion/servicekit/pkg/observability/logger"
	"github.com/nimburion/servicekit/pkg/observability/metrics"
	"github.com/nimburion/servicekit/pkg/observability/tracing"
	"github.com/nimburion/servicekit/pkg/server"
	"github.com/nimburion/servicekit/pkg/store/factory"
	"github.com/nimburion/servicekit/pkg/version"
)

// ServiceCommandOptions defines the service-specific inputs of the command tree.
type ServiceCommandOptions struct {
	Name        string
	Description string
	ConfigPath  string
	EnvPrefix   string
	// EnvFile defaults to config.DefaultEnvFile.
	EnvFile string

	// Optional: custom config validation (runs after the built-in validation)
	ValidateConfig func(cfg *config.Config) error

	// Optional: extra factory options, e.g. constructors for custom adapters.
	FactoryOptions []factory.Option

	// Optional: called once the orchestrator exists and before it starts.
	// Typical use is registering shutdown hooks.
	ConfigureOrchestrator func(orch *lifecycle.Orchestrator, cfg *config.Config, log logger.Logger) error

	// LogOutput defaults to os.Stdout.
	LogOutput io.Writer

	// Optional: additional custom commands
	CustomCommands []*cobra.Command
}

// Runtime bundles what every command needs after configuration is loaded.
type Runtime struct {
	Config *config.Config
	Logger logger.Logger
	Loader *config.ViperLoader
}

// sync flushes buffered log entries when the logger supports it.
func (rt *Runtime) sync() {
	if s, ok := rt.Logger.(interface{ Sync() error }); ok {
		_ = s.Sync()
	}
}

// NewServiceCommand creates a standardized CLI with serve, discover, healthcheck, version, and config subcommands.
func NewServiceCommand(opts ServiceCommandOptions) *cobra.Command {
	if opts.EnvPrefix == "" {
		opts.EnvPrefix = "APP"
	}
	if opts.EnvFile == "" {
		opts.EnvFile = config.DefaultEnvFile
	}

	rootCmd := &cobra.Command{
		Use:           opts.Name,
		Short:         opts.Description,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var cfgPath string
	var envFile string
	var serviceNameOverride string
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config-file", "c", opts.ConfigPath, "config file path")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", opts.EnvFile, "dotenv file holding configuration and backend settings (empty disables it)")
	rootCmd.PersistentFlags().StringVar(&serviceNameOverride, "service-name", "", "service name override")
	config.RegisterFlags(rootCmd.PersistentFlags())

	load := func(flags *pflag.FlagSet) (*Runtime, error) {
		return LoadConfigAndLogger(
			cfgPath,
			opts.EnvPrefix,
			envFile,
			opts.ValidateConfig,
			flags,
			opts.Name,
			serviceNameOverride,
			opts.LogOutput,
		)
	}

	// version command
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			info := version.Current(opts.Name, "", "")
			loader := config.NewViperLoader(cfgPath, opts.EnvPrefix).
				WithEnvFile(envFile).
				WithServiceNameDefault(opts.Name)
			if cfg, err := loader.Load(); err == nil {
				name := resolveServiceNameValue(cfg.Service.Name, opts.Name, serviceNameOverride)
				info = version.Current(name, cfg.Service.Version, cfg.Service.APIVersion)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Service:     %s\n", info.Service)
			fmt.Fprintf(out, "Version:     %s\n", info.Version)
			fmt.Fprintf(out, "API Version: %s\n", info.APIVersion)
			fmt.Fprintf(out, "Commit:      %s\n", info.Commit)
			fmt.Fprintf(out, "Build Time:  %s\n", info.BuildTime)
		},
	}
	rootCmd.AddCommand(versionCmd)

	// serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Connect the configured backends and serve the status endpoints until shutdown",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := load(cmd.Flags())
			if err != nil {
				return err
			}
			defer rt.sync()

			tp, err := NewTracerProvider(cmd.Context(), rt.Config)
			if err != nil {
				return err
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), rt.Config.Lifecycle.CloseTimeout)
				defer cancel()
				if err := tp.Shutdown(ctx); err != nil {
					rt.Logger.Warn("failed to flush traces", "error", err)
				}
			}()

			metricsRegistry := metrics.NewRegistry()
			orch, err := NewOrchestrator(rt, metricsRegistry.Backends(), opts.FactoryOptions...)
			if err != nil {
				return err
			}
			if opts.ConfigureOrchestrator != nil {
				if err := opts.ConfigureOrchestrator(orch, rt.Config, rt.Logger); err != nil {
					return fmt.Errorf("configure orchestrator: %w", err)
				}
			}

			return server.Run(cmd.Context(), server.RunOptions{
				Config:          rt.Config,
				Logger:          rt.Logger,
				Orchestrator:    orch,
				MetricsRegistry: metricsRegistry,
			})
		},
	}
	SetCommandPolicies(serveCmd, map[string]CommandPolicy{defaultPolicyContext: PolicyRun})
	rootCmd.AddCommand(serveCmd)
	rootCmd.RunE = serveCmd.RunE

	// discover command
	discoverCmd := &cobra.Command{
		Use:   "discover",
		Short: "Print the backends found in the configuration, with passwords masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := load(cmd.Flags())
			if err != nil {
				return err
			}
			found, err := discover(rt)
			if err != nil {
				return err
			}
			f := newFactory(rt, opts.FactoryOptions...)
			views, err := describeBackends(f, found)
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), views)
		},
	}
	SetCommandPolicies(discoverCmd, map[string]CommandPolicy{defaultPolicyContext: PolicyOnDemand})
	rootCmd.AddCommand(discoverCmd)

	// healthcheck command
	var healthTimeout time.Duration
	healthcheckCmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Connect every backend once, ping it and disconnect",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := load(cmd.Flags())
			if err != nil {
				return err
			}
			defer rt.sync()

			ctx, cancel := context.WithTimeout(cmd.Context(), healthTimeout)
			defer cancel()
			return runHealthcheck(ctx, cmd.OutOrStdout(), rt, opts.FactoryOptions...)
		},
	}
	healthcheckCmd.Flags().DurationVar(&healthTimeout, "timeout", 10*time.Second, "overall healthcheck timeout")
	SetCommandPolicies(healthcheckCmd, map[string]CommandPolicy{defaultPolicyContext: PolicyManual})
	rootCmd.AddCommand(healthcheckCmd)

	// config command
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := load(cmd.Flags())
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), rt.Config)
		},
	})
	rootCmd.AddCommand(configCmd)

	for _, custom := range opts.CustomCommands {
		if custom != nil {
			rootCmd.AddCommand(custom)
		}
	}

	rootCmd.CompletionOptions.DisableDefaultCmd = false
	rootCmd.InitDefaultCompletionCmd()

	ensureDefaultPolicies(rootCmd)
	return rootCmd
}

// LoadConfigAndLogger loads, validates and post-processes the configuration,
// then builds the logger it describes.
func LoadConfigAndLogger(
	cfgPath,
	envPrefix,
	envFile string,
	customValidator func(*config.Config) error,
	flags *pflag.FlagSet,
	defaultServiceName string,
	serviceNameOverride string,
	logOutput io.Writer,
) (*Runtime, error) {
	loader := config.NewViperLoader(cfgPath, resolveEnvPrefix(envPrefix)).
		WithEnvFile(envFile).
		WithServiceNameDefault(defaultServiceName).
		WithFlags(flags)
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	applyResolvedServiceName(cfg, defaultServiceName, serviceNameOverride)

	if customValidator != nil {
		if err := customValidator(cfg); err != nil {
			return nil, fmt.Errorf("custom validation failed: %w", err)
		}
	}

	log, err := logger.NewZapLogger(logger.Config{
		Level:       logger.LogLevel(cfg.Observability.LogLevel),
		Format:      logger.LogFormat(cfg.Observability.LogFormat),
		ServiceName: cfg.Service.Name,
		Output:      logOutput,
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	logConfigIfDebug(log, cfg, loader.EnvFile())
	return &Runtime{Config: cfg, Logger: log, Loader: loader}, nil
}

// NewOrchestrator wires discovery, the adapter factory and the lifecycle timeouts of rt.
func NewOrchestrator(rt *Runtime, backendMetrics *metrics.BackendMetrics, factoryOpts ...factory.Option) (*lifecycle.Orchestrator, error) {
	if rt == nil || rt.Config == nil {
		return nil, errors.New("runtime is required")
	}
	cfg := rt.Config
	return lifecycle.New(lifecycle.Options{
		Name:       cfg.Service.Name,
		Version:    cfg.Service.Version,
		APIVersion: cfg.Service.APIVersion,
		Discover: func(context.Context) (config.Discovered, error) {
			return discover(rt)
		},
		Factory:        newFactory(rt, factoryOpts...),
		Logger:         rt.Logger,
		Metrics:        backendMetrics,
		ConnectTimeout: cfg.Lifecycle.ConnectTimeout,
		CloseTimeout:   cfg.Lifecycle.CloseTimeout,
		DrainTimeout:   cfg.Lifecycle.DrainTimeout,
	})
}

// NewTracerProvider builds the tracer provider described by cfg. A disabled
// configuration yields a provider that exports nothing.
func NewTracerProvider(ctx context.Context, cfg *config.Config) (*tracing.TracerProvider, error) {
	tp, err := tracing.NewTracerProvider(ctx, tracing.Config{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: cfg.Service.Version,
		Environment:    cfg.Service.Environment,
		Endpoint:       cfg.Observability.TracingEndpoint,
		SampleRate:     cfg.Observability.TracingSampleRate,
		Enabled:        cfg.Observability.TracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("create tracer provider: %w", err)
	}
	return tp, nil
}

func newFactory(rt *Runtime, extra ...factory.Option) *factory.Factory {
	cfg := rt.Config
	opts := []factory.Option{factory.WithOptions(factory.Options{
		ConnectTimeout:   cfg.Lifecycle.ConnectTimeout,
		OperationTimeout: cfg.Lifecycle.OperationTimeout,
		SSLMode:          cfg.Lifecycle.SSLMode,
	})}
	return factory.NewFactory(rt.Logger, append(opts, extra...)...)
}

func discover(rt *Runtime) (config.Discovered, error) {
	raw, err := rt.Loader.DiscoveryInput()
	if err != nil {
		return nil, err
	}
	return config.Discover(raw, rt.Config.Pool)
}

func runHealthcheck(ctx context.Context, out io.Writer, rt *Runtime, factoryOpts ...factory.Option) error {
	orch, err := NewOrchestrator(rt, nil, factoryOpts...)
	if err != nil {
		return err
	}
	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("healthcheck failed: %w", err)
	}
	defer func() {
		if err := orch.Shutdown(context.WithoutCancel(ctx)); err != nil {
			rt.Logger.Warn("healthcheck shutdown incomplete", "error", err)
		}
	}()

	checks := health.NewRegistry()
	checks.RegisterStore(orch.Registry(), rt.Config.Lifecycle.OperationTimeout)
	result := checks.Check(ctx)
	for _, check := range result.Checks {
		line := fmt.Sprintf("%s: %s", check.Name, check.Status)
		if check.Error != "" {
			line += " (" + check.Error + ")"
		}
		fmt.Fprintln(out, line)
	}
	if len(result.Checks) == 0 {
		fmt.Fprintln(out, "no backends configured")
	}
	if !result.IsHealthy() {
		return fmt.Errorf("healthcheck failed: status %s", result.Status)
	}
	return nil
}

// backendView is the printable form of discovered parameters.
type backendView struct {
	Kind        string        `yaml:"kind"`
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	User        string        `yaml:"user,omitempty"`
	Password    string        `yaml:"password,omitempty"`
	Database    string        `yaml:"database"`
	MinPoolSize int           `yaml:"min_pool_size"`
	MaxPoolSize int           `yaml:"max_pool_size"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
	URI         string        `yaml:"uri"`
}

// describeBackends renders found with passwords masked. URIs come from the
// adapters themselves; building an adapter opens no connection.
func describeBackends(f *factory.Factory, found config.Discovered) (map[string]backendView, error) {
	redacted := found.Redacted()
	out := make(map[string]backendView, len(redacted))
	for _, name := range redacted.Names() {
		p := redacted[name]
		manager, err := f.New(p)
		if err != nil {
			return nil, err
		}
		out[name] = backendView{
			Kind:        p.Kind().String(),
			Host:        p.Host(),
			Port:        p.Port(),
			User:        p.User(),
			Password:    p.Password(),
			Database:    p.Database(),
			MinPoolSize: p.MinPoolSize(),
			MaxPoolSize: p.MaxPoolSize(),
			IdleTimeout: p.IdleTimeout(),
			URI:         manager.BuildURI(),
		}
	}
	return out, nil
}

func writeYAML(out io.Writer, value any) error {
	data, err := yaml.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	_, err = out.Write(data)
	return err
}

// Execute runs the command and exits with appropriate code.
func Execute(cmd *cobra.Command) {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func logConfigIfDebug(log logger.Logger, cfg *config.Config, envFile string) {
	if log == nil || cfg == nil {
		return
	}

	if !strings.EqualFold(cfg.Observability.LogLevel, string(logger.DebugLevel)) {
		return
	}

	log.Debug("effective configuration", "config", fmt.Sprintf("%+v", cfg), "env_file", envFile)
}

func resolveEnvPrefix(prefix string) string {
	trimmed := strings.TrimSpace(prefix)
	if trimmed == "" {
		return "APP"
	}
	return strings.ToUpper(trimmed)
}

func applyResolvedServiceName(cfg *config.Config, defaultServiceName, serviceNameOverride string) {
	if cfg == nil {
		return
	}
	cfg.Service.Name = resolveServiceNameValue(cfg.Service.Name, defaultServiceName, serviceNameOverride)
}

func resolveServiceNameValue(currentConfigName, defaultServiceName, serviceNameOverride string) string {
	if override := strings.TrimSpace(serviceNameOverride); override != "" {
		return override
	}
	if configured := strings.TrimSpace(currentConfigName); configured != "" {
		return configured
	}
	if fallback := strings.TrimSpace(defaultServiceName); fallback != "" {
		return fallback
	}
	return "app"
}
