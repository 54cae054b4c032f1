package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/nimburion/servicekit/pkg/version"
)

// DefaultEnvFile is the dotenv file read when present in the working directory.
const DefaultEnvFile = ".env"

// Loader defines the interface for loading configuration
type Loader interface {
	Load() (*Config, error)
	Validate(*Config) error
}

// ViperLoader implements Loader using Viper for configuration management
type ViperLoader struct {
	configFile         string
	envFile            string
	envPrefix          string
	serviceNameDefault string
	flags              *pflag.FlagSet
}

// NewViperLoader creates a new ViperLoader
// configFile: path to configuration file (optional, can be empty)
// envPrefix: prefix for environment variables (e.g., "APP")
func NewViperLoader(configFile, envPrefix string) *ViperLoader {
	return &ViperLoader{
		configFile: configFile,
		envFile:    DefaultEnvFile,
		envPrefix:  envPrefix,
	}
}

// WithEnvFile sets the dotenv file path. An empty path disables dotenv support.
func (l *ViperLoader) WithEnvFile(path string) *ViperLoader {
	if l == nil {
		return l
	}
	l.envFile = strings.TrimSpace(path)
	return l
}

// WithServiceNameDefault sets the default service.name used when no config/env override is provided.
func (l *ViperLoader) WithServiceNameDefault(serviceName string) *ViperLoader {
	if l == nil {
		return l
	}
	l.serviceNameDefault = strings.TrimSpace(serviceName)
	return l
}

// WithFlags applies command-line overrides registered by RegisterFlags. Only
// flags explicitly set by the user take effect; they win over every other source.
func (l *ViperLoader) WithFlags(flags *pflag.FlagSet) *ViperLoader {
	if l == nil {
		return l
	}
	l.flags = flags
	return l
}

// flagKeys maps command-line flags to config keys.
var flagKeys = []struct {
	flag string
	key  string
}{
	{"http-port", "http.internal_port"},
	{"log-level", "observability.log_level"},
	{"log-format", "observability.log_format"},
	{"drain-timeout", "lifecycle.drain_timeout"},
}

// RegisterFlags adds the override flags understood by WithFlags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.Int("http-port", 0, "status server port (overrides http.internal_port)")
	fs.String("log-level", "", "log level: debug, info, warn, error")
	fs.String("log-format", "", "log format: json, text")
	fs.Duration("drain-timeout", 0, "maximum wait for in-flight work at shutdown")
}

// configKeys maps every config key to its environment suffix.
var configKeys = []struct {
	key    string
	suffix string
}{
	{"service.name", "SERVICE_NAME"},
	{"service.version", "SERVICE_VERSION"},
	{"service.api_version", "SERVICE_API_VERSION"},
	{"service.environment", "SERVICE_ENVIRONMENT"},

	{"http.internal_port", "HTTP_INTERNAL_PORT"},
	{"http.external_port", "HTTP_EXTERNAL_PORT"},
	{"http.read_timeout", "HTTP_READ_TIMEOUT"},
	{"http.write_timeout", "HTTP_WRITE_TIMEOUT"},
	{"http.idle_timeout", "HTTP_IDLE_TIMEOUT"},

	{"observability.log_level", "OBSERVABILITY_LOG_LEVEL"},
	{"observability.log_format", "OBSERVABILITY_LOG_FORMAT"},
	{"observability.tracing_enabled", "OBSERVABILITY_TRACING_ENABLED"},
	{"observability.tracing_endpoint", "OBSERVABILITY_TRACING_ENDPOINT"},
	{"observability.tracing_sample_rate", "OBSERVABILITY_TRACING_SAMPLE_RATE"},

	{"pool.min_size", "POOL_MIN_SIZE"},
	{"pool.max_size", "POOL_MAX_SIZE"},
	{"pool.idle_timeout", "POOL_IDLE_TIMEOUT"},

	{"lifecycle.connect_timeout", "LIFECYCLE_CONNECT_TIMEOUT"},
	{"lifecycle.operation_timeout", "LIFECYCLE_OPERATION_TIMEOUT"},
	{"lifecycle.drain_timeout", "LIFECYCLE_DRAIN_TIMEOUT"},
	{"lifecycle.close_timeout", "LIFECYCLE_CLOSE_TIMEOUT"},
	{"lifecycle.sslmode", "LIFECYCLE_SSLMODE"},
}

// Load loads configuration with precedence: flags > ENV > .env > file > defaults
func (l *ViperLoader) Load() (*Config, error) {
	v := viper.New()

	// Start with defaults
	l.setDefaults(v, DefaultConfig())

	// Read config file if provided
	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			// Only return error if file was explicitly specified but couldn't be read
			return nil, fmt.Errorf("failed to read config file %s: %w", l.configFile, err)
		}
	}

	v.SetEnvPrefix(l.envPrefix)
	l.bindEnvVars(v)

	dotenv, found, err := l.readDotenv()
	if err != nil {
		return nil, err
	}
	if found {
		l.applyDotenv(v, dotenv)
	}
	l.applyFlags(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// DiscoveryInput returns the raw key/value data backend discovery runs on: the
// dotenv file when present, otherwise the process environment.
func (l *ViperLoader) DiscoveryInput() (map[string]string, error) {
	dotenv, found, err := l.readDotenv()
	if err != nil {
		return nil, err
	}
	if found {
		return dotenv, nil
	}
	return RawFromEnviron(os.Environ()), nil
}

// EnvFile returns the dotenv path the loader reads, empty when disabled.
func (l *ViperLoader) EnvFile() string {
	return l.envFile
}

// readDotenv parses the dotenv file. Keys come back lower-cased.
func (l *ViperLoader) readDotenv() (map[string]string, bool, error) {
	if l.envFile == "" {
		return nil, false, nil
	}
	if _, err := os.Stat(l.envFile); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to stat env file %s: %w", l.envFile, err)
	}

	dv := viper.New()
	dv.SetConfigFile(l.envFile)
	dv.SetConfigType("env")
	if err := dv.ReadInConfig(); err != nil {
		return nil, false, fmt.Errorf("failed to read env file %s: %w", l.envFile, err)
	}

	out := make(map[string]string)
	for key, value := range dv.AllSettings() {
		out[strings.ToLower(key)] = fmt.Sprint(value)
	}
	return out, true, nil
}

// applyDotenv sets config keys found in the dotenv file unless the process
// environment already provides them.
func (l *ViperLoader) applyDotenv(v *viper.Viper, dotenv map[string]string) {
	for _, ck := range configKeys {
		envName := l.prefixedEnv(ck.suffix)
		if _, inEnv := os.LookupEnv(envName); inEnv {
			continue
		}
		if value, ok := dotenv[strings.ToLower(envName)]; ok {
			v.Set(ck.key, value)
		}
	}
}

func (l *ViperLoader) applyFlags(v *viper.Viper) {
	if l.flags == nil {
		return
	}
	for _, fk := range flagKeys {
		if f := l.flags.Lookup(fk.flag); f != nil && f.Changed {
			v.Set(fk.key, f.Value.String())
		}
	}
}

// bindEnvVars explicitly binds environment variables for nested structs
func (l *ViperLoader) bindEnvVars(v *viper.Viper) {
	for _, ck := range configKeys {
		_ = v.BindEnv(ck.key, l.prefixedEnv(ck.suffix))
	}
	// the bare ENVIRONMENT name is kept as a fallback
	_ = v.BindEnv("service.environment", l.prefixedEnv("SERVICE_ENVIRONMENT"), l.prefixedEnv("ENVIRONMENT"))
}

func (l *ViperLoader) prefixedEnv(suffix string) string {
	prefix := strings.TrimSpace(l.envPrefix)
	if prefix == "" {
		prefix = "APP"
	}
	return fmt.Sprintf("%s_%s", strings.ToUpper(prefix), suffix)
}

func (l *ViperLoader) defaultServiceName(fallback string) string {
	if l != nil {
		if configured := strings.TrimSpace(l.serviceNameDefault); configured != "" {
			return configured
		}
	}
	return strings.TrimSpace(fallback)
}

// setDefaults sets default values in Viper from the default config
func (l *ViperLoader) setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("service.name", l.defaultServiceName(cfg.Service.Name))
	v.SetDefault("service.version", cfg.Service.Version)
	v.SetDefault("service.api_version", cfg.Service.APIVersion)
	v.SetDefault("service.environment", cfg.Service.Environment)

	v.SetDefault("http.internal_port", cfg.HTTP.InternalPort)
	v.SetDefault("http.external_port", cfg.HTTP.ExternalPort)
	v.SetDefault("http.read_timeout", cfg.HTTP.ReadTimeout)
	v.SetDefault("http.write_timeout", cfg.HTTP.WriteTimeout)
	v.SetDefault("http.idle_timeout", cfg.HTTP.IdleTimeout)

	v.SetDefault("observability.log_level", cfg.Observability.LogLevel)
	v.SetDefault("observability.log_format", cfg.Observability.LogFormat)
	v.SetDefault("observability.tracing_enabled", cfg.Observability.TracingEnabled)
	v.SetDefault("observability.tracing_endpoint", cfg.Observability.TracingEndpoint)
	v.SetDefault("observability.tracing_sample_rate", cfg.Observability.TracingSampleRate)

	v.SetDefault("pool.min_size", cfg.Pool.MinSize)
	v.SetDefault("pool.max_size", cfg.Pool.MaxSize)
	v.SetDefault("pool.idle_timeout", cfg.Pool.IdleTimeout)

	v.SetDefault("lifecycle.connect_timeout", cfg.Lifecycle.ConnectTimeout)
	v.SetDefault("lifecycle.operation_timeout", cfg.Lifecycle.OperationTimeout)
	v.SetDefault("lifecycle.drain_timeout", cfg.Lifecycle.DrainTimeout)
	v.SetDefault("lifecycle.close_timeout", cfg.Lifecycle.CloseTimeout)
	v.SetDefault("lifecycle.sslmode", cfg.Lifecycle.SSLMode)
}

// Validate validates the configuration and returns detailed errors
func (l *ViperLoader) Validate(cfg *Config) error {
	var errs []error

	if strings.TrimSpace(cfg.Service.Name) == "" {
		errs = append(errs, errors.New("service.name is required"))
	}
	if v := strings.TrimSpace(cfg.Service.Version); v != "" && !version.IsValid(v) {
		errs = append(errs, fmt.Errorf("invalid service.version: %q (must be a semantic version)", v))
	}

	if cfg.HTTP.InternalPort < 1 || cfg.HTTP.InternalPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid http.internal_port: %d (must be 1-65535)", cfg.HTTP.InternalPort))
	}
	if cfg.HTTP.ExternalPort < 1 || cfg.HTTP.ExternalPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid http.external_port: %d (must be 1-65535)", cfg.HTTP.ExternalPort))
	}
	if cfg.HTTP.ReadTimeout < 0 || cfg.HTTP.WriteTimeout < 0 || cfg.HTTP.IdleTimeout < 0 {
		errs = append(errs, errors.New("http timeouts cannot be negative"))
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, strings.ToLower(cfg.Observability.LogLevel)) {
		errs = append(errs, fmt.Errorf("invalid log_level: %s (must be one of: %v)", cfg.Observability.LogLevel, validLogLevels))
	}
	validLogFormats := []string{"json", "text"}
	if !contains(validLogFormats, strings.ToLower(cfg.Observability.LogFormat)) {
		errs = append(errs, fmt.Errorf("invalid log_format: %s (must be one of: %v)", cfg.Observability.LogFormat, validLogFormats))
	}
	if cfg.Observability.TracingEnabled {
		if strings.TrimSpace(cfg.Observability.TracingEndpoint) == "" {
			errs = append(errs, errors.New("observability.tracing_endpoint is required when tracing is enabled"))
		}
		if rate := cfg.Observability.TracingSampleRate; rate < 0 || rate > 1 {
			errs = append(errs, fmt.Errorf("invalid observability.tracing_sample_rate: %v (must be between 0 and 1)", rate))
		}
	}

	if err := cfg.Pool.Validate(); err != nil {
		errs = append(errs, err)
	}

	if cfg.Lifecycle.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("lifecycle.connect_timeout must be greater than zero"))
	}
	if cfg.Lifecycle.OperationTimeout <= 0 {
		errs = append(errs, errors.New("lifecycle.operation_timeout must be greater than zero"))
	}
	if cfg.Lifecycle.DrainTimeout <= 0 {
		errs = append(errs, errors.New("lifecycle.drain_timeout must be greater than zero"))
	}
	if cfg.Lifecycle.CloseTimeout <= 0 {
		errs = append(errs, errors.New("lifecycle.close_timeout must be greater than zero"))
	}
	validSSLModes := []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}
	if !contains(validSSLModes, cfg.Lifecycle.SSLMode) {
		errs = append(errs, fmt.Errorf("invalid lifecycle.sslmode: %s (must be one of: %v)", cfg.Lifecycle.SSLMode, validSSLModes))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the pool bounds applied to discovered backends.
func (p PoolConfig) Validate() error {
	var errs []error
	if p.MaxSize < 1 {
		errs = append(errs, &ConfigurationError{Key: "pool.max_size", Value: strconv.Itoa(p.MaxSize), Err: errors.New("must be greater than zero")})
	}
	if p.MinSize < 1 {
		errs = append(errs, &ConfigurationError{Key: "pool.min_size", Value: strconv.Itoa(p.MinSize), Err: errors.New("must be greater than zero")})
	}
	if p.MinSize > p.MaxSize {
		errs = append(errs, &ConfigurationError{Key: "pool.min_size", Value: strconv.Itoa(p.MinSize), Err: fmt.Errorf("exceeds pool.max_size %d", p.MaxSize)})
	}
	if p.IdleTimeout < 0 {
		errs = append(errs, &ConfigurationError{Key: "pool.idle_timeout", Value: p.IdleTimeout.String(), Err: errors.New("cannot be negative")})
	}
	return errors.Join(errs...)
}

// contains checks if a string slice contains a specific string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
