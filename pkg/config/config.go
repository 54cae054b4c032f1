package config

import "time"

// Config is the root configuration structure of the service
type Config struct {
	Service       ServiceConfig       `mapstructure:"service" yaml:"service"`
	HTTP          HTTPConfig          `mapstructure:"http" yaml:"http"`
	Observability ObservabilityConfig `mapstructure:"observability" yaml:"observability"`
	Pool          PoolConfig          `mapstructure:"pool" yaml:"pool"`
	Lifecycle     LifecycleConfig     `mapstructure:"lifecycle" yaml:"lifecycle"`
}

// ServiceConfig configures service identity metadata reported by the status endpoint.
type ServiceConfig struct {
	Name        string `mapstructure:"name" yaml:"name"`
	Version     string `mapstructure:"version" yaml:"version"`
	APIVersion  string `mapstructure:"api_version" yaml:"api_version"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// HTTPConfig configures the status server. InternalPort is the listening port;
// ExternalPort is the port advertised to callers when the service runs behind a proxy.
type HTTPConfig struct {
	InternalPort int           `mapstructure:"internal_port" yaml:"internal_port"`
	ExternalPort int           `mapstructure:"external_port" yaml:"external_port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

// ObservabilityConfig configures logging and tracing
type ObservabilityConfig struct {
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	TracingEnabled    bool    `mapstructure:"tracing_enabled" yaml:"tracing_enabled"`
	TracingEndpoint   string  `mapstructure:"tracing_endpoint" yaml:"tracing_endpoint"`
	TracingSampleRate float64 `mapstructure:"tracing_sample_rate" yaml:"tracing_sample_rate"`
}

// PoolConfig holds the pool bounds applied to every discovered backend.
type PoolConfig struct {
	MinSize     int           `mapstructure:"min_size" yaml:"min_size"`
	MaxSize     int           `mapstructure:"max_size" yaml:"max_size"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

// LifecycleConfig bounds the startup and shutdown phases.
type LifecycleConfig struct {
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout" yaml:"operation_timeout"`
	DrainTimeout     time.Duration `mapstructure:"drain_timeout" yaml:"drain_timeout"`
	CloseTimeout     time.Duration `mapstructure:"close_timeout" yaml:"close_timeout"`
	SSLMode          string        `mapstructure:"sslmode" yaml:"sslmode"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "app",
			Version:     "0.1.0",
			APIVersion:  "v1",
			Environment: "production",
		},
		HTTP: HTTPConfig{
			InternalPort: 8080,
			ExternalPort: 8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel:          "info",
			LogFormat:         "json",
			TracingEndpoint:   "localhost:4317",
			TracingSampleRate: 1.0,
		},
		Pool: PoolConfig{
			MinSize:     5,
			MaxSize:     10,
			IdleTimeout: 300 * time.Second,
		},
		Lifecycle: LifecycleConfig{
			ConnectTimeout:   5 * time.Second,
			OperationTimeout: 5 * time.Second,
			DrainTimeout:     30 * time.Second,
			CloseTimeout:     10 * time.Second,
			SSLMode:          "disable",
		},
	}
}
