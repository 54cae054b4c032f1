package tracing

import (
	"context"
	"strings"
	"testing"
)

func TestNewTracerProvider_Disabled(t *testing.T) {
	provider, err := NewTracerProvider(context.Background(), Config{ServiceName: "orders"})
	if err != nil {
		t.Fatalf("expected no error for disabled tracing, got: %v", err)
	}
	if provider.Enabled() {
		t.Fatal("disabled provider must not report enabled")
	}
	if provider.Tracer("test") == nil {
		t.Fatal("expected a tracer even when disabled")
	}
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name:   "disabled ignores fields",
			config: Config{SampleRate: 7},
		},
		{
			name:   "valid",
			config: Config{Enabled: true, ServiceName: "orders", Endpoint: "localhost:4317", SampleRate: 0.5},
		},
		{
			name:    "missing service name",
			config:  Config{Enabled: true, Endpoint: "localhost:4317"},
			wantErr: "service name is required",
		},
		{
			name:    "missing endpoint",
			config:  Config{Enabled: true, ServiceName: "orders"},
			wantErr: "OTLP endpoint is required",
		},
		{
			name:    "negative sample rate",
			config:  Config{Enabled: true, ServiceName: "orders", Endpoint: "localhost:4317", SampleRate: -0.1},
			wantErr: "sample rate must be between 0 and 1",
		},
		{
			name:    "sample rate too high",
			config:  Config{Enabled: true, ServiceName: "orders", Endpoint: "localhost:4317", SampleRate: 1.5},
			wantErr: "sample rate must be between 0 and 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestNewTracerProvider_RejectsInvalidConfig(t *testing.T) {
	_, err := NewTracerProvider(context.Background(), Config{Enabled: true, ServiceName: "orders"})
	if err == nil {
		t.Fatal("expected validation error")
	}
}
