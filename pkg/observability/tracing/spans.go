package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Instrumentation scope names.
const (
	ScopeLifecycle = "servicekit/lifecycle"
	ScopeBackend   = "servicekit/backend"
)

// SpanOperation names a traced unit of work.
type SpanOperation string

const (
	SpanOperationStartup  SpanOperation = "lifecycle.startup"
	SpanOperationShutdown SpanOperation = "lifecycle.shutdown"

	SpanOperationConnect     SpanOperation = "backend.connect"
	SpanOperationClose       SpanOperation = "backend.close"
	SpanOperationHealthCheck SpanOperation = "backend.healthcheck"
)

// StartLifecycleSpan opens an internal span covering a whole lifecycle phase.
func StartLifecycleSpan(ctx context.Context, operation SpanOperation, service string) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(ScopeLifecycle).Start(ctx, string(operation), trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(
		attribute.String("lifecycle.operation", string(operation)),
		attribute.String("service.name", service),
	)
	return ctx, span
}

// BackendSpanOption configures a backend span.
type BackendSpanOption func(*backendSpanOptions)

type backendSpanOptions struct {
	attributes []attribute.KeyValue
}

// WithDBSystem sets the backend system, e.g. "postgresql" or "redis".
func WithDBSystem(system string) BackendSpanOption {
	return func(o *backendSpanOptions) {
		o.attributes = append(o.attributes, attribute.String("db.system", system))
	}
}

// WithServerAddress records the host and port the backend listens on.
func WithServerAddress(host string, port int) BackendSpanOption {
	return func(o *backendSpanOptions) {
		o.attributes = append(o.attributes,
			attribute.String("server.address", host),
			attribute.Int("server.port", port),
		)
	}
}

// WithDBName sets the database name.
func WithDBName(name string) BackendSpanOption {
	return func(o *backendSpanOptions) {
		o.attributes = append(o.attributes, attribute.String("db.name", name))
	}
}

// StartBackendSpan opens a client span named "<operation> <backend>".
func StartBackendSpan(ctx context.Context, operation SpanOperation, backend string, opts ...BackendSpanOption) (context.Context, trace.Span) {
	o := &backendSpanOptions{
		attributes: []attribute.KeyValue{
			attribute.String("backend.operation", string(operation)),
			attribute.String("backend.name", backend),
		},
	}
	for _, opt := range opts {
		opt(o)
	}

	ctx, span := otel.Tracer(ScopeBackend).Start(ctx, fmt.Sprintf("%s %s", operation, backend), trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(o.attributes...)
	return ctx, span
}

// End records err, or success when nil, and ends span.
func End(span trace.Span, err error) {
	if err != nil {
		RecordError(span, err)
	} else {
		RecordSuccess(span)
	}
	span.End()
}

// RecordError records an error in the span and sets the span status to error.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// RecordSuccess sets the span status to OK.
func RecordSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}
