package testutil

import (
	"context"
	"sync"

	"github.com/nimburion/servicekit/pkg/observability/logger"
)

// MockLogger is a test logger that captures log entries for assertion in tests.
// Children created by With and WithContext record into the same entry list.
type MockLogger struct {
	mu     sync.Mutex
	Logs   []LogEntry
	root   *MockLogger
	fields map[string]any
}

// LogEntry represents a single log entry captured by MockLogger.
type LogEntry struct {
	Level  string
	Msg    string
	Fields map[string]any
}

// Debug records a debug-level log entry for testing assertions.
func (m *MockLogger) Debug(msg string, args ...any) { m.record("debug", msg, args) }

// Info records an info-level log entry for testing assertions.
func (m *MockLogger) Info(msg string, args ...any) { m.record("info", msg, args) }

// Warn records a warn-level log entry for testing assertions.
func (m *MockLogger) Warn(msg string, args ...any) { m.record("warn", msg, args) }

// Error records an error-level log entry for testing assertions.
func (m *MockLogger) Error(msg string, args ...any) { m.record("error", msg, args) }

// With returns a child logger carrying args on every entry.
func (m *MockLogger) With(args ...any) logger.Logger {
	return m.child(argsToMap(args))
}

// WithContext returns a child logger carrying the request and trace ids found in ctx.
func (m *MockLogger) WithContext(ctx context.Context) logger.Logger {
	fields := map[string]any{}
	if id := logger.RequestIDFromContext(ctx); id != "" {
		fields["request_id"] = id
	}
	if id := logger.TraceIDFromContext(ctx); id != "" {
		fields["trace_id"] = id
	}
	return m.child(fields)
}

// Entries returns a copy of every recorded entry.
func (m *MockLogger) Entries() []LogEntry {
	r := m.rootLogger()
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LogEntry(nil), r.Logs...)
}

// Find returns the first entry with msg.
func (m *MockLogger) Find(msg string) (LogEntry, bool) {
	for _, entry := range m.Entries() {
		if entry.Msg == msg {
			return entry, true
		}
	}
	return LogEntry{}, false
}

func (m *MockLogger) rootLogger() *MockLogger {
	if m.root != nil {
		return m.root
	}
	return m
}

func (m *MockLogger) child(fields map[string]any) *MockLogger {
	merged := make(map[string]any, len(m.fields)+len(fields))
	for k, v := range m.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &MockLogger{root: m.rootLogger(), fields: merged}
}

func (m *MockLogger) record(level, msg string, args []any) {
	fields := make(map[string]any, len(m.fields)+len(args)/2)
	for k, v := range m.fields {
		fields[k] = v
	}
	for k, v := range argsToMap(args) {
		fields[k] = v
	}

	r := m.rootLogger()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Logs = append(r.Logs, LogEntry{Level: level, Msg: msg, Fields: fields})
}

func argsToMap(args []any) map[string]any {
	fields := make(map[string]any)
	for i := 0; i < len(args)-1; i += 2 {
		if key, ok := args[i].(string); ok {
			fields[key] = args[i+1]
		}
	}
	return fields
}
