package logging

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/nimburion/servicekit/pkg/middleware/requestid"
	"github.com/nimburion/servicekit/pkg/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(log *testutil.MockLogger, cfg Config) *gin.Engine {
	r := gin.New()
	r.Use(requestid.RequestID(), WithConfig(log, cfg))
	r.GET("/orders/:id", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/broken", func(c *gin.Context) {
		_ = c.Error(http.ErrHandlerTimeout)
		c.Status(http.StatusServiceUnavailable)
	})
	r.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func do(r *gin.Engine, path string) {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set(requestid.RequestIDHeader, "test-req-123")
	r.ServeHTTP(httptest.NewRecorder(), req)
}

func TestLogging_RequestCompleted(t *testing.T) {
	log := &testutil.MockLogger{}
	do(newEngine(log, DefaultConfig()), "/orders/7")

	entry, ok := log.Find("request completed")
	if !ok {
		t.Fatalf("expected completion entry, got %v", log.Entries())
	}
	checks := map[string]any{
		"request_id": "test-req-123",
		FieldMethod:  "GET",
		FieldPath:    "/orders/7",
		FieldRoute:   "/orders/:id",
		FieldStatus:  http.StatusOK,
	}
	for key, want := range checks {
		if entry.Fields[key] != want {
			t.Errorf("field %s = %v, want %v", key, entry.Fields[key], want)
		}
	}
	if _, ok := entry.Fields[FieldDurationMS]; !ok {
		t.Error("expected duration_ms field")
	}
	if _, ok := log.Find("request started"); ok {
		t.Error("start event should be off by default")
	}
}

func TestLogging_LevelFollowsStatus(t *testing.T) {
	tests := []struct {
		path  string
		msg   string
		level string
	}{
		{path: "/orders/1", msg: "request completed", level: "info"},
		{path: "/missing", msg: "request completed", level: "warn"},
		{path: "/broken", msg: "request failed", level: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			log := &testutil.MockLogger{}
			do(newEngine(log, DefaultConfig()), tt.path)

			entry, ok := log.Find(tt.msg)
			if !ok {
				t.Fatalf("expected %q entry, got %v", tt.msg, log.Entries())
			}
			if entry.Level != tt.level {
				t.Errorf("level = %s, want %s", entry.Level, tt.level)
			}
		})
	}
}

func TestLogging_ErrorField(t *testing.T) {
	log := &testutil.MockLogger{}
	do(newEngine(log, DefaultConfig()), "/broken")

	entry, _ := log.Find("request failed")
	if entry.Fields[FieldError] == nil {
		t.Fatal("expected error field on failed request")
	}
}

func TestLogging_ExcludedPrefix(t *testing.T) {
	log := &testutil.MockLogger{}
	do(newEngine(log, DefaultConfig()), "/metrics")

	if n := len(log.Entries()); n != 0 {
		t.Fatalf("expected /metrics to be excluded, got %d entries", n)
	}
}

func TestLogging_Disabled(t *testing.T) {
	log := &testutil.MockLogger{}
	do(newEngine(log, Config{}), "/orders/1")

	if n := len(log.Entries()); n != 0 {
		t.Fatalf("expected no entries when disabled, got %d", n)
	}
}

func TestLogging_PathPolicies(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogStart = true
	cfg.PathPolicies = []PathPolicy{
		{Prefix: "/orders", Mode: "MINIMAL"},
		{Prefix: "/missing", Mode: ModeOff},
	}

	log := &testutil.MockLogger{}
	r := newEngine(log, cfg)
	do(r, "/orders/9")
	do(r, "/missing")

	entries := log.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected a single minimal entry, got %v", entries)
	}
	if _, ok := entries[0].Fields[FieldDurationMS]; ok {
		t.Error("minimal mode should not log duration")
	}
	if entries[0].Fields[FieldStatus] != http.StatusOK {
		t.Errorf("status = %v", entries[0].Fields[FieldStatus])
	}
}

func TestModeForPath_LongestPrefixWins(t *testing.T) {
	cfg := normalize(Config{
		Enabled: true,
		PathPolicies: []PathPolicy{
			{Prefix: "/api", Mode: ModeMinimal},
			{Prefix: "/api/admin", Mode: ModeOff},
			{Prefix: " ", Mode: ModeOff},
		},
	})

	tests := map[string]Mode{
		"/api/orders":   ModeMinimal,
		"/api/admin/x":  ModeOff,
		"/server/stats": ModeFull,
	}
	for path, want := range tests {
		if got := cfg.modeForPath(path); got != want {
			t.Errorf("modeForPath(%q) = %s, want %s", path, got, want)
		}
	}
}
