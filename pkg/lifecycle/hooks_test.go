package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/nimburion/servicekit/pkg/store"
)

func TestOnShutdown_RunsBeforeBackendsClose(t *testing.T) {
	fake := &fakeManager{}
	h := newHarness(t, map[store.Kind]*fakeManager{store.KindRelational: fake}, nil)
	ctx := context.Background()

	var order []string
	h.orch.OnShutdown(Hook{Name: "listener", Fn: func(context.Context) error {
		if !fake.Connected() {
			t.Error("backend closed before shutdown hook ran")
		}
		order = append(order, "listener")
		return nil
	}})
	h.orch.OnShutdown(Hook{Name: "failing", Fn: func(context.Context) error {
		order = append(order, "failing")
		return errors.New("hook failed")
	}})
	h.orch.OnShutdown(Hook{Name: "nil"})
	h.orch.OnShutdown(Hook{Fn: func(context.Context) error {
		order = append(order, "unnamed")
		return nil
	}})

	if err := h.orch.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.orch.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	want := []string{"listener", "failing", "unnamed"}
	if len(order) != len(want) {
		t.Fatalf("hooks ran %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("hooks ran %v, want %v", order, want)
		}
	}
	if fake.closeCount() != 1 {
		t.Fatal("backend not closed after hooks")
	}
}

func TestOnShutdown_NotRunOnFailedStartup(t *testing.T) {
	h := newHarness(t, map[store.Kind]*fakeManager{
		store.KindKeyValue: {connectErr: errors.New("refused")},
	}, nil)

	ran := false
	h.orch.OnShutdown(Hook{Name: "listener", Fn: func(context.Context) error {
		ran = true
		return nil
	}})

	if err := h.orch.Start(context.Background()); err == nil {
		t.Fatal("expected startup failure")
	}
	if ran {
		t.Fatal("shutdown hooks must not run when startup aborts")
	}
}
