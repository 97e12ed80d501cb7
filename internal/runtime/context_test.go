package runtime

import (
	"context"
	"testing"

	"github.com/illustrator-bridge/core/internal/bridge"
)

func testConfig() bridge.Config {
	return bridge.Config{Host: "127.0.0.1", Port: 0}
}

func TestContext_StartupIsIdempotent(t *testing.T) {
	c := New(testConfig(), nil, nil)
	ctx := context.Background()

	if err := c.Startup(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	br1, err := c.GetBridge(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := c.Startup(ctx); err != nil {
		t.Fatalf("second Startup call should be a no-op, got: %v", err)
	}
	br2, err := c.GetBridge(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if br1 != br2 {
		t.Error("expected the same Bridge instance across calls")
	}

	if err := c.Shutdown(ctx); err != nil {
		t.Fatalf("unexpected shutdown error: %v", err)
	}
}

func TestContext_GetExecutorLazilyCreatesBridge(t *testing.T) {
	c := New(testConfig(), nil, nil)
	ctx := context.Background()

	ex, err := c.GetExecutor(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ex == nil {
		t.Fatal("expected a non-nil executor")
	}

	br, err := c.GetBridge(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if br == nil {
		t.Fatal("expected GetExecutor to have lazily started a bridge")
	}

	if err := c.Shutdown(ctx); err != nil {
		t.Fatalf("unexpected shutdown error: %v", err)
	}
}

func TestContext_ShutdownWithoutStartupIsNoop(t *testing.T) {
	c := New(testConfig(), nil, nil)
	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("expected shutdown without startup to be a no-op, got: %v", err)
	}
}

func TestContext_ShutdownThenRestartRebuildsBridge(t *testing.T) {
	c := New(testConfig(), nil, nil)
	ctx := context.Background()

	br1, err := c.GetBridge(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.Shutdown(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	br2, err := c.GetBridge(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if br1 == br2 {
		t.Error("expected a fresh Bridge instance after shutdown")
	}
	_ = c.Shutdown(ctx)
}
