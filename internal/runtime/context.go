// Package runtime wires a Bridge and an Executor into process-wide
// singletons and binds their lifecycle to the host process's own
// startup/shutdown sequence.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/illustrator-bridge/core/internal/bridge"
	"github.com/illustrator-bridge/core/internal/executor"
)

// shutdownGrace bounds how long Shutdown waits for the bridge to drain
// in-flight work before giving up.
const shutdownGrace = 5 * time.Second

// Context is the singleton owner of the process's Bridge and Executor.
// Accessors are the only supported way for other components to obtain
// either; both are created lazily under double-checked locking.
type Context struct {
	cfg     bridge.Config
	logger  *slog.Logger
	metrics bridge.Metrics

	mu      sync.Mutex
	br      *bridge.Bridge
	ex      *executor.Executor
	started bool
}

// New builds a Context. Nothing is started until Startup is called; the
// lazy accessors also start the bridge on first access if Startup hasn't
// run yet, mirroring the original's "auto-start when accessed" behavior.
func New(cfg bridge.Config, logger *slog.Logger, metrics bridge.Metrics) *Context {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = bridge.NoopMetrics{}
	}
	return &Context{cfg: cfg, logger: logger.With("component", "runtime_context"), metrics: metrics}
}

// GetBridge returns the process-wide Bridge, creating and starting it on
// first access if it doesn't already exist.
func (c *Context) GetBridge(ctx context.Context) (*bridge.Bridge, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bridgeLocked(ctx)
}

func (c *Context) bridgeLocked(ctx context.Context) (*bridge.Bridge, error) {
	if c.br != nil {
		return c.br, nil
	}
	registry := bridge.NewRegistry(c.logger)
	br := bridge.New(c.cfg, registry, c.logger, c.metrics)
	if err := br.Start(ctx); err != nil {
		return nil, fmt.Errorf("start bridge: %w", err)
	}
	c.br = br
	return c.br, nil
}

// GetExecutor returns the process-wide Executor, creating the Bridge (and
// the Executor wrapping it) on first access if needed.
func (c *Context) GetExecutor(ctx context.Context) (*executor.Executor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ex != nil {
		return c.ex, nil
	}
	br, err := c.bridgeLocked(ctx)
	if err != nil {
		return nil, err
	}
	c.ex = executor.New(br, c.logger)
	return c.ex, nil
}

// Startup eagerly creates and starts the Bridge (and Executor), rather than
// relying on the lazy accessors' first access.
func (c *Context) Startup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return nil
	}
	if _, err := c.bridgeLocked(ctx); err != nil {
		return err
	}
	if c.ex == nil {
		c.ex = executor.New(c.br, c.logger)
	}
	c.started = true
	c.logger.Info("runtime context started", "ws_host", c.cfg.Host, "ws_port", c.cfg.Port)
	return nil
}

// Shutdown stops the Bridge, bounded by shutdownGrace, and releases the
// singleton references so a subsequent Startup rebuilds them cleanly.
func (c *Context) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.br == nil {
		c.started = false
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownGrace)
	defer cancel()

	err := c.br.Stop(shutdownCtx)
	c.br = nil
	c.ex = nil
	c.started = false
	if err != nil {
		return fmt.Errorf("stop bridge: %w", err)
	}
	c.logger.Info("runtime context stopped")
	return nil
}
