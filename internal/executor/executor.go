// Package executor provides the public script-dispatch API used by the
// tool-call surface: trace IDs, timing, connection checking, and reply
// reshaping on top of the dispatch bridge.
package executor

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/illustrator-bridge/core/internal/bridge"
)

// Dispatcher is the subset of *bridge.Bridge the executor depends on.
// Narrowing to an interface keeps this package testable without a real
// WebSocket listener.
type Dispatcher interface {
	Connected() bool
	Send(ctx context.Context, script string, timeout time.Duration, command *bridge.CommandMetadata, traceID string) bridge.ExecutionResponse
}

// Executor wraps a Dispatcher with observability and reply formatting.
type Executor struct {
	bridge Dispatcher
	logger *slog.Logger
}

// New builds an Executor over b.
func New(b Dispatcher, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{bridge: b, logger: logger.With("component", "executor")}
}

// Execute is the core API: dispatch script and return its formatted reply.
// traceID is generated (format req_<8 hex chars>) when empty.
func (e *Executor) Execute(ctx context.Context, script string, timeout time.Duration, command *bridge.CommandMetadata, traceID string) map[string]any {
	if traceID == "" {
		traceID = newTraceID()
	}

	commandType := "execute"
	if command != nil && command.Type != "" {
		commandType = command.Type
	}

	if !e.bridge.Connected() {
		e.logger.Info("dispatch rejected: not connected", "trace_id", traceID, "command_type", commandType)
		return map[string]any{
			"error":    fmt.Sprintf("ILLUSTRATOR_DISCONNECTED: %s", "no extension peer connected"),
			"trace_id": traceID,
		}
	}

	e.logger.Info("starting", "trace_id", traceID, "command_type", commandType)
	start := time.Now()

	resp := e.bridge.Send(ctx, script, timeout, command, traceID)
	elapsed := time.Since(start)

	outcome := "completed"
	if resp.IsError() {
		outcome = "error"
	}
	e.logger.Info(outcome, "trace_id", traceID, "command_type", commandType, "elapsed_ms", elapsed.Milliseconds())

	resp.TraceID = traceID
	resp.ElapsedMs = float64(elapsed.Microseconds()) / 1000.0

	return formatResponse(resp)
}

// newTraceID generates a trace ID in the form req_<8 hex chars>.
func newTraceID() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is effectively unrecoverable entropy
		// starvation; fall back to a fixed, clearly-synthetic id rather
		// than panic on the dispatch path.
		return "req_00000000"
	}
	return "req_" + hex.EncodeToString(buf)
}
