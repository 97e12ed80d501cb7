package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/illustrator-bridge/core/internal/bridge"
	"github.com/illustrator-bridge/core/internal/config"
	"github.com/illustrator-bridge/core/internal/executor"
	"github.com/illustrator-bridge/core/internal/observability"
	"github.com/illustrator-bridge/core/internal/runtime"
	"github.com/spf13/cobra"
)

// shutdownGrace bounds how long serve waits for the runtime context to
// drain in-flight dispatches once a shutdown signal arrives.
const shutdownGrace = 30 * time.Second

// buildServeCmd creates the "serve" command that starts the dispatch bridge.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the dispatch bridge",
		Long: `Start the dispatch bridge.

The bridge will:
1. Load configuration from the specified file
2. Start the WebSocket listener and wait for the Illustrator extension to connect
3. Read line-delimited JSON tool calls from stdin and dispatch them
4. Write each call's ExecutionResponse as a JSON line to stdout

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with default config
  illustrator-bridge serve

  # Start with custom config
  illustrator-bridge serve --config /etc/illustrator-bridge/production.yaml

  # Start with debug logging
  illustrator-bridge serve --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "bridge.yaml", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging (verbose output)")

	return cmd
}

// dispatchRequest is one line of the stdio tool-call protocol.
type dispatchRequest struct {
	Script  string                  `json:"script"`
	Timeout float64                 `json:"timeout,omitempty"`
	Command *bridge.CommandMetadata `json:"command,omitempty"`
	TraceID string                  `json:"trace_id,omitempty"`
}

// runServe implements the serve command logic: configuration loading,
// runtime context startup, the stdio dispatch loop, and graceful shutdown.
func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logLevel := cfg.LogLevel
	if debug {
		logLevel = "DEBUG"
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: observability.LogLevelFromString(logLevel),
	})))

	slog.Info("starting illustrator-bridge",
		"version", version,
		"commit", commit,
		"config", configPath,
		"ws_host", cfg.WSHost,
		"ws_port", cfg.WSPort,
	)

	metrics := observability.NewMetrics()
	defaultTimeout := cfg.DefaultTimeout()
	rtx := runtime.New(bridge.Config{
		Host:           cfg.WSHost,
		Port:           cfg.WSPort,
		DefaultTimeout: defaultTimeout,
	}, slog.Default(), metrics)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rtx.Startup(ctx); err != nil {
		return fmt.Errorf("failed to start runtime context: %w", err)
	}

	slog.Info("illustrator-bridge started, waiting for extension connection and stdio tool calls")

	loopErrCh := make(chan error, 1)
	go func() {
		loopErrCh <- runStdioLoop(ctx, rtx, defaultTimeout, os.Stdin, os.Stdout)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, initiating graceful shutdown")
	case err := <-loopErrCh:
		if err != nil && !errors.Is(err, io.EOF) {
			slog.Error("stdio loop failed", "error", err)
		}
		slog.Info("stdin closed, initiating graceful shutdown")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()

	if err := rtx.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	slog.Info("illustrator-bridge stopped gracefully")
	return nil
}

// runStdioLoop reads line-delimited JSON dispatch requests from r and
// writes each one's formatted ExecutionResponse as a JSON line to w. It is
// pure passthrough: no script validation or interpretation happens here.
func runStdioLoop(ctx context.Context, rtx *runtime.Context, defaultTimeout time.Duration, r io.Reader, w io.Writer) error {
	ex, err := rtx.GetExecutor(ctx)
	if err != nil {
		return fmt.Errorf("get executor: %w", err)
	}

	return runStdioLoopWithExecutor(ctx, ex, defaultTimeout, r, w)
}

// runStdioLoopWithExecutor is the executor-level core of runStdioLoop,
// separated so it can be exercised with a fake dispatcher in tests.
func runStdioLoopWithExecutor(ctx context.Context, ex *executor.Executor, defaultTimeout time.Duration, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req dispatchRequest
		if err := json.Unmarshal(line, &req); err != nil {
			writeLine(w, map[string]any{"error": fmt.Sprintf("invalid request: %v", err)})
			continue
		}

		timeout := time.Duration(req.Timeout * float64(time.Second))
		if timeout <= 0 {
			timeout = defaultTimeout
		}

		result := ex.Execute(ctx, req.Script, timeout, req.Command, req.TraceID)
		writeLine(w, result)
	}

	return scanner.Err()
}

func writeLine(w io.Writer, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal response", "error", err)
		return
	}
	payload = append(payload, '\n')
	if _, err := w.Write(payload); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
