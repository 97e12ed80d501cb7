// Package main provides the CLI entry point for the Illustrator dispatch bridge.
//
// The bridge sits between a controlling AI agent (speaking a tool-call
// protocol over stdin/stdout) and the Illustrator CEP extension (speaking
// WebSocket). It serializes tool calls into ExtendScript, dispatches each
// to the connected extension, and correlates asynchronous replies back to
// the originating caller.
//
// # Basic Usage
//
// Start the bridge:
//
//	illustrator-bridge serve --config bridge.yaml
//
// # Environment Variables
//
//   - ILLUSTRATOR_BRIDGE_WS_HOST: WebSocket listener host
//   - ILLUSTRATOR_BRIDGE_WS_PORT: WebSocket listener port
//   - ILLUSTRATOR_BRIDGE_TIMEOUT_SECONDS: default dispatch timeout
//   - ILLUSTRATOR_BRIDGE_LOG_LEVEL: log level
//   - ILLUSTRATOR_BRIDGE_LIBRARY_DIR: library manifest directory
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
//
// Example build command:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "illustrator-bridge",
		Short: "Illustrator dispatch bridge",
		Long: `illustrator-bridge dispatches scripted commands to a connected Adobe
Illustrator CEP extension over WebSocket and correlates replies back to a
controlling agent speaking a tool-call protocol over stdin/stdout.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(buildServeCmd())
	return rootCmd
}
