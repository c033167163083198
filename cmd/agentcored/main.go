// Package main is the CLI entry point for agentcored, the session-runtime
// server: it loads configuration, wires the checkpoint store, run manager,
// tool executor, and LLM providers, and serves the Control API until a
// shutdown signal arrives.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during release builds.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "agentcored",
		Short: "agentcored - multi-channel AI coding agent session runtime",
		Long: `agentcored runs the session-runtime core: it drives one goroutine per
active session (the session actor), checkpoints progress to disk, and
exposes a Control API that chat gateways, agentctl, and agentcron all
speak to drive runs, inject messages, and resolve tool approvals.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(buildServeCmd(), buildMigrateCmd())
	return rootCmd
}
