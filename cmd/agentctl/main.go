// Package main is the CLI entry point for agentctl, a thin terminal client
// for agentcored's Control API: create sessions, send messages, tail a
// session's event stream, and resolve pending tool approvals.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"

	serverAddr string
	authToken  string
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "agentctl",
		Short:        "agentctl - command-line client for the agentcore Control API",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "http://localhost:8080", "agentcored Control API base URL")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", os.Getenv("AGENTCTL_TOKEN"), "bearer token, or set AGENTCTL_TOKEN")

	rootCmd.AddCommand(
		buildSessionsCmd(),
		buildSendCmd(),
		buildTailCmd(),
		buildToolsCmd(),
		buildCancelCmd(),
	)
	return rootCmd
}
