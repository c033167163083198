// Package main is agentcron, a standalone daemon that wakes agent sessions
// on a schedule by POSTing to agentcored's Control API. It holds no
// session-runtime state itself — it is an external collaborator of the
// Control API, exactly like a chat gateway, just triggered by a clock
// instead of a human.
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
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var configPath string
	rootCmd := &cobra.Command{
		Use:          "agentcron",
		Short:        "agentcron - schedules recurring agent runs against the Control API",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), configPath)
		},
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "agentcron.yaml", "path to the trigger config file")
	return rootCmd
}
