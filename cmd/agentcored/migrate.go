package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/forgewright/agentcore/internal/config"
	"github.com/forgewright/agentcore/internal/sessionstore/sqlite"
)

func buildMigrateCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending session store migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			store, err := sqlite.Open(filepath.Join(cfg.Checkpoint.RootDir, "sessions.db"))
			if err != nil {
				return fmt.Errorf("migrate session store: %w", err)
			}
			defer store.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "session store migrated")
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "agentcore.yaml", "Path to YAML configuration file")
	return cmd
}
