package main

import (
	"github.com/spf13/cobra"
)

func buildCancelCmd() *cobra.Command {
	var runID string
	cmd := &cobra.Command{
		Use:   "cancel <session-id>",
		Short: "Cancel a session's active run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client().CancelRun(cmd.Context(), args[0], runID)
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "run id (defaults to the session's active run)")
	return cmd
}
