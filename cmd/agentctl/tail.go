package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/forgewright/agentcore/internal/eventbus"
)

func buildTailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail <session-id>",
		Short: "Tail a session's event stream over WebSocket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID := args[0]
			enc := json.NewEncoder(cmd.OutOrStdout())
			return client().TailWS(cmd.Context(), sessionID, func(ev eventbus.Event) {
				_ = enc.Encode(ev)
			})
		},
	}
	return cmd
}
