package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func buildToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect and resolve pending tool calls",
	}
	cmd.AddCommand(buildToolsPendingCmd(), buildToolsResolveCmd())
	return cmd
}

func buildToolsPendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending <session-id>",
		Short: "List tool calls awaiting a decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pending, err := client().PendingTools(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, pending)
		},
	}
}

func buildToolsResolveCmd() *cobra.Command {
	var action, result string
	cmd := &cobra.Command{
		Use:   "resolve <session-id> <tool-call-id>",
		Short: "Resolve a pending tool call",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, toolCallID := args[0], args[1]
			if action != "accept" && action != "reject" && action != "custom_result" {
				return fmt.Errorf("invalid --action %q: must be accept, reject, or custom_result", action)
			}
			return client().ResolveTool(cmd.Context(), sessionID, toolCallID, action, result)
		},
	}
	cmd.Flags().StringVar(&action, "action", "accept", "accept, reject, or custom_result")
	cmd.Flags().StringVar(&result, "result", "", "replacement result when --action=custom_result")
	return cmd
}
