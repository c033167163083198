package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forgewright/agentcore/internal/gateway"
)

func client() *gateway.Client {
	return gateway.NewClient(serverAddr, authToken)
}

func buildSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage sessions",
	}
	cmd.AddCommand(buildSessionsListCmd(), buildSessionsCreateCmd(), buildSessionsGetCmd(), buildSessionsDeleteCmd())
	return cmd
}

func buildSessionsListCmd() *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions, err := client().ListSessions(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			return printJSON(cmd, sessions)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "max sessions to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "pagination offset")
	return cmd
}

func buildSessionsCreateCmd() *cobra.Command {
	var title string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := client().CreateSession(cmd.Context(), title)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "session title (required)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func buildSessionsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <session-id>",
		Short: "Show a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := client().GetSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, session)
		},
	}
}

func buildSessionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Soft-delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client().DeleteSession(cmd.Context(), args[0])
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
