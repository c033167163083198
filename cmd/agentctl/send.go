package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func buildSendCmd() *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "send <session-id> <message>",
		Short: "Send a message to a session and optionally wait for the reply",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, message := args[0], args[1]
			runID, err := client().SendMessage(cmd.Context(), sessionID, message)
			if err != nil {
				return err
			}
			if !wait {
				fmt.Fprintln(cmd.OutOrStdout(), runID)
				return nil
			}
			reply, err := client().AwaitReply(cmd.Context(), sessionID, runID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply)
			return nil
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", true, "wait for and print the run's reply")
	return cmd
}
