package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <email-id>",
		Short: "Show the full history of one record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			rec, err := store.Find(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("find record: %w", err)
			}
			if rec == nil {
				return fmt.Errorf("no record for email %q", args[0])
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			for _, line := range renderSectionHeader("Record "+rec.EmailID, colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, renderStatusLine("Status", recordStatusKind(rec.Status), string(rec.Status), colorize))
			fmt.Fprintln(out, renderStatusLine("Label", statusInfo, string(rec.Label), colorize))
			fmt.Fprintln(out, renderStatusLine("Confidence", statusInfo, fmt.Sprintf("%d", rec.Confidence), colorize))
			fmt.Fprintln(out, renderStatusLine("Sender", statusInfo, rec.Sender, colorize))
			fmt.Fprintln(out, renderStatusLine("Subject", statusInfo, rec.Subject, colorize))
			fmt.Fprintln(out, renderStatusLine("Conversation", statusInfo, rec.ConversationID, colorize))
			fmt.Fprintln(out, renderStatusLine("Received", statusInfo, rec.ReceivedAt.UTC().Format(time.RFC3339), colorize))
			fmt.Fprintln(out, renderStatusLine("Updated", statusInfo, rec.UpdatedAt.UTC().Format(time.RFC3339), colorize))
			fmt.Fprintln(out, renderStatusLine("Attempts", statusInfo, fmt.Sprintf("%d", rec.AttemptCount), colorize))
			if rec.Reason != "" {
				fmt.Fprintln(out, renderStatusLine("Reason", statusInfo, rec.Reason, colorize))
			}
			if rec.LastError != "" {
				fmt.Fprintln(out, renderStatusLine("Last error", statusError, rec.LastError, colorize))
			}

			if rec.Extracted != nil {
				fmt.Fprintln(out)
				for _, line := range renderSectionHeader("Change request", colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out, renderStatusLine("Target", statusInfo, rec.Extracted.TargetTitle, colorize))
				fmt.Fprintln(out, renderStatusLine("Kind", statusInfo, rec.Extracted.ChangeKind, colorize))
				fmt.Fprintln(out, renderStatusLine("Completeness", statusInfo, fmt.Sprintf("%d", rec.Extracted.Completeness), colorize))
				if rec.Extracted.NewContent != "" {
					fmt.Fprintln(out, renderStatusLine("Content", statusInfo, truncate(rec.Extracted.NewContent, 80), colorize))
				}
			}

			if rec.MatchedEntry != nil {
				fmt.Fprintln(out, renderStatusLine("Matched entry", statusOK,
					fmt.Sprintf("%s (%s)", rec.MatchedEntry.Name, rec.MatchedEntry.Ref), colorize))
			}

			if len(rec.ClarificationHistory) > 0 {
				fmt.Fprintln(out)
				for _, line := range renderSectionHeader("Clarifications", colorize) {
					fmt.Fprintln(out, line)
				}
				for i, exchange := range rec.ClarificationHistory {
					answered := yesNo(exchange.AnsweredAt != nil)
					fmt.Fprintln(out, renderStatusLine(fmt.Sprintf("Round %d", i+1), statusInfo,
						fmt.Sprintf("answered=%s %s", answered, truncate(exchange.Question, 60)), colorize))
				}
			}
			return nil
		},
	}
}
