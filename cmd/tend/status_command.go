package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tend/internal/records"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show record store health and counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			summary, err := store.Summarize()
			if err != nil {
				return fmt.Errorf("summarize records: %w", err)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			for _, line := range renderSectionHeader("State", colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, renderStatusLine("State file", statusInfo, store.Path(), colorize))
			fmt.Fprintln(out, renderStatusLine("Log directory", statusInfo, cfg.Paths.LogDir, colorize))
			if skipped := store.SkippedLines(); skipped > 0 {
				fmt.Fprintln(out, renderStatusLine("Skipped lines", statusWarn,
					fmt.Sprintf("%d malformed lines ignored", skipped), colorize))
			} else {
				fmt.Fprintln(out, renderStatusLine("Skipped lines", statusOK, "none", colorize))
			}

			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("Records", colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, renderStatusLine("Total", statusInfo, fmt.Sprintf("%d", summary.Total), colorize))
			for _, status := range records.AllStatuses() {
				count := summary.Counts[status]
				if count == 0 {
					continue
				}
				fmt.Fprintln(out, renderStatusLine(string(status), recordStatusKind(status), fmt.Sprintf("%d", count), colorize))
			}
			return nil
		},
	}
}
