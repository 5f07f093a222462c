package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tend/internal/records"
)

func newRecordsCommand(ctx *commandContext) *cobra.Command {
	var statusFlag string

	cmd := &cobra.Command{
		Use:   "records",
		Short: "List tracked emails",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			recs, err := store.ReadAll()
			if err != nil {
				return fmt.Errorf("read records: %w", err)
			}

			var filter records.Status
			if trimmed := strings.TrimSpace(statusFlag); trimmed != "" {
				parsed, ok := records.ParseStatus(trimmed)
				if !ok {
					return fmt.Errorf("unknown status %q", trimmed)
				}
				filter = parsed
			}

			rows := make([][]string, 0, len(recs))
			for i := range recs {
				rec := recs[i]
				if filter != "" && rec.Status != filter {
					continue
				}
				rows = append(rows, recordRow(rec))
			}

			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, "No records found")
				return nil
			}
			headers := []string{"EMAIL ID", "STATUS", "LABEL", "CONF", "SENDER", "SUBJECT", "UPDATED"}
			fmt.Fprintln(out, renderTable(headers, rows, 3))
			return nil
		},
	}

	cmd.Flags().StringVarP(&statusFlag, "status", "s", "", "Filter by record status")
	return cmd
}

func recordRow(rec records.Record) []string {
	return []string{
		rec.EmailID,
		string(rec.Status),
		string(rec.Label),
		fmt.Sprintf("%d", rec.Confidence),
		rec.Sender,
		truncate(rec.Subject, 48),
		rec.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	if limit <= 3 || len(value) <= limit {
		return value
	}
	return value[:limit-3] + "..."
}
