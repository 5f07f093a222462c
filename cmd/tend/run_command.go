package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tend/internal/logging"
	"tend/internal/notifications"
	"tend/internal/records"
	"tend/internal/services/llm"
	"tend/internal/services/mail"
	"tend/internal/services/search"
	"tend/internal/workflow"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Execute a single triage pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			store, err := records.Open(cfg, logger)
			if err != nil {
				return fmt.Errorf("open record store: %w", err)
			}

			llmClient := llm.NewClient(llm.Config{
				APIKey:         cfg.LLM.APIKey,
				BaseURL:        cfg.LLM.BaseURL,
				Model:          cfg.LLM.Model,
				Referer:        cfg.LLM.Referer,
				Title:          cfg.LLM.Title,
				TimeoutSeconds: cfg.LLM.TimeoutSeconds,
			})
			mailClient := mail.NewClient(cfg.Mailbox)
			dispatcher := mail.NewDispatcher(mailClient, cfg.Mailbox.EscalationAddress, logger)
			catalogClient := search.NewClient(cfg.Catalog)
			notifier := notifications.NewService(cfg)

			manager := workflow.NewManager(cfg, store, logger, notifier,
				llmClient, llmClient, catalogClient, mailClient, dispatcher)

			stats, err := manager.RunOnce(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if stats.Aborted {
				fmt.Fprintln(out, "Pass aborted: unread backlog exceeds the mass email threshold")
				return nil
			}
			fmt.Fprintf(out, "Pass %s finished in %s\n", stats.RunID, stats.Duration.Round(time.Millisecond))
			fmt.Fprintf(out, "  fetched: %d  processed: %d  completed: %d  clarifications: %d  escalated: %d  failed: %d\n",
				stats.Fetched, stats.Processed, stats.Completed, stats.Clarifications, stats.Escalated, stats.Failed)
			if stats.SweptStale > 0 {
				fmt.Fprintf(out, "  stale records escalated: %d\n", stats.SweptStale)
			}
			return nil
		},
	}
}
