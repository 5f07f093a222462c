package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"tend/internal/config"
	"tend/internal/daemon"
	"tend/internal/logging"
	"tend/internal/notifications"
	"tend/internal/records"
	"tend/internal/services/llm"
	"tend/internal/services/mail"
	"tend/internal/services/search"
	"tend/internal/workflow"
)

func main() {
	configPath := flag.String("config", "", "configuration file path")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("ensure directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	store, err := records.Open(cfg, logger)
	if err != nil {
		log.Fatalf("open record store: %v", err)
	}
	if _, err := store.ReadAll(); err != nil {
		quarantine, recoverErr := store.RecoverFromCorruption()
		if recoverErr != nil {
			log.Fatalf("recover state file: %v (original error: %v)", recoverErr, err)
		}
		logger.Warn("state file quarantined, starting fresh",
			logging.String("quarantine", quarantine),
			logging.Error(err),
		)
	}

	notifier := notifications.NewService(cfg)
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

	manager := workflow.NewManager(cfg, store, logger, notifier,
		llmClient, llmClient, catalogClient, mailClient, dispatcher)

	d, err := daemon.New(cfg, store, logger, manager)
	if err != nil {
		log.Fatalf("create daemon: %v", err)
	}

	if err := d.Start(ctx); err != nil {
		log.Fatalf("start daemon: %v", err)
	}

	<-ctx.Done()
	logger.Info("tendd shutting down")
	d.Stop()
}
