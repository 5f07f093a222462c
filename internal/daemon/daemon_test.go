package daemon_test

import (
	"context"
	"testing"

	"tend/internal/daemon"
	"tend/internal/logging"
	"tend/internal/notifications"
	"tend/internal/records"
	"tend/internal/testsupport"
	"tend/internal/workflow"
)

func newDaemon(t *testing.T) (*daemon.Daemon, *records.Store) {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	notifier := notifications.NewService(cfg)
	manager := workflow.NewManager(cfg, store, logging.NewNop(), notifier,
		stubClassifier{}, stubExtractor{}, stubCatalog{}, stubMailbox{}, stubDispatcher{})

	d, err := daemon.New(cfg, store, logging.NewNop(), manager)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d, store
}

func TestStartStopAndStatus(t *testing.T) {
	d, _ := newDaemon(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(d.Stop)

	status, err := d.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running {
		t.Error("expected running status")
	}
	if status.StateFilePath == "" || status.LockFilePath == "" {
		t.Errorf("missing paths in status: %+v", status)
	}

	if err := d.Start(ctx); err == nil {
		t.Fatal("second Start must fail while running")
	}

	d.Stop()
	status, err = d.Status()
	if err != nil {
		t.Fatalf("Status after stop: %v", err)
	}
	if status.Running {
		t.Error("expected stopped status")
	}
}

func TestStatusCountsRecords(t *testing.T) {
	d, store := newDaemon(t)

	seed := records.New("m1", "conv-m1", "a@example.com", "s", "b", timeNow())
	seed.Status = records.StatusCompletedSuccess
	testsupport.SeedRecords(t, store, *seed)

	status, err := d.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Records.Total != 1 {
		t.Errorf("total records = %d, want 1", status.Records.Total)
	}
	if status.Records.Counts[records.StatusCompletedSuccess] != 1 {
		t.Errorf("counts = %v", status.Records.Counts)
	}
}
