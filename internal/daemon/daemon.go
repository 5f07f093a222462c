package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"tend/internal/config"
	"tend/internal/logging"
	"tend/internal/records"
	"tend/internal/workflow"
)

// Daemon coordinates background processing and enforces single-instance
// execution via a lock file.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *records.Store
	workflow *workflow.Manager

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	StateFilePath string
	LockFilePath  string
	SkippedLines  int
	Records       records.Summary
	LastRun       *workflow.RunStats
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *records.Store, logger *slog.Logger, wf *workflow.Manager) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, logger, and workflow manager")
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "tendd.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logger.With(logging.String(logging.FieldComponent, "daemon")),
		store:    store,
		workflow: wf,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and launches the workflow manager.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another tend daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	if err := d.workflow.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		d.cancel = nil
		return fmt.Errorf("start workflow: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("tend daemon started",
		logging.String("lock", d.lockPath),
		logging.String("state_file", d.store.Path()),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("tend daemon stopped")
}

// Status reports the daemon's runtime state and a record summary.
func (d *Daemon) Status() (Status, error) {
	summary, err := d.store.Summarize()
	if err != nil {
		return Status{}, fmt.Errorf("summarize records: %w", err)
	}
	return Status{
		Running:       d.running.Load(),
		StateFilePath: d.store.Path(),
		LockFilePath:  d.lockPath,
		SkippedLines:  d.store.SkippedLines(),
		Records:       summary,
		LastRun:       d.workflow.LastRun(),
	}, nil
}

// RunOnce executes a single triage pass outside the polling loop.
func (d *Daemon) RunOnce(ctx context.Context) (*workflow.RunStats, error) {
	return d.workflow.RunOnce(ctx)
}
