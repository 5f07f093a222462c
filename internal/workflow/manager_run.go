package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"tend/internal/logging"
	"tend/internal/services"
)

// ErrMassEmail aborts a pass when the unread backlog exceeds the configured
// threshold. Nothing is processed until a human clears the backlog.
var ErrMassEmail = errors.New("mass email threshold exceeded")

// RunStats summarizes one triage pass.
type RunStats struct {
	RunID          string
	StartedAt      time.Time
	Duration       time.Duration
	Fetched        int
	Processed      int
	Completed      int
	Clarifications int
	Escalated      int
	Failed         int
	SweptStale     int
	Aborted        bool
}

// Start begins background polling. Each tick runs one full triage pass.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	m.mu.Unlock()

	go m.pollLoop(runCtx)
	return nil
}

// Stop terminates background processing and waits for the current pass to
// finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) pollLoop(ctx context.Context) {
	defer m.wg.Done()
	for {
		if _, err := m.RunOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.logger.Error("triage pass failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "pass_failed"),
			)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.cfg.PollInterval()):
		}
	}
}

// RunOnce executes a single triage pass: sweep stale records, fetch new mail,
// then walk every actionable record through the pipeline in stage order.
func (m *Manager) RunOnce(ctx context.Context) (*RunStats, error) {
	runID := uuid.NewString()
	ctx = services.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, m.logger)

	stats := &RunStats{RunID: runID, StartedAt: m.now()}
	defer func() {
		stats.Duration = m.now().Sub(stats.StartedAt)
		m.setLastRun(stats)
	}()

	logger.Info("triage pass started", logging.String(logging.FieldEventType, "pass_start"))

	swept, err := m.sweepStale(ctx)
	if err != nil {
		m.setLastError(err)
		return stats, err
	}
	stats.SweptStale = swept

	fetched, err := m.fetchNewMail(ctx)
	if err != nil {
		if errors.Is(err, ErrMassEmail) {
			stats.Aborted = true
			logger.Warn("triage pass aborted",
				logging.String(logging.FieldEventType, "pass_aborted"),
				logging.String("reason", "mass_email"),
			)
			return stats, nil
		}
		m.setLastError(err)
		return stats, err
	}
	stats.Fetched = fetched

	pending, err := m.pendingCount()
	if err != nil {
		m.setLastError(err)
		return stats, err
	}
	if pending == 0 {
		logger.Debug("nothing to process", logging.String(logging.FieldEventType, "pass_idle"))
		return stats, nil
	}

	if err := m.notifier.NotifyRunStarted(ctx, pending); err != nil {
		logger.Warn("run started notification failed", logging.Error(err))
	}

	// Stage order matters: a record created this pass flows all the way to a
	// terminal status before the pass ends.
	stages := []struct {
		name string
		run  func(context.Context, *RunStats) error
	}{
		{"classify", m.runClassifyStage},
		{"route", m.runRouteStage},
		{"extract", m.runExtractStage},
		{"evaluate", m.runEvaluateStage},
		{"update", m.runUpdateStage},
		{"respond", m.runRespondStage},
	}
	for _, stage := range stages {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stageCtx := services.WithStage(ctx, stage.name)
		if err := stage.run(stageCtx, stats); err != nil {
			m.setLastError(err)
			return stats, err
		}
	}

	logger.Info("triage pass completed",
		logging.String(logging.FieldEventType, "pass_complete"),
		logging.Int("fetched", stats.Fetched),
		logging.Int("processed", stats.Processed),
		logging.Int("completed", stats.Completed),
		logging.Int("escalated", stats.Escalated),
		logging.Int("failed", stats.Failed),
	)
	if err := m.notifier.NotifyRunCompleted(ctx, stats.Processed, stats.Failed, m.now().Sub(stats.StartedAt)); err != nil {
		logger.Warn("run completed notification failed", logging.Error(err))
	}
	return stats, nil
}

func (m *Manager) pendingCount() (int, error) {
	recs, err := m.store.ReadAll()
	if err != nil {
		return 0, err
	}
	pending := 0
	for i := range recs {
		if !recs[i].Status.IsTerminal() {
			pending++
		}
	}
	return pending, nil
}

func (m *Manager) recordOutcome(stats *RunStats, outcome Outcome) {
	if outcome.Kind == OutcomeSkipped {
		return
	}
	stats.Processed++
	switch outcome.Kind {
	case OutcomeCompleted:
		stats.Completed++
	case OutcomeNeedsClarification:
		stats.Clarifications++
	case OutcomeEscalated:
		stats.Escalated++
	case OutcomeFailed:
		stats.Failed++
	}
}
