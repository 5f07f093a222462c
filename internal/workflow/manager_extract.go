package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"tend/internal/catalog"
	"tend/internal/logging"
	"tend/internal/records"
	"tend/internal/services"
	"tend/internal/services/llm"
)

// runExtractStage pulls a structured change request out of every in-progress
// email.
func (m *Manager) runExtractStage(ctx context.Context, stats *RunStats) error {
	pending, err := m.recordsInStatus(records.StatusInProgress)
	if err != nil {
		return fmt.Errorf("load in-progress records: %w", err)
	}
	for i := range pending {
		rec := pending[i]
		recCtx := services.WithEmailID(ctx, rec.EmailID)
		outcome, err := m.extractRecord(recCtx, rec)
		if err != nil {
			return err
		}
		m.recordOutcome(stats, outcome)
	}
	return nil
}

func (m *Manager) extractRecord(ctx context.Context, rec records.Record) (Outcome, error) {
	logger := logging.WithContext(ctx, m.logger)

	extraction, err := m.extractWithRetry(ctx, rec)
	if err != nil {
		if notifyErr := m.notifier.NotifyError(ctx, err, "extraction"); notifyErr != nil {
			logger.Warn("error notification failed", logging.Error(notifyErr))
		}
		if escErr := m.escalateRecord(ctx, rec.EmailID, fmt.Sprintf("extraction failed: %v", err)); escErr != nil {
			return Outcome{}, escErr
		}
		return escalated("extraction failed"), nil
	}

	if _, err := m.store.Update(rec.EmailID, func(r *records.Record) {
		r.Extracted = changeRequestFrom(extraction)
		r.Status = records.StatusDataExtracted
	}); err != nil {
		return Outcome{}, fmt.Errorf("persist extraction for %s: %w", rec.EmailID, err)
	}

	logger.Info("change request extracted",
		logging.String(logging.FieldEventType, "data_extracted"),
		logging.String("target", extraction.TargetTitle),
		logging.Int("completeness", extraction.Completeness),
	)
	return advanced(), nil
}

func (m *Manager) extractWithRetry(ctx context.Context, rec records.Record) (llm.Extraction, error) {
	var extraction llm.Extraction
	err := m.retry.Do(ctx, "extract change request", func(ctx context.Context) error {
		var extractErr error
		extraction, extractErr = m.extractor.Extract(ctx, rec.Sender, rec.Subject, rec.Body)
		return extractErr
	})
	return extraction, err
}

func changeRequestFrom(extraction llm.Extraction) *records.ChangeRequest {
	return &records.ChangeRequest{
		TargetTitle:  extraction.TargetTitle,
		ChangeKind:   extraction.ChangeKind,
		NewContent:   extraction.NewContent,
		Requester:    extraction.Requester,
		Rationale:    extraction.Rationale,
		Completeness: extraction.Completeness,
	}
}

// runEvaluateStage decides what happens to each extracted change request:
// ask the requester for more detail, hand it to a human, or match it against
// the catalog.
func (m *Manager) runEvaluateStage(ctx context.Context, stats *RunStats) error {
	pending, err := m.recordsInStatus(records.StatusDataExtracted)
	if err != nil {
		return fmt.Errorf("load extracted records: %w", err)
	}
	for i := range pending {
		rec := pending[i]
		recCtx := services.WithEmailID(ctx, rec.EmailID)
		outcome, err := m.evaluateRecord(recCtx, rec)
		if err != nil {
			return err
		}
		m.recordOutcome(stats, outcome)
	}
	return nil
}

func (m *Manager) evaluateRecord(ctx context.Context, rec records.Record) (Outcome, error) {
	logger := logging.WithContext(ctx, m.logger)

	// Records returning from clarification carry the merged reply but no
	// extraction yet; redo it against the augmented body.
	if rec.Extracted == nil {
		extraction, err := m.extractWithRetry(ctx, rec)
		if err != nil {
			if escErr := m.escalateRecord(ctx, rec.EmailID, fmt.Sprintf("re-extraction failed: %v", err)); escErr != nil {
				return Outcome{}, escErr
			}
			return escalated("re-extraction failed"), nil
		}
		rec.Extracted = changeRequestFrom(extraction)
		if _, err := m.store.Update(rec.EmailID, func(r *records.Record) {
			r.Extracted = rec.Extracted
		}); err != nil {
			return Outcome{}, fmt.Errorf("persist re-extraction for %s: %w", rec.EmailID, err)
		}
	}

	if rec.Extracted.Completeness < m.cfg.Workflow.CompletenessThreshold {
		question := buildClarificationQuestion(rec.Extracted)
		return m.requestClarification(ctx, rec, "incomplete_data", question)
	}

	report, err := m.detectConflicts(ctx, rec)
	if err != nil {
		if escErr := m.escalateRecord(ctx, rec.EmailID, fmt.Sprintf("conflict review failed: %v", err)); escErr != nil {
			return Outcome{}, escErr
		}
		return escalated("conflict review failed"), nil
	}
	if report.HasConflicts && !report.SafeToProceed {
		question := "Your request appears to contain conflicting instructions:\n- " +
			strings.Join(report.Details, "\n- ") +
			"\nPlease confirm which change you want."
		return m.requestClarification(ctx, rec, "conflicts_detected", question)
	}

	return m.matchRecord(ctx, rec, logger)
}

func (m *Manager) detectConflicts(ctx context.Context, rec records.Record) (llm.ConflictReport, error) {
	extraction := llm.Extraction{
		TargetTitle:  rec.Extracted.TargetTitle,
		ChangeKind:   rec.Extracted.ChangeKind,
		NewContent:   rec.Extracted.NewContent,
		Requester:    rec.Extracted.Requester,
		Rationale:    rec.Extracted.Rationale,
		Completeness: rec.Extracted.Completeness,
	}
	var report llm.ConflictReport
	err := m.retry.Do(ctx, "review conflicts", func(ctx context.Context) error {
		var reviewErr error
		report, reviewErr = m.extractor.DetectConflicts(ctx, extraction, rec.Body)
		return reviewErr
	})
	return report, err
}

// requestClarification asks the requester a question and parks the record.
// The round cap keeps an unresponsive or circular exchange from looping
// forever.
func (m *Manager) requestClarification(ctx context.Context, rec records.Record, reason, question string) (Outcome, error) {
	logger := logging.WithContext(ctx, m.logger)

	if rec.ClarificationAttempts >= m.cfg.Workflow.MaxClarificationRounds {
		escReason := fmt.Sprintf("clarification rounds exhausted (%d): %s", rec.ClarificationAttempts, reason)
		if err := m.escalateRecord(ctx, rec.EmailID, escReason); err != nil {
			return Outcome{}, err
		}
		return escalated(escReason), nil
	}

	var snapshot records.Record
	askedAt := m.now()
	found, err := m.store.Update(rec.EmailID, func(r *records.Record) {
		r.ClarificationHistory = append(r.ClarificationHistory, records.ClarificationExchange{
			ID:       uuid.NewString(),
			Question: question,
			AskedAt:  askedAt,
		})
		r.ClarificationAttempts++
		r.Status = records.StatusAwaitingClarification
		snapshot = *r
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("persist clarification for %s: %w", rec.EmailID, err)
	}
	if !found {
		return skipped("record vanished"), nil
	}

	logger.Info("clarification requested",
		logging.String(logging.FieldEventType, "clarification_requested"),
		logging.String("reason", reason),
		logging.Int("round", snapshot.ClarificationAttempts),
	)

	if err := m.dispatcher.SendClarificationRequest(ctx, &snapshot, question); err != nil {
		// The record stays parked; the staleness sweep escalates it if the
		// question never reaches the requester.
		logger.Warn("clarification send failed", logging.Error(err))
		if notifyErr := m.notifier.NotifyError(ctx, err, "clarification send"); notifyErr != nil {
			logger.Warn("error notification failed", logging.Error(notifyErr))
		}
	}
	if err := m.markReadQuiet(ctx, rec.EmailID); err != nil {
		return Outcome{}, err
	}
	return clarification(reason), nil
}

func buildClarificationQuestion(req *records.ChangeRequest) string {
	var missing []string
	if strings.TrimSpace(req.TargetTitle) == "" {
		missing = append(missing, "which catalog entry you want changed")
	}
	if strings.TrimSpace(req.NewContent) == "" {
		missing = append(missing, "the exact content the entry should have after the change")
	}
	if strings.TrimSpace(req.ChangeKind) == "" {
		missing = append(missing, "whether this is an addition, an update, or a removal")
	}
	if len(missing) == 0 {
		missing = append(missing, "more detail about the change you are requesting")
	}
	return "To proceed we still need:\n- " + strings.Join(missing, "\n- ")
}

// matchRecord resolves the change request against catalog candidates. Only an
// exact or high-confidence match proceeds to the update; everything weaker
// goes to a human.
func (m *Manager) matchRecord(ctx context.Context, rec records.Record, logger *slog.Logger) (Outcome, error) {
	var candidates []catalog.Candidate
	err := m.retry.Do(ctx, "search catalog", func(ctx context.Context) error {
		var searchErr error
		candidates, searchErr = m.catalogSvc.FindCandidates(ctx, rec.Extracted.TargetTitle)
		return searchErr
	})
	if err != nil {
		if escErr := m.escalateRecord(ctx, rec.EmailID, fmt.Sprintf("catalog search failed: %v", err)); escErr != nil {
			return Outcome{}, escErr
		}
		return escalated("catalog search failed"), nil
	}

	result := catalog.Match(rec.Extracted.TargetTitle, candidates)
	logger.Info("catalog match evaluated",
		logging.String(logging.FieldEventType, "catalog_matched"),
		logging.String("kind", string(result.Kind)),
		logging.Float64("score", result.Score),
	)

	switch {
	case catalog.ShouldProceed(result.Kind):
		if _, err := m.store.Update(rec.EmailID, func(r *records.Record) {
			r.MatchedEntry = &records.CatalogRef{Name: result.Entry.Name, Ref: result.Entry.Ref}
			r.Status = records.StatusMatched
		}); err != nil {
			return Outcome{}, fmt.Errorf("persist match for %s: %w", rec.EmailID, err)
		}
		return advanced(), nil
	case result.Kind == catalog.MatchAmbig:
		reason := fmt.Sprintf("ambiguous match for %q", rec.Extracted.TargetTitle)
		if err := m.escalateRecord(ctx, rec.EmailID, reason); err != nil {
			return Outcome{}, err
		}
		return escalated(reason), nil
	case result.Kind == catalog.MatchMedium:
		reason := fmt.Sprintf("medium-confidence match for %q needs human review", rec.Extracted.TargetTitle)
		if err := m.escalateRecord(ctx, rec.EmailID, reason); err != nil {
			return Outcome{}, err
		}
		return escalated(reason), nil
	default:
		reason := fmt.Sprintf("no safe catalog match for %q", rec.Extracted.TargetTitle)
		if err := m.failRecord(ctx, rec.EmailID, reason); err != nil {
			return Outcome{}, err
		}
		return failed(reason), nil
	}
}
