package workflow

import (
	"context"
	"fmt"
	"strings"

	"tend/internal/logging"
	"tend/internal/records"
	"tend/internal/services"
)

// runUpdateStage applies the confirmed change to the catalog entry for every
// matched record.
func (m *Manager) runUpdateStage(ctx context.Context, stats *RunStats) error {
	pending, err := m.recordsInStatus(records.StatusMatched)
	if err != nil {
		return fmt.Errorf("load matched records: %w", err)
	}
	for i := range pending {
		rec := pending[i]
		recCtx := services.WithEmailID(ctx, rec.EmailID)
		outcome, err := m.applyUpdate(recCtx, rec)
		if err != nil {
			return err
		}
		m.recordOutcome(stats, outcome)
	}
	return nil
}

func (m *Manager) applyUpdate(ctx context.Context, rec records.Record) (Outcome, error) {
	logger := logging.WithContext(ctx, m.logger)

	if rec.MatchedEntry == nil || rec.Extracted == nil {
		reason := "matched record missing entry or extraction"
		if err := m.failRecord(ctx, rec.EmailID, reason); err != nil {
			return Outcome{}, err
		}
		return failed(reason), nil
	}

	payload := updatePayload(rec.Extracted)
	err := m.retry.Do(ctx, "apply catalog update", func(ctx context.Context) error {
		return m.catalogSvc.ApplyUpdate(ctx, rec.MatchedEntry.Ref, payload)
	})
	if err != nil {
		if notifyErr := m.notifier.NotifyError(ctx, err, "catalog update"); notifyErr != nil {
			logger.Warn("error notification failed", logging.Error(notifyErr))
		}
		reason := fmt.Sprintf("catalog update failed: %v", err)
		if failErr := m.failRecord(ctx, rec.EmailID, reason); failErr != nil {
			return Outcome{}, failErr
		}
		return failed(reason), nil
	}

	var snapshot records.Record
	if _, err := m.store.Update(rec.EmailID, func(r *records.Record) {
		r.UpdatePayload = payload
		r.Status = records.StatusCompletedSuccess
		snapshot = *r
	}); err != nil {
		return Outcome{}, fmt.Errorf("persist update result for %s: %w", rec.EmailID, err)
	}

	logger.Info("catalog entry updated",
		logging.String(logging.FieldEventType, "update_applied"),
		logging.String("entry", rec.MatchedEntry.Name),
		logging.String("ref", rec.MatchedEntry.Ref),
	)

	if err := m.dispatcher.SendSuccessNotification(ctx, &snapshot); err != nil {
		logger.Warn("success confirmation failed", logging.Error(err))
	}
	if err := m.markReadQuiet(ctx, rec.EmailID); err != nil {
		return Outcome{}, err
	}
	return completed("update applied"), nil
}

// updatePayload is the audit trail of exactly what was sent to the catalog.
func updatePayload(req *records.ChangeRequest) map[string]string {
	payload := map[string]string{
		"change_kind": req.ChangeKind,
		"new_content": req.NewContent,
	}
	if strings.TrimSpace(req.Requester) != "" {
		payload["requester"] = req.Requester
	}
	if strings.TrimSpace(req.Rationale) != "" {
		payload["rationale"] = req.Rationale
	}
	return payload
}

// runRespondStage sends the polite rejection for every dont_help record. The
// terminal status is persisted before the send so a failing dispatcher can
// never strand the record.
func (m *Manager) runRespondStage(ctx context.Context, stats *RunStats) error {
	pending, err := m.recordsInStatus(records.StatusDontHelpResponding)
	if err != nil {
		return fmt.Errorf("load rejection records: %w", err)
	}
	for i := range pending {
		rec := pending[i]
		recCtx := services.WithEmailID(ctx, rec.EmailID)
		logger := logging.WithContext(recCtx, m.logger)

		if _, err := m.store.Update(rec.EmailID, func(r *records.Record) {
			r.Status = records.StatusCompletedDontHelp
		}); err != nil {
			return fmt.Errorf("persist rejection for %s: %w", rec.EmailID, err)
		}
		if err := m.dispatcher.SendRejection(recCtx, &rec); err != nil {
			logger.Warn("rejection send failed", logging.Error(err))
			if notifyErr := m.notifier.NotifyError(recCtx, err, "rejection send"); notifyErr != nil {
				logger.Warn("error notification failed", logging.Error(notifyErr))
			}
		} else {
			logger.Info("rejection sent",
				logging.String(logging.FieldEventType, "rejection_sent"),
			)
		}
		if err := m.markReadQuiet(recCtx, rec.EmailID); err != nil {
			return err
		}
		m.recordOutcome(stats, completed("rejection recorded"))
	}
	return nil
}
