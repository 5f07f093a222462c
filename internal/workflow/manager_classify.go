package workflow

import (
	"context"
	"fmt"

	"tend/internal/logging"
	"tend/internal/records"
	"tend/internal/services"
)

func (m *Manager) recordsInStatus(status records.Status) ([]records.Record, error) {
	all, err := m.store.ReadAll()
	if err != nil {
		return nil, err
	}
	var matched []records.Record
	for i := range all {
		if all[i].Status == status {
			matched = append(matched, all[i])
		}
	}
	return matched, nil
}

// runClassifyStage labels every new record. Any low-confidence verdict is
// downgraded to escalate, and unparseable model output becomes an escalate
// label with zero confidence so nothing slips through unclassified.
func (m *Manager) runClassifyStage(ctx context.Context, stats *RunStats) error {
	pending, err := m.recordsInStatus(records.StatusNew)
	if err != nil {
		return fmt.Errorf("load new records: %w", err)
	}
	for i := range pending {
		rec := pending[i]
		recCtx := services.WithEmailID(ctx, rec.EmailID)
		outcome, err := m.classifyRecord(recCtx, rec)
		if err != nil {
			return err
		}
		m.recordOutcome(stats, outcome)
	}
	return nil
}

func (m *Manager) classifyRecord(ctx context.Context, rec records.Record) (Outcome, error) {
	logger := logging.WithContext(ctx, m.logger)

	label := records.LabelEscalate
	confidence := 0
	reason := ""

	err := m.retry.Do(ctx, "classify email", func(ctx context.Context) error {
		result, classifyErr := m.classifier.Classify(ctx, rec.Sender, rec.Subject, rec.Body)
		if classifyErr != nil {
			return classifyErr
		}
		parsed, ok := records.ParseLabel(result.Label)
		if !ok {
			return services.Wrap(services.ErrParse, "workflow", "classify",
				fmt.Sprintf("unknown label %q", result.Label), nil)
		}
		label = parsed
		confidence = result.Confidence
		reason = result.Reason
		return nil
	})
	if err != nil {
		kind := services.ClassifyError(err)
		if kind == services.KindParse {
			// Safe default: the email still gets a human.
			label = records.LabelEscalate
			confidence = 0
			reason = "classification output unusable"
			logger.Warn("classification unusable, defaulting to escalate", logging.Error(err))
		} else {
			if notifyErr := m.notifier.NotifyError(ctx, err, "classification"); notifyErr != nil {
				logger.Warn("error notification failed", logging.Error(notifyErr))
			}
			if escErr := m.escalateRecord(ctx, rec.EmailID, fmt.Sprintf("classification failed: %v", err)); escErr != nil {
				return Outcome{}, escErr
			}
			return escalated("classification failed"), nil
		}
	}

	if label != records.LabelEscalate && confidence < m.cfg.Workflow.ConfidenceThreshold {
		logger.Info("downgrading low-confidence verdict",
			logging.String("label", string(label)),
			logging.Int("confidence", confidence),
			logging.Int("threshold", m.cfg.Workflow.ConfidenceThreshold),
		)
		label = records.LabelEscalate
		if reason == "" {
			reason = "classification confidence below threshold"
		} else {
			reason = fmt.Sprintf("low confidence (%d): %s", confidence, reason)
		}
	}

	found, err := m.store.Update(rec.EmailID, func(r *records.Record) {
		r.Label = label
		r.Confidence = confidence
		r.Reason = reason
		r.Status = records.StatusClassified
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("persist classification for %s: %w", rec.EmailID, err)
	}
	if !found {
		return skipped("record vanished"), nil
	}

	logger.Info("email classified",
		logging.String(logging.FieldEventType, "email_classified"),
		logging.String("label", string(label)),
		logging.Int("confidence", confidence),
	)
	return advanced(), nil
}

// runRouteStage moves classified records onto their label's path.
func (m *Manager) runRouteStage(ctx context.Context, stats *RunStats) error {
	pending, err := m.recordsInStatus(records.StatusClassified)
	if err != nil {
		return fmt.Errorf("load classified records: %w", err)
	}
	for i := range pending {
		rec := pending[i]
		recCtx := services.WithEmailID(ctx, rec.EmailID)

		switch rec.Label {
		case records.LabelHelp:
			if _, err := m.store.Update(rec.EmailID, func(r *records.Record) {
				r.Status = records.StatusInProgress
			}); err != nil {
				return fmt.Errorf("persist routing for %s: %w", rec.EmailID, err)
			}
			m.recordOutcome(stats, advanced())
		case records.LabelDontHelp:
			if _, err := m.store.Update(rec.EmailID, func(r *records.Record) {
				r.Status = records.StatusDontHelpResponding
			}); err != nil {
				return fmt.Errorf("persist routing for %s: %w", rec.EmailID, err)
			}
			m.recordOutcome(stats, advanced())
		default:
			reason := rec.Reason
			if reason == "" {
				reason = "classifier requested human review"
			}
			if err := m.escalateRecord(recCtx, rec.EmailID, reason); err != nil {
				return err
			}
			m.recordOutcome(stats, escalated(reason))
		}
	}
	return nil
}
