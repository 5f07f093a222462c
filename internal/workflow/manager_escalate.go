package workflow

import (
	"context"
	"fmt"

	"tend/internal/logging"
	"tend/internal/records"
)

// escalateRecord moves a record to the escalated terminal status, persists it,
// then best-effort forwards the email and pushes a notification. Persistence
// comes first so a dispatch failure never loses the decision.
func (m *Manager) escalateRecord(ctx context.Context, emailID, reason string) error {
	var snapshot records.Record
	found, err := m.store.Update(emailID, func(rec *records.Record) {
		rec.SetEscalated(reason)
		snapshot = *rec
	})
	if err != nil {
		return fmt.Errorf("persist escalation for %s: %w", emailID, err)
	}
	if !found {
		return fmt.Errorf("escalate unknown record %s", emailID)
	}

	logger := logging.WithContext(ctx, m.logger)
	logger.Info("record escalated",
		logging.String(logging.FieldEmailID, emailID),
		logging.String(logging.FieldEventType, "record_escalated"),
		logging.String("reason", reason),
	)

	if err := m.dispatcher.SendEscalation(ctx, &snapshot, reason); err != nil {
		logger.Warn("escalation forward failed",
			logging.String(logging.FieldEmailID, emailID),
			logging.Error(err),
		)
	}
	if err := m.mailbox.MarkRead(ctx, emailID); err != nil {
		logger.Warn("mark read after escalation failed",
			logging.String(logging.FieldEmailID, emailID),
			logging.Error(err),
		)
	}
	if err := m.notifier.NotifyEscalation(ctx, snapshot.Subject, reason); err != nil {
		logger.Warn("escalation notification failed", logging.Error(err))
	}
	return nil
}

// failRecord moves a record to the failed terminal status with its error
// message preserved for the audit trail.
func (m *Manager) failRecord(ctx context.Context, emailID, message string) error {
	found, err := m.store.Update(emailID, func(rec *records.Record) {
		rec.SetFailed(message)
	})
	if err != nil {
		return fmt.Errorf("persist failure for %s: %w", emailID, err)
	}
	if !found {
		return fmt.Errorf("fail unknown record %s", emailID)
	}
	logger := logging.WithContext(ctx, m.logger)
	logger.Warn("record failed",
		logging.String(logging.FieldEmailID, emailID),
		logging.String(logging.FieldEventType, "record_failed"),
		logging.String("reason", message),
	)
	if err := m.mailbox.MarkRead(ctx, emailID); err != nil {
		logger.Warn("mark read after failure failed",
			logging.String(logging.FieldEmailID, emailID),
			logging.Error(err),
		)
	}
	return nil
}
