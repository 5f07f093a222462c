package workflow

import (
	"context"
	"fmt"

	"tend/internal/logging"
	"tend/internal/records"
)

// sweepStale escalates records that sat too long without progress. Stuck
// in-progress work means a crashed or wedged pass; stale clarifications mean
// the requester never answered.
func (m *Manager) sweepStale(ctx context.Context) (int, error) {
	swept := 0

	stuck, err := m.store.FindStale(m.cfg.InProgressStaleAfter(), records.Status.IsResumable)
	if err != nil {
		return swept, fmt.Errorf("find stale in-progress records: %w", err)
	}
	for i := range stuck {
		rec := stuck[i]
		reason := fmt.Sprintf("no progress for more than %s", m.cfg.InProgressStaleAfter())
		if err := m.escalateRecord(ctx, rec.EmailID, reason); err != nil {
			return swept, err
		}
		swept++
	}

	unanswered, err := m.store.FindStale(m.cfg.ClarificationStaleAfter(), func(s records.Status) bool {
		return s == records.StatusAwaitingClarification
	})
	if err != nil {
		return swept, fmt.Errorf("find stale clarifications: %w", err)
	}
	for i := range unanswered {
		rec := unanswered[i]
		reason := fmt.Sprintf("clarification unanswered for more than %s", m.cfg.ClarificationStaleAfter())
		if err := m.escalateRecord(ctx, rec.EmailID, reason); err != nil {
			return swept, err
		}
		swept++
	}

	if swept > 0 {
		logging.WithContext(ctx, m.logger).Info("swept stale records",
			logging.String(logging.FieldEventType, "stale_sweep"),
			logging.Int("count", swept),
		)
	}
	return swept, nil
}
