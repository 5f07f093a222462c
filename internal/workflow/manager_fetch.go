package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"tend/internal/logging"
	"tend/internal/records"
	"tend/internal/services"
	"tend/internal/services/mail"
)

// fetchNewMail pulls the unread inbox and turns each genuinely new email into
// a record. Replies to open clarification questions are folded into their
// existing record instead. A backlog over the mass-email threshold aborts the
// pass before any record is created.
func (m *Manager) fetchNewMail(ctx context.Context) (int, error) {
	logger := logging.WithContext(ctx, m.logger)

	var messages []mail.Message
	err := m.retry.Do(ctx, "fetch unread mail", func(ctx context.Context) error {
		var fetchErr error
		messages, fetchErr = m.mailbox.FetchUnread(ctx)
		return fetchErr
	})
	if err != nil {
		if notifyErr := m.notifier.NotifyError(ctx, err, "mailbox fetch"); notifyErr != nil {
			logger.Warn("error notification failed", logging.Error(notifyErr))
		}
		return 0, err
	}

	own := m.mailbox.Address()
	filtered := messages[:0]
	for _, msg := range messages {
		if own != "" && strings.EqualFold(strings.TrimSpace(msg.Sender), own) {
			continue
		}
		filtered = append(filtered, msg)
	}
	messages = filtered

	// The threshold applies to messages that would actually be worked on:
	// duplicates of known emails and traffic in already-settled conversations
	// do not make a backlog suspicious.
	pending, err := m.countSurvivors(messages)
	if err != nil {
		return 0, err
	}
	threshold := m.cfg.Mailbox.MassEmailThreshold
	if threshold > 0 && pending > threshold {
		logger.Warn("mass email detected",
			logging.String(logging.FieldEventType, "mass_email"),
			logging.Int("count", pending),
			logging.Int("threshold", threshold),
		)
		if err := m.notifier.NotifyMassEmail(ctx, pending, threshold); err != nil {
			logger.Warn("mass email notification failed", logging.Error(err))
		}
		return 0, fmt.Errorf("%w: %d pending, threshold %d", ErrMassEmail, pending, threshold)
	}

	// Oldest first keeps processing order deterministic across passes.
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].ReceivedAt.Before(messages[j].ReceivedAt)
	})

	created := 0
	for _, msg := range messages {
		if msg.ID == "" {
			logger.Warn("skipping message without id")
			continue
		}
		existing, err := m.store.Find(msg.ID)
		if err != nil {
			return created, fmt.Errorf("look up record %s: %w", msg.ID, err)
		}
		if existing != nil {
			continue
		}

		if msg.ConversationID != "" {
			handled, err := m.captureConversationMessage(ctx, msg)
			if err != nil {
				return created, err
			}
			if handled {
				continue
			}
		}

		rec := records.New(msg.ID, msg.ConversationID, msg.Sender, msg.Subject, msg.Body, msg.ReceivedAt)
		rec.CreatedAt = m.now()
		rec.UpdatedAt = rec.CreatedAt
		if err := m.store.Append(*rec); err != nil {
			return created, fmt.Errorf("append record %s: %w", msg.ID, err)
		}
		created++
		logger.Info("recorded new email",
			logging.String(logging.FieldEmailID, msg.ID),
			logging.String(logging.FieldConversationID, msg.ConversationID),
			logging.String(logging.FieldEventType, "email_recorded"),
		)
	}
	return created, nil
}

// countSurvivors counts the messages a pass would act on: unseen email IDs
// whose conversation is either untracked or waiting on a clarification reply.
// Read-only so an aborted pass leaves no trace.
func (m *Manager) countSurvivors(messages []mail.Message) (int, error) {
	pending := 0
	for _, msg := range messages {
		if msg.ID == "" {
			continue
		}
		existing, err := m.store.Find(msg.ID)
		if err != nil {
			return 0, fmt.Errorf("look up record %s: %w", msg.ID, err)
		}
		if existing != nil {
			continue
		}
		if msg.ConversationID != "" {
			tracked, err := m.store.FindByConversation(msg.ConversationID)
			if err != nil {
				return 0, fmt.Errorf("look up conversation %s: %w", msg.ConversationID, err)
			}
			if tracked != nil && tracked.Status != records.StatusAwaitingClarification {
				continue
			}
		}
		pending++
	}
	return pending, nil
}

// captureConversationMessage handles a message whose conversation is already
// tracked. A reply to an open clarification is merged into its record; any
// other duplicate in a known conversation is skipped.
func (m *Manager) captureConversationMessage(ctx context.Context, msg mail.Message) (bool, error) {
	existing, err := m.store.FindByConversation(msg.ConversationID)
	if err != nil {
		return false, fmt.Errorf("look up conversation %s: %w", msg.ConversationID, err)
	}
	if existing == nil {
		return false, nil
	}

	logger := logging.WithContext(ctx, m.logger)

	if existing.Status == records.StatusAwaitingClarification {
		now := m.now()
		found, err := m.store.Update(existing.EmailID, func(rec *records.Record) {
			if open := rec.OpenClarification(); open != nil {
				open.Answer = msg.Body
				open.AnsweredAt = &now
			}
			rec.Body = rec.Body + "\n\nClarification reply:\n" + msg.Body
			rec.Extracted = nil
			rec.Status = records.StatusDataExtracted
		})
		if err != nil {
			return false, fmt.Errorf("capture clarification reply for %s: %w", existing.EmailID, err)
		}
		if !found {
			return false, nil
		}
		logger.Info("captured clarification reply",
			logging.String(logging.FieldEmailID, existing.EmailID),
			logging.String(logging.FieldConversationID, msg.ConversationID),
			logging.String(logging.FieldEventType, "clarification_reply"),
		)
	} else {
		logger.Debug("skipping duplicate conversation message",
			logging.String(logging.FieldEmailID, msg.ID),
			logging.String(logging.FieldConversationID, msg.ConversationID),
			logging.String(logging.FieldStatus, string(existing.Status)),
		)
	}

	if err := m.markReadQuiet(ctx, msg.ID); err != nil {
		return true, err
	}
	return true, nil
}

func (m *Manager) markReadQuiet(ctx context.Context, messageID string) error {
	if err := m.mailbox.MarkRead(ctx, messageID); err != nil {
		if kind := services.ClassifyError(err); kind == services.KindAuth {
			return err
		}
		logging.WithContext(ctx, m.logger).Warn("mark read failed",
			logging.String(logging.FieldEmailID, messageID),
			logging.Error(err),
		)
	}
	return nil
}
