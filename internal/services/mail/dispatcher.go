package mail

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"tend/internal/logging"
	"tend/internal/records"
)

// Sender is the subset of the mailbox client the dispatcher needs.
type Sender interface {
	Reply(ctx context.Context, messageID, body string) error
	Forward(ctx context.Context, messageID, to, comment string) error
	MarkRead(ctx context.Context, messageID string) error
}

// Dispatcher composes and sends the outbound messages each disposition
// requires: polite rejections, escalation forwards, success confirmations,
// and clarification questions.
type Dispatcher struct {
	sender            Sender
	escalationAddress string
	logger            *slog.Logger
}

// NewDispatcher constructs a dispatcher that sends through the given client.
func NewDispatcher(sender Sender, escalationAddress string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Dispatcher{
		sender:            sender,
		escalationAddress: strings.TrimSpace(escalationAddress),
		logger:            logger.With(logging.String(logging.FieldComponent, "dispatcher")),
	}
}

// SendRejection tells the sender their email is outside what the mailbox
// handles.
func (d *Dispatcher) SendRejection(ctx context.Context, rec *records.Record) error {
	body := "Hello,\n\nThanks for your message. This mailbox only handles service catalog content changes, and your request does not appear to be one. If you believe this is a mistake, please resend with the catalog entry you want changed.\n\nRegards,\nService Catalog Maintenance"
	d.logger.Info("sending rejection", logging.String(logging.FieldEmailID, rec.EmailID))
	return d.sender.Reply(ctx, rec.EmailID, body)
}

// SendEscalation forwards the email to the escalation address with context on
// why automation stopped.
func (d *Dispatcher) SendEscalation(ctx context.Context, rec *records.Record, reason string) error {
	if d.escalationAddress == "" {
		d.logger.Warn("no escalation address configured, skipping forward",
			logging.String(logging.FieldEmailID, rec.EmailID))
		return nil
	}
	comment := fmt.Sprintf("Automated triage escalated this email.\nReason: %s\nLabel: %s\nStatus: %s", reason, rec.Label, rec.Status)
	d.logger.Info("forwarding for escalation",
		logging.String(logging.FieldEmailID, rec.EmailID),
		logging.String("reason", reason))
	return d.sender.Forward(ctx, rec.EmailID, d.escalationAddress, comment)
}

// SendSuccessNotification confirms to the requester that their change was
// applied.
func (d *Dispatcher) SendSuccessNotification(ctx context.Context, rec *records.Record) error {
	entry := "the requested entry"
	if rec.MatchedEntry != nil && rec.MatchedEntry.Name != "" {
		entry = fmt.Sprintf("%q", rec.MatchedEntry.Name)
	}
	body := fmt.Sprintf(
		"Hello,\n\nYour requested change to %s has been applied to the service catalog.\n\nRegards,\nService Catalog Maintenance",
		entry,
	)
	d.logger.Info("sending success confirmation", logging.String(logging.FieldEmailID, rec.EmailID))
	return d.sender.Reply(ctx, rec.EmailID, body)
}

// SendClarificationRequest asks the requester for the details that are still
// missing before the change can proceed.
func (d *Dispatcher) SendClarificationRequest(ctx context.Context, rec *records.Record, question string) error {
	body := fmt.Sprintf(
		"Hello,\n\nWe need a little more information before we can apply your catalog change:\n\n%s\n\nPlease reply to this email with the missing details.\n\nRegards,\nService Catalog Maintenance",
		question,
	)
	d.logger.Info("sending clarification request",
		logging.String(logging.FieldEmailID, rec.EmailID),
		logging.String(logging.FieldConversationID, rec.ConversationID))
	return d.sender.Reply(ctx, rec.EmailID, body)
}
