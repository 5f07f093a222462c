package logging

import (
	"context"
	"log/slog"

	"tend/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEmailID is the standardized structured logging key for record identifiers.
	FieldEmailID = "email_id"
	// FieldConversationID is the standardized structured logging key for thread identifiers.
	FieldConversationID = "conversation_id"
	// FieldStage is the standardized structured logging key for workflow stage names.
	FieldStage = "stage"
	// FieldRunID is the standardized structured logging key for workflow pass identifiers.
	FieldRunID = "run_id"
	// FieldStatus is the standardized structured logging key for record statuses.
	FieldStatus = "status"
	// FieldEventType tags log lines that mark workflow lifecycle events.
	FieldEventType = "event_type"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if id, ok := services.EmailIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldEmailID, id))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if run, ok := services.RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, run))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
