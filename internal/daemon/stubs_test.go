package daemon_test

import (
	"context"
	"time"

	"tend/internal/catalog"
	"tend/internal/records"
	"tend/internal/services/llm"
	"tend/internal/services/mail"
)

func timeNow() time.Time { return time.Now().UTC() }

type stubClassifier struct{}

func (stubClassifier) Classify(context.Context, string, string, string) (llm.Classification, error) {
	return llm.Classification{Label: "dont_help", Confidence: 99}, nil
}

type stubExtractor struct{}

func (stubExtractor) Extract(context.Context, string, string, string) (llm.Extraction, error) {
	return llm.Extraction{}, nil
}

func (stubExtractor) DetectConflicts(context.Context, llm.Extraction, string) (llm.ConflictReport, error) {
	return llm.ConflictReport{SafeToProceed: true}, nil
}

type stubCatalog struct{}

func (stubCatalog) FindCandidates(context.Context, string) ([]catalog.Candidate, error) {
	return nil, nil
}

func (stubCatalog) ApplyUpdate(context.Context, string, map[string]string) error { return nil }

type stubMailbox struct{}

func (stubMailbox) Address() string { return "catalog@example.com" }

func (stubMailbox) FetchUnread(context.Context) ([]mail.Message, error) { return nil, nil }

func (stubMailbox) MarkRead(context.Context, string) error { return nil }

type stubDispatcher struct{}

func (stubDispatcher) SendRejection(context.Context, *records.Record) error          { return nil }
func (stubDispatcher) SendEscalation(context.Context, *records.Record, string) error { return nil }
func (stubDispatcher) SendSuccessNotification(context.Context, *records.Record) error {
	return nil
}
func (stubDispatcher) SendClarificationRequest(context.Context, *records.Record, string) error {
	return nil
}
