package workflow

import (
	"context"
	"sync"
	"time"

	"tend/internal/catalog"
	"tend/internal/records"
	"tend/internal/services/llm"
	"tend/internal/services/mail"
)

type fakeClassifier struct {
	mu      sync.Mutex
	calls   int
	result  llm.Classification
	results map[string]llm.Classification
	err     error
}

func (f *fakeClassifier) Classify(_ context.Context, _, subject, _ string) (llm.Classification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return llm.Classification{}, f.err
	}
	if f.results != nil {
		if result, ok := f.results[subject]; ok {
			return result, nil
		}
	}
	return f.result, nil
}

type fakeExtractor struct {
	mu         sync.Mutex
	extracts   int
	conflicts  int
	extraction llm.Extraction
	report     llm.ConflictReport
	extractErr error
	reportErr  error
	lastBody   string
}

func (f *fakeExtractor) Extract(_ context.Context, _, _, body string) (llm.Extraction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extracts++
	f.lastBody = body
	if f.extractErr != nil {
		return llm.Extraction{}, f.extractErr
	}
	return f.extraction, nil
}

func (f *fakeExtractor) DetectConflicts(_ context.Context, _ llm.Extraction, _ string) (llm.ConflictReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conflicts++
	if f.reportErr != nil {
		return llm.ConflictReport{}, f.reportErr
	}
	return f.report, nil
}

type fakeCatalog struct {
	mu         sync.Mutex
	candidates []catalog.Candidate
	searchErr  error
	updateErr  error
	updates    []appliedUpdate
}

type appliedUpdate struct {
	ref    string
	fields map[string]string
}

func (f *fakeCatalog) FindCandidates(_ context.Context, _ string) ([]catalog.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.candidates, nil
}

func (f *fakeCatalog) ApplyUpdate(_ context.Context, ref string, fields map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, appliedUpdate{ref: ref, fields: fields})
	return nil
}

type fakeMailbox struct {
	mu       sync.Mutex
	address  string
	messages []mail.Message
	fetchErr error
	marked   []string
}

func (f *fakeMailbox) Address() string { return f.address }

func (f *fakeMailbox) FetchUnread(_ context.Context) ([]mail.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	out := make([]mail.Message, len(f.messages))
	copy(out, f.messages)
	return out, nil
}

func (f *fakeMailbox) MarkRead(_ context.Context, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, messageID)
	return nil
}

func (f *fakeMailbox) markedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.marked))
	copy(out, f.marked)
	return out
}

type fakeDispatcher struct {
	mu             sync.Mutex
	rejections     []string
	escalations    []string
	successes      []string
	clarifications []string
	sendErr        error
}

func (f *fakeDispatcher) SendRejection(_ context.Context, rec *records.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.rejections = append(f.rejections, rec.EmailID)
	return nil
}

func (f *fakeDispatcher) SendEscalation(_ context.Context, rec *records.Record, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.escalations = append(f.escalations, rec.EmailID+": "+reason)
	return nil
}

func (f *fakeDispatcher) SendSuccessNotification(_ context.Context, rec *records.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.successes = append(f.successes, rec.EmailID)
	return nil
}

func (f *fakeDispatcher) SendClarificationRequest(_ context.Context, rec *records.Record, question string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.clarifications = append(f.clarifications, rec.EmailID+": "+question)
	return nil
}

type fakeNotifier struct {
	mu          sync.Mutex
	runStarts   int
	runDones    int
	massEmails  int
	escalations int
	errors      int
	tests       int
}

func (f *fakeNotifier) NotifyRunStarted(context.Context, int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runStarts++
	return nil
}

func (f *fakeNotifier) NotifyRunCompleted(context.Context, int, int, time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runDones++
	return nil
}

func (f *fakeNotifier) NotifyMassEmail(context.Context, int, int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.massEmails++
	return nil
}

func (f *fakeNotifier) NotifyEscalation(context.Context, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.escalations++
	return nil
}

func (f *fakeNotifier) NotifyError(context.Context, error, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors++
	return nil
}

func (f *fakeNotifier) TestNotification(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tests++
	return nil
}
