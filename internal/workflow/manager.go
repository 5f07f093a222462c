package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"tend/internal/catalog"
	"tend/internal/config"
	"tend/internal/logging"
	"tend/internal/notifications"
	"tend/internal/records"
	"tend/internal/services"
	"tend/internal/services/llm"
	"tend/internal/services/mail"
)

// Classifier labels incoming emails.
type Classifier interface {
	Classify(ctx context.Context, sender, subject, body string) (llm.Classification, error)
}

// Extractor recovers structured change requests and reviews them for
// conflicts.
type Extractor interface {
	Extract(ctx context.Context, sender, subject, body string) (llm.Extraction, error)
	DetectConflicts(ctx context.Context, extraction llm.Extraction, body string) (llm.ConflictReport, error)
}

// CatalogService searches the service catalog and applies entry updates.
type CatalogService interface {
	FindCandidates(ctx context.Context, query string) ([]catalog.Candidate, error)
	ApplyUpdate(ctx context.Context, ref string, fields map[string]string) error
}

// MailboxService reads the shared mailbox.
type MailboxService interface {
	Address() string
	FetchUnread(ctx context.Context) ([]mail.Message, error)
	MarkRead(ctx context.Context, messageID string) error
}

// Dispatcher sends the outbound messages each disposition requires.
type Dispatcher interface {
	SendRejection(ctx context.Context, rec *records.Record) error
	SendEscalation(ctx context.Context, rec *records.Record, reason string) error
	SendSuccessNotification(ctx context.Context, rec *records.Record) error
	SendClarificationRequest(ctx context.Context, rec *records.Record, question string) error
}

// Manager coordinates the triage passes: fetching mail, classifying it,
// extracting change requests, matching catalog entries, and applying updates.
// Every state change is persisted before the next collaborator call.
type Manager struct {
	cfg        *config.Config
	store      *records.Store
	logger     *slog.Logger
	notifier   notifications.Service
	classifier Classifier
	extractor  Extractor
	catalogSvc CatalogService
	mailbox    MailboxService
	dispatcher Dispatcher
	retry      *services.Retry
	now        func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
	lastRun *RunStats
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithClock overrides the manager's time source, used by tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithRetry overrides the retry policy, used by tests to skip backoff sleeps.
func WithRetry(retry *services.Retry) ManagerOption {
	return func(m *Manager) {
		if retry != nil {
			m.retry = retry
		}
	}
}

// NewManager constructs a workflow manager wired to its collaborators.
func NewManager(
	cfg *config.Config,
	store *records.Store,
	logger *slog.Logger,
	notifier notifications.Service,
	classifier Classifier,
	extractor Extractor,
	catalogSvc CatalogService,
	mailbox MailboxService,
	dispatcher Dispatcher,
	opts ...ManagerOption,
) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		cfg:        cfg,
		store:      store,
		logger:     logger.With(logging.String(logging.FieldComponent, "workflow")),
		notifier:   notifier,
		classifier: classifier,
		extractor:  extractor,
		catalogSvc: catalogSvc,
		mailbox:    mailbox,
		dispatcher: dispatcher,
		retry:      services.NewRetry(cfg.Workflow.RetryMaxAttempts, cfg.RetryBaseDelay()),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LastError returns the most recent pass-level error, if any.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// LastRun returns statistics from the most recent completed pass.
func (m *Manager) LastRun() *RunStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRun
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastRun(stats *RunStats) {
	m.mu.Lock()
	m.lastRun = stats
	m.mu.Unlock()
}
