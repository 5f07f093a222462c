package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tend/internal/config"
)

const userAgent = "Tend/0.1.0"

// Service defines the notification surface exposed to workflow components.
type Service interface {
	NotifyRunStarted(ctx context.Context, pending int) error
	NotifyRunCompleted(ctx context.Context, processed, failed int, duration time.Duration) error
	NotifyMassEmail(ctx context.Context, count, threshold int) error
	NotifyEscalation(ctx context.Context, subject, reason string) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &http.Client{Timeout: timeout}
	return &ntfyService{
		endpoint:    topic,
		client:      client,
		runs:        cfg.Notifications.Runs,
		massEmail:   cfg.Notifications.MassEmail,
		escalations: cfg.Notifications.Escalations,
		errors:      cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint    string
	client      *http.Client
	runs        bool
	massEmail   bool
	escalations bool
	errors      bool
}

func (n *ntfyService) NotifyRunStarted(ctx context.Context, pending int) error {
	if !n.runs {
		return nil
	}
	data := payload{
		title:   "Tend - Run Started",
		message: fmt.Sprintf("Started triage pass with %d pending emails", pending),
		tags:    []string{"tend", "run", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRunCompleted(ctx context.Context, processed, failed int, duration time.Duration) error {
	if !n.runs {
		return nil
	}
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	durationText := duration.String()
	if duration == 0 {
		durationText = "0s"
	}

	var title string
	var message string
	if failed == 0 {
		title = "Tend - Run Complete"
		message = fmt.Sprintf("Triage pass complete: %d emails processed in %s", processed, durationText)
	} else {
		title = "Tend - Run Complete (with errors)"
		message = fmt.Sprintf("Triage pass complete: %d succeeded, %d failed in %s", processed, failed, durationText)
	}

	data := payload{
		title:   title,
		message: message,
		tags:    []string{"tend", "run", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyMassEmail(ctx context.Context, count, threshold int) error {
	if !n.massEmail {
		return nil
	}
	data := payload{
		title:    "Tend - Mass Email Detected",
		message:  fmt.Sprintf("⚠️ %d unread emails exceed the threshold of %d. Pass aborted, manual review required.", count, threshold),
		tags:     []string{"tend", "mass-email", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyEscalation(ctx context.Context, subject, reason string) error {
	if !n.escalations {
		return nil
	}
	subject = strings.TrimSpace(subject)
	reason = strings.TrimSpace(reason)
	data := payload{
		title:    "Tend - Escalation",
		message:  fmt.Sprintf("Escalated: %s\nReason: %s", subject, reason),
		tags:     []string{"tend", "escalation", "review"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("❌ Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Tend - Error",
		message:  builder.String(),
		tags:     []string{"tend", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Tend - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"tend", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyRunStarted(context.Context, int) error                       { return nil }
func (noopService) NotifyRunCompleted(context.Context, int, int, time.Duration) error { return nil }
func (noopService) NotifyMassEmail(context.Context, int, int) error                   { return nil }
func (noopService) NotifyEscalation(context.Context, string, string) error            { return nil }
func (noopService) NotifyError(context.Context, error, string) error                  { return nil }
func (noopService) TestNotification(context.Context) error                            { return nil }
