package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"tend/internal/config"
	"tend/internal/services"
)

// Message is a single email fetched from the mailbox API.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Sender         string    `json:"sender"`
	Subject        string    `json:"subject"`
	Body           string    `json:"body"`
	ReceivedAt     time.Time `json:"received_at"`
}

// Client talks to the mailbox REST API. Requests are paced by a token-bucket
// limiter; a 429 response pauses the client for the configured cool-down
// before one retry.
type Client struct {
	baseURL    string
	token      string
	address    string
	cooldown   time.Duration
	limiter    *rate.Limiter
	httpClient *http.Client
	sleep      func(context.Context, time.Duration) error
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithSleeper overrides the cool-down sleep, used by tests.
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// NewClient constructs a mailbox client from configuration.
func NewClient(cfg config.Mailbox, opts ...Option) *Client {
	perSecond := cfg.RequestsPerSecond
	if perSecond <= 0 {
		perSecond = 1
	}
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cooldown := time.Duration(cfg.RateLimitCooldown) * time.Second
	if cooldown <= 0 {
		cooldown = 60 * time.Second
	}
	client := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		address:    strings.ToLower(strings.TrimSpace(cfg.Address)),
		cooldown:   cooldown,
		limiter:    rate.NewLimiter(rate.Limit(perSecond), 1),
		httpClient: &http.Client{Timeout: timeout},
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Address returns the mailbox's own address, lowercased.
func (c *Client) Address() string {
	return c.address
}

// FetchUnread returns all unread messages currently in the inbox.
func (c *Client) FetchUnread(ctx context.Context) ([]Message, error) {
	var payload struct {
		Messages []Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/messages?state=unread", nil, &payload); err != nil {
		return nil, err
	}
	return payload.Messages, nil
}

// MarkRead marks a message as read so later fetches skip it.
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	path := fmt.Sprintf("/messages/%s/read", messageID)
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// Reply sends a reply in the message's conversation.
func (c *Client) Reply(ctx context.Context, messageID, body string) error {
	path := fmt.Sprintf("/messages/%s/reply", messageID)
	payload := map[string]string{"body": body}
	return c.do(ctx, http.MethodPost, path, payload, nil)
}

// Forward forwards a message to another address with an optional comment.
func (c *Client) Forward(ctx context.Context, messageID, to, comment string) error {
	path := fmt.Sprintf("/messages/%s/forward", messageID)
	payload := map[string]string{"to": to, "comment": comment}
	return c.do(ctx, http.MethodPost, path, payload, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, target any) error {
	if c.baseURL == "" {
		return services.Wrap(services.ErrConfiguration, "mail", "request", "missing mailbox base_url in configuration", nil)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return services.Wrap(services.ErrTransient, "mail", "request", "rate limiter interrupted", err)
	}
	status, err := c.doOnce(ctx, method, path, body, target)
	if err == nil && status == http.StatusTooManyRequests {
		if sleepErr := c.sleep(ctx, c.cooldown); sleepErr != nil {
			return services.Wrap(services.ErrTransient, "mail", "request", "cool-down interrupted", sleepErr)
		}
		status, err = c.doOnce(ctx, method, path, body, target)
	}
	if err != nil {
		return err
	}
	if status == http.StatusTooManyRequests {
		return services.Wrap(services.ErrTransient, "mail", "request",
			fmt.Sprintf("still rate limited after %s cool-down", c.cooldown), nil)
	}
	return nil
}

// doOnce performs a single request. A 429 is reported via the returned status
// so the caller can apply the cool-down; every other failure is an error.
func (c *Client) doOnce(ctx context.Context, method, path string, body, target any) (int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, services.Wrap(services.ErrParse, "mail", "request", "encode payload", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, services.Wrap(services.ErrConfiguration, "mail", "request", "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, services.Wrap(services.ErrTimeout, "mail", "request", "request timed out", err)
		}
		return 0, services.Wrap(services.ErrTransient, "mail", "request", "send request", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "mail", "request", "read response", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return resp.StatusCode, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return resp.StatusCode, services.Wrap(services.ErrAuth, "mail", "request",
			fmt.Sprintf("http %d: %s", resp.StatusCode, summarize(raw)), nil)
	case resp.StatusCode == http.StatusNotFound:
		return resp.StatusCode, services.Wrap(services.ErrNotFound, "mail", "request",
			fmt.Sprintf("http %d: %s", resp.StatusCode, summarize(raw)), nil)
	case resp.StatusCode >= 400:
		return resp.StatusCode, services.Wrap(services.ErrTransient, "mail", "request",
			fmt.Sprintf("http %d: %s", resp.StatusCode, summarize(raw)), nil)
	}

	if target != nil {
		if err := json.Unmarshal(raw, target); err != nil {
			return resp.StatusCode, services.Wrap(services.ErrParse, "mail", "response", "decode response", err)
		}
	}
	return resp.StatusCode, nil
}

func summarize(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200] + "…"
	}
	if text == "" {
		return "<empty>"
	}
	return text
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
