package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"tend/internal/catalog"
	"tend/internal/config"
	"tend/internal/services"
)

// Client talks to the service catalog search and update API.
type Client struct {
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
	httpClient *http.Client
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

// NewClient constructs a catalog client from configuration.
func NewClient(cfg config.Catalog, opts ...Option) *Client {
	perSecond := cfg.RequestsPerSecond
	if perSecond <= 0 {
		perSecond = 2
	}
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		limiter:    rate.NewLimiter(rate.Limit(perSecond), 1),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// FindCandidates searches the catalog for entries matching the query and
// returns them as matcher candidates.
func (c *Client) FindCandidates(ctx context.Context, query string) ([]catalog.Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, services.Wrap(services.ErrConfiguration, "search", "find", "empty query", nil)
	}
	var payload struct {
		Results []struct {
			Name string `json:"name"`
			Ref  string `json:"ref"`
		} `json:"results"`
	}
	path := "/entries?q=" + url.QueryEscape(query)
	if err := c.do(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, err
	}
	candidates := make([]catalog.Candidate, 0, len(payload.Results))
	for _, result := range payload.Results {
		candidates = append(candidates, catalog.Candidate{Name: result.Name, Ref: result.Ref})
	}
	return candidates, nil
}

// ApplyUpdate applies the given field changes to the referenced entry.
func (c *Client) ApplyUpdate(ctx context.Context, ref string, fields map[string]string) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return services.Wrap(services.ErrConfiguration, "search", "update", "empty entry ref", nil)
	}
	if len(fields) == 0 {
		return services.Wrap(services.ErrConfiguration, "search", "update", "no fields to update", nil)
	}
	path := fmt.Sprintf("/entries/%s", url.PathEscape(ref))
	return c.do(ctx, http.MethodPatch, path, map[string]any{"fields": fields}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, target any) error {
	if c.baseURL == "" {
		return services.Wrap(services.ErrConfiguration, "search", "request", "missing catalog base_url in configuration", nil)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return services.Wrap(services.ErrTransient, "search", "request", "rate limiter interrupted", err)
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return services.Wrap(services.ErrParse, "search", "request", "encode payload", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "search", "request", "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return services.Wrap(services.ErrTimeout, "search", "request", "request timed out", err)
		}
		return services.Wrap(services.ErrTransient, "search", "request", "send request", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return services.Wrap(services.ErrTransient, "search", "request", "read response", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return services.Wrap(services.ErrAuth, "search", "request",
			fmt.Sprintf("http %d: %s", resp.StatusCode, summarize(raw)), nil)
	case resp.StatusCode == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "search", "request",
			fmt.Sprintf("http %d: %s", resp.StatusCode, summarize(raw)), nil)
	case resp.StatusCode >= 400:
		return services.Wrap(services.ErrTransient, "search", "request",
			fmt.Sprintf("http %d: %s", resp.StatusCode, summarize(raw)), nil)
	}

	if target != nil {
		if err := json.Unmarshal(raw, target); err != nil {
			return services.Wrap(services.ErrParse, "search", "response", "decode response", err)
		}
	}
	return nil
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
