// Package api is a typed client for the tender analysis backend.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/helmcode/tenderctl/pkg/observability"
)

const (
	defaultTimeout = 30 * time.Second
	streamPath     = "/sse/stream"
	source         = "api"

	EventRequest observability.EventType = "api.request"
	EventFailure observability.EventType = "api.failure"
)

// Error is returned when the backend answers with a non-2xx status.
type Error struct {
	Status   int
	Detail   string
	Endpoint string
}

func (e *Error) Error() string {
	return fmt.Sprintf("tender api error %s (status %d): %s", e.Endpoint, e.Status, e.Detail)
}

// UserMessage returns the backend's detail text.
func (e *Error) UserMessage() string {
	return e.Detail
}

// Client talks to one backend instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
	observer   observability.Observer
}

// Option configures the client.
type Option func(*Client)

// WithTimeout sets the timeout of non-streaming requests.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithObserver sets the observer that receives request events.
func WithObserver(o observability.Observer) Option {
	return func(c *Client) { c.observer = o }
}

// New creates a client for baseURL, e.g. "http://localhost:8000".
func New(baseURL string, opts ...Option) *Client {
	if !strings.HasPrefix(baseURL, "http") {
		baseURL = "http://" + baseURL
	}
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		observer:   observability.NoOpObserver{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the normalized backend URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// StreamURL returns the server-sent events endpoint.
func (c *Client) StreamURL() string {
	return c.baseURL + streamPath
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	return req, nil
}

// send executes req and decodes a JSON response into out when out is non-nil.
func (c *Client) send(req *http.Request, out any) error {
	start := time.Now()
	endpoint := req.Method + " " + req.URL.Path

	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.Emit(req.Context(), c.observer, source, EventFailure, observability.LevelWarning, map[string]any{
			"endpoint":   endpoint,
			"request_id": req.Header.Get("X-Request-ID"),
			"error":      err.Error(),
		})
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	observability.Emit(req.Context(), c.observer, source, EventRequest, observability.LevelVerbose, map[string]any{
		"endpoint":    endpoint,
		"request_id":  req.Header.Get("X-Request-ID"),
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read body: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{
			Status:   resp.StatusCode,
			Detail:   errorDetail(respBytes, resp.Status),
			Endpoint: endpoint,
		}
	}

	if out == nil || len(respBytes) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBytes, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", endpoint, err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return c.send(req, out)
}

// errorDetail extracts the backend's "detail" field, falling back to the
// status text when the body is not the expected shape.
func errorDetail(body []byte, status string) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return status
	}
	var text string
	if err := json.Unmarshal(payload.Detail, &text); err == nil && text != "" {
		return text
	}
	return string(payload.Detail)
}

func escape(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return strings.Join(escaped, "/")
}
