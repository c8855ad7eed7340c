// Package stream keeps one server-sent events connection to the analysis
// backend open and pumps decoded events into a caller-supplied handler.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/helmcode/tenderctl/pkg/model"
	"github.com/helmcode/tenderctl/pkg/observability"
	"github.com/helmcode/tenderctl/pkg/parser"
)

const source = "stream"

const (
	EventConnect      observability.EventType = "stream.connect"
	EventDisconnect   observability.EventType = "stream.disconnect"
	EventError        observability.EventType = "stream.error"
	EventRetry        observability.EventType = "stream.retry"
	EventDropped      observability.EventType = "stream.message.dropped"
	EventIgnored      observability.EventType = "stream.message.ignored"
	EventDelivered    observability.EventType = "stream.message.delivered"
	EventGaveUp       observability.EventType = "stream.retries.exhausted"
	EventConnectError observability.EventType = "stream.connect.failed"
)

var (
	// ErrRetriesExhausted is reported once the client stops reconnecting.
	ErrRetriesExhausted = errors.New("stream reconnect attempts exhausted")
	// ErrStreamClosed is reported when the server ends the response body.
	ErrStreamClosed = errors.New("stream closed by server")
	// ErrNoContent is reported when the server answers 204, which tells the
	// client to stop reconnecting.
	ErrNoContent = errors.New("stream endpoint returned no content")
)

// Handler receives every decoded event.
type Handler func(model.StreamEvent)

// ErrorHandler receives transport errors.
type ErrorHandler func(error)

// ReconnectHandler runs after a connection other than the first one opened,
// before any event of the new connection is delivered.
type ReconnectHandler func(ctx context.Context)

// Client owns at most one live connection at a time.
type Client struct {
	url         string
	httpClient  *http.Client
	handler     atomic.Pointer[Handler]
	onError     ErrorHandler
	onReconnect ReconnectHandler
	observer    observability.Observer

	initialBackoff time.Duration
	maxBackoff     time.Duration
	multiplier     float64
	jitter         float64
	maxRetries     int

	connected atomic.Bool

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. It should not set a Timeout, which
// would cut long-lived streams.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithErrorHandler(h ErrorHandler) Option {
	return func(c *Client) { c.onError = h }
}

func WithReconnectHandler(h ReconnectHandler) Option {
	return func(c *Client) { c.onReconnect = h }
}

func WithObserver(o observability.Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithBackoff sets the reconnect policy: exponential growth from initial to
// maxInterval by multiplier, randomized by jitter (0 to 1).
func WithBackoff(initial, maxInterval time.Duration, multiplier, jitter float64) Option {
	return func(c *Client) {
		c.initialBackoff = initial
		c.maxBackoff = maxInterval
		c.multiplier = multiplier
		c.jitter = jitter
	}
}

// WithMaxRetries bounds consecutive failed connection attempts. Zero retries
// forever.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// New creates a client for the stream at rawURL. Nothing is opened until
// Connect.
func New(rawURL string, h Handler, opts ...Option) *Client {
	c := &Client{
		url:            rawURL,
		httpClient:     &http.Client{},
		observer:       observability.NoOpObserver{},
		initialBackoff: time.Second,
		maxBackoff:     30 * time.Second,
		multiplier:     2,
		jitter:         0.5,
	}
	c.SetHandler(h)
	for _, o := range opts {
		o(c)
	}
	return c
}

// SetHandler swaps the event handler without touching the connection.
func (c *Client) SetHandler(h Handler) {
	c.handler.Store(&h)
}

// Connected reports whether a response is currently being read.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Connect opens a new connection, closing the previous one first. The
// connection lives until Disconnect is called or ctx is done. Connect and
// Disconnect must not be called from inside the handler.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.url)
	if err != nil || u.Scheme == "" || u.Host == "" {
		if err == nil {
			err = fmt.Errorf("missing scheme or host")
		}
		err = fmt.Errorf("invalid stream url %q: %w", c.url, err)
		observability.Emit(ctx, c.observer, source, EventConnectError, observability.LevelError, map[string]any{
			"error": err.Error(),
		})
		return err
	}

	c.Disconnect()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go c.run(runCtx, gen, done)
	return nil
}

// Reconnect re-establishes the connection.
func (c *Client) Reconnect(ctx context.Context) error {
	return c.Connect(ctx)
}

// Disconnect closes the connection and waits for the reader to stop. No
// handler call happens after it returns. Calling it without an open
// connection is a no-op.
func (c *Client) Disconnect() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.gen++
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (c *Client) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}

func (c *Client) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialBackoff
	b.MaxInterval = c.maxBackoff
	b.Multiplier = c.multiplier
	b.RandomizationFactor = c.jitter
	b.Reset()
	return b
}

func (c *Client) run(ctx context.Context, gen uint64, done chan struct{}) {
	defer close(done)

	b := c.newBackOff()
	failures := 0
	opened := false
	var serverRetry time.Duration
	var lastID string

	for {
		er, err := c.read(ctx, gen, lastID, func() {
			b.Reset()
			failures = 0
			if opened && c.onReconnect != nil {
				c.onReconnect(ctx)
			}
			opened = true
		})
		if er != nil {
			lastID = er.lastID
			if er.retry > 0 {
				serverRetry = er.retry
			}
		}
		if ctx.Err() != nil {
			return
		}

		c.reportError(ctx, err)
		if errors.Is(err, ErrNoContent) {
			return
		}

		failures++
		if c.maxRetries > 0 && failures > c.maxRetries {
			observability.Emit(ctx, c.observer, source, EventGaveUp, observability.LevelError, map[string]any{
				"attempts": failures,
			})
			c.reportError(ctx, ErrRetriesExhausted)
			return
		}

		delay := b.NextBackOff()
		if delay == backoff.Stop {
			delay = c.maxBackoff
		}
		delay = max(delay, serverRetry)

		observability.Emit(ctx, c.observer, source, EventRetry, observability.LevelInfo, map[string]any{
			"attempt": failures,
			"delay":   delay.String(),
		})

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// read performs one connection attempt and pumps messages until the body
// ends. The returned reader, when non-nil, carries the last event ID and
// retry hint seen on this connection.
func (c *Client) read(ctx context.Context, gen uint64, lastID string, onOpen func()) (*eventReader, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if lastID != "" {
		req.Header.Set("Last-Event-ID", lastID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, ErrNoContent
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stream endpoint returned status %d", resp.StatusCode)
	}
	if mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mt != "text/event-stream" {
		return nil, fmt.Errorf("stream endpoint returned content type %q", resp.Header.Get("Content-Type"))
	}

	connID := uuid.NewString()
	c.connected.Store(true)
	defer c.connected.Store(false)

	observability.Emit(ctx, c.observer, source, EventConnect, observability.LevelInfo, map[string]any{
		"url":           c.url,
		"connection_id": connID,
	})
	defer observability.Emit(ctx, c.observer, source, EventDisconnect, observability.LevelInfo, map[string]any{
		"connection_id": connID,
	})

	onOpen()

	er := newEventReader(resp.Body)
	er.lastID = lastID
	for {
		msg, err := er.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = ErrStreamClosed
			}
			return er, err
		}
		c.dispatch(ctx, gen, msg)
	}
}

func (c *Client) dispatch(ctx context.Context, gen uint64, msg message) {
	if msg.Event != defaultEventType {
		observability.Emit(ctx, c.observer, source, EventIgnored, observability.LevelVerbose, map[string]any{
			"event": msg.Event,
		})
		return
	}

	ev, err := parser.DecodeStreamEvent(msg.Data)
	if err != nil {
		observability.Emit(ctx, c.observer, source, EventDropped, observability.LevelWarning, map[string]any{
			"error": err.Error(),
		})
		return
	}

	if !c.current(gen) || ctx.Err() != nil {
		return
	}
	h := c.handler.Load()
	if h == nil || *h == nil {
		return
	}

	observability.Emit(ctx, c.observer, source, EventDelivered, observability.LevelVerbose, map[string]any{
		"state":     ev.State(),
		"tender_id": ev.Tender(),
	})
	(*h)(ev)
}

func (c *Client) reportError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	observability.Emit(ctx, c.observer, source, EventError, observability.LevelWarning, map[string]any{
		"error": err.Error(),
	})
	if c.onError != nil {
		c.onError(err)
	}
}
