package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helmcode/tenderctl/pkg/model"
	"github.com/helmcode/tenderctl/pkg/observability"
)

const waitFor = 2 * time.Second

// sseServer serves a fixed script of frames to every connection, then keeps
// the connection open until the client leaves or close is requested.
type sseServer struct {
	*httptest.Server

	frames      []string
	closeAfter  bool
	active      atomic.Int32
	connections atomic.Int32
	lastEventID atomic.Value
}

func newSSEServer(t *testing.T, frames []string, closeAfter bool) *sseServer {
	t.Helper()
	s := &sseServer{frames: frames, closeAfter: closeAfter}
	s.lastEventID.Store("")
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

func (s *sseServer) serve(w http.ResponseWriter, r *http.Request) {
	s.connections.Add(1)
	s.active.Add(1)
	defer s.active.Add(-1)
	s.lastEventID.Store(r.Header.Get("Last-Event-ID"))

	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	flusher := w.(http.Flusher)
	flusher.Flush()

	for _, f := range s.frames {
		fmt.Fprint(w, f)
		flusher.Flush()
	}
	if s.closeAfter {
		return
	}
	<-r.Context().Done()
}

func collect() (Handler, <-chan model.StreamEvent) {
	ch := make(chan model.StreamEvent, 32)
	return func(ev model.StreamEvent) { ch <- ev }, ch
}

func receive(t *testing.T, ch <-chan model.StreamEvent) model.StreamEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for stream event")
		return nil
	}
}

func fastBackoff() Option {
	return WithBackoff(5*time.Millisecond, 20*time.Millisecond, 2, 0)
}

func TestClient_DeliversDecodedEvents(t *testing.T) {
	srv := newSSEServer(t, []string{
		"data: {\"state\":\"En Análisis\",\"tenderId\":\"T-1\",\"currentProgress\":40}\n\n",
		"data: {\"state\":\"Error\",\"tenderId\":\"T-1\",\"message\":\"Extraction failed\"}\n\n",
	}, false)

	h, events := collect()
	c := New(srv.URL, h)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(c.Disconnect)

	first := receive(t, events)
	progress, ok := first.(model.ProgressEvent)
	require.True(t, ok, "got %T", first)
	assert.Equal(t, "T-1", progress.TenderID)
	assert.Equal(t, 40, progress.Progress)

	second := receive(t, events)
	failed, ok := second.(model.FailedEvent)
	require.True(t, ok, "got %T", second)
	assert.Equal(t, "Extraction failed", failed.Message)
}

func TestClient_DropsMalformedMessages(t *testing.T) {
	srv := newSSEServer(t, []string{
		"data: not json\n\n",
		"data: {}\n\n",
		"data: {\"error\":\"disk full\"}\n\n",
		"data: {\"state\":\"Paused\"}\n\n",
		"event: heartbeat\ndata: {\"state\":\"Error\"}\n\n",
		"data: {\"state\":\"Completado\",\"tenderId\":\"T-1\"}\n\n",
	}, false)

	rec := &observability.Recorder{}
	h, events := collect()
	c := New(srv.URL, h, WithObserver(rec))
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(c.Disconnect)

	ev := receive(t, events)
	_, ok := ev.(model.CompletedEvent)
	assert.True(t, ok, "only the valid event reaches the handler, got %T", ev)
	assert.Equal(t, 4, rec.Count(EventDropped))
	assert.Equal(t, 1, rec.Count(EventIgnored))

	select {
	case extra := <-events:
		t.Fatalf("unexpected extra event %#v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClient_ConnectReplacesPreviousConnection(t *testing.T) {
	srv := newSSEServer(t, nil, false)

	h, _ := collect()
	c := New(srv.URL, h)
	t.Cleanup(c.Disconnect)

	ctx := context.Background()
	opened := func(n int32) func() bool {
		return func() bool { return c.Connected() && srv.connections.Load() == n }
	}

	require.NoError(t, c.Connect(ctx))
	require.Eventually(t, opened(1), waitFor, 5*time.Millisecond)
	require.NoError(t, c.Connect(ctx))
	require.Eventually(t, opened(2), waitFor, 5*time.Millisecond)
	require.NoError(t, c.Reconnect(ctx))
	require.Eventually(t, opened(3), waitFor, 5*time.Millisecond)

	require.Eventually(t, func() bool { return srv.active.Load() == 1 }, waitFor, 5*time.Millisecond)

	c.Disconnect()
	require.Eventually(t, func() bool { return srv.active.Load() == 0 }, waitFor, 5*time.Millisecond)
}

func TestClient_DisconnectIsIdempotent(t *testing.T) {
	srv := newSSEServer(t, nil, false)

	h, _ := collect()
	c := New(srv.URL, h)

	assert.NotPanics(t, c.Disconnect, "disconnect before connect")

	require.NoError(t, c.Connect(context.Background()))
	require.Eventually(t, c.Connected, waitFor, 5*time.Millisecond)

	c.Disconnect()
	c.Disconnect()
	assert.False(t, c.Connected())
	require.Eventually(t, func() bool { return srv.active.Load() == 0 }, waitFor, 5*time.Millisecond)
}

func TestClient_NoDeliveryAfterDisconnect(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		fmt.Fprint(w, "data: {\"state\":\"Error\"}\n\n")
		w.(http.Flusher).Flush()
	}))
	t.Cleanup(srv.Close)

	var calls atomic.Int32
	c := New(srv.URL, func(model.StreamEvent) { calls.Add(1) })
	require.NoError(t, c.Connect(context.Background()))
	require.Eventually(t, c.Connected, waitFor, 5*time.Millisecond)

	c.Disconnect()
	close(release)
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, calls.Load())
}

func TestClient_SetHandlerKeepsConnection(t *testing.T) {
	gate := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		flusher.Flush()
		fmt.Fprint(w, "data: {\"state\":\"En Análisis\",\"currentProgress\":10}\n\n")
		flusher.Flush()
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
		fmt.Fprint(w, "data: {\"state\":\"En Análisis\",\"currentProgress\":20}\n\n")
		flusher.Flush()
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	first, firstCh := collect()
	second, secondCh := collect()

	rec := &observability.Recorder{}
	c := New(srv.URL, first, WithObserver(rec))
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(c.Disconnect)

	receive(t, firstCh)
	c.SetHandler(second)
	close(gate)

	ev := receive(t, secondCh).(model.ProgressEvent)
	assert.Equal(t, 20, ev.Progress)
	assert.Equal(t, 1, rec.Count(EventConnect))
	assert.Empty(t, firstCh)
}

func TestClient_ReconnectsAfterServerClose(t *testing.T) {
	srv := newSSEServer(t, []string{
		"retry: 10\nid: evt-9\ndata: {\"state\":\"En Análisis\",\"tenderId\":\"T-1\",\"currentProgress\":5}\n\n",
	}, true)

	var reconnects atomic.Int32
	var errs sync.Map
	h, events := collect()
	c := New(srv.URL, h,
		fastBackoff(),
		WithReconnectHandler(func(context.Context) { reconnects.Add(1) }),
		WithErrorHandler(func(err error) { errs.Store(err.Error(), err) }),
	)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(c.Disconnect)

	receive(t, events)
	receive(t, events)

	require.Eventually(t, func() bool { return reconnects.Load() >= 1 }, waitFor, 5*time.Millisecond)
	_, sawClose := errs.Load(ErrStreamClosed.Error())
	assert.True(t, sawClose)
	assert.Equal(t, "evt-9", srv.lastEventID.Load())
}

func TestClient_GivesUpAfterMaxRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	exhausted := make(chan struct{})
	var once sync.Once
	h, _ := collect()
	c := New(srv.URL, h,
		fastBackoff(),
		WithMaxRetries(3),
		WithErrorHandler(func(err error) {
			if errors.Is(err, ErrRetriesExhausted) {
				once.Do(func() { close(exhausted) })
			}
		}),
	)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(c.Disconnect)

	select {
	case <-exhausted:
	case <-time.After(waitFor):
		t.Fatal("retries were never exhausted")
	}
	assert.Equal(t, int32(4), hits.Load())
}

func TestClient_NoContentStops(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	got := make(chan error, 4)
	h, _ := collect()
	c := New(srv.URL, h, fastBackoff(), WithErrorHandler(func(err error) { got <- err }))
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(c.Disconnect)

	select {
	case err := <-got:
		assert.ErrorIs(t, err, ErrNoContent)
	case <-time.After(waitFor):
		t.Fatal("no error reported")
	}
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), hits.Load())
}

func TestClient_RejectsWrongContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"state":"Error"}`)
	}))
	t.Cleanup(srv.Close)

	got := make(chan error, 8)
	h, events := collect()
	c := New(srv.URL, h, fastBackoff(), WithMaxRetries(1), WithErrorHandler(func(err error) { got <- err }))
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(c.Disconnect)

	select {
	case err := <-got:
		assert.Contains(t, err.Error(), "content type")
	case <-time.After(waitFor):
		t.Fatal("no error reported")
	}
	assert.Empty(t, events)
}

func TestClient_ConnectInvalidURL(t *testing.T) {
	rec := &observability.Recorder{}
	h, _ := collect()
	c := New("://bad", h, WithObserver(rec))

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.False(t, c.Connected())
	assert.Equal(t, 1, rec.Count(EventConnectError))
}

func TestClient_ContextCancelStops(t *testing.T) {
	srv := newSSEServer(t, nil, false)

	h, _ := collect()
	c := New(srv.URL, h)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.Connect(ctx))
	require.Eventually(t, c.Connected, waitFor, 5*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool { return !c.Connected() }, waitFor, 5*time.Millisecond)
	c.Disconnect()
}
