// Package analyzer runs one analysis session for a tender: it owns the event
// stream, the state reconciler and the polling fallback, and decides which of
// them is trusted at any moment.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/helmcode/tenderctl/pkg/model"
	"github.com/helmcode/tenderctl/pkg/observability"
	"github.com/helmcode/tenderctl/pkg/poller"
	"github.com/helmcode/tenderctl/pkg/reconciler"
	"github.com/helmcode/tenderctl/pkg/stream"
)

const source = "analyzer"

const (
	EventResync        observability.EventType = "analyzer.resync"
	EventResyncFailed  observability.EventType = "analyzer.resync.failed"
	EventFallback      observability.EventType = "analyzer.fallback"
	EventSessionClosed observability.EventType = "analyzer.closed"
)

// Mode selects how progress is followed.
type Mode string

const (
	// ModeStream follows the event stream only.
	ModeStream Mode = "stream"
	// ModePoll polls the status endpoint only.
	ModePoll Mode = "poll"
	// ModeAuto follows the stream and polls while it is not connected.
	ModeAuto Mode = "auto"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeStream, ModePoll, ModeAuto:
		return m, nil
	case "":
		return ModeAuto, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want stream, poll or auto)", s)
	}
}

// Backend is the subset of the API client a session needs.
type Backend interface {
	reconciler.ReportFetcher
	reconciler.Starter
	poller.StatusSource
	StreamURL() string
}

// Option configures a Session.
type Option func(*Session)

func WithMode(m Mode) Option {
	return func(s *Session) { s.mode = m }
}

func WithObserver(o observability.Observer) Option {
	return func(s *Session) { s.observer = o }
}

// WithOnChange receives every state change of the session's reconciler.
func WithOnChange(fn func(reconciler.State)) Option {
	return func(s *Session) { s.onChange = fn }
}

// WithPollInterval sets the polling pace.
func WithPollInterval(d time.Duration) Option {
	return func(s *Session) { s.pollInterval = d }
}

// WithStreamOptions passes options to the stream client.
func WithStreamOptions(opts ...stream.Option) Option {
	return func(s *Session) { s.streamOpts = append(s.streamOpts, opts...) }
}

// Session follows the analysis of one tender.
type Session struct {
	backend      Backend
	tenderID     string
	mode         Mode
	observer     observability.Observer
	onChange     func(reconciler.State)
	pollInterval time.Duration
	streamOpts   []stream.Option

	mu  sync.Mutex
	rec *reconciler.Reconciler
}

func New(backend Backend, tenderID string, opts ...Option) *Session {
	s := &Session{
		backend:      backend,
		tenderID:     tenderID,
		mode:         ModeAuto,
		observer:     observability.NoOpObserver{},
		pollInterval: poller.DefaultInterval,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Snapshot returns the state of the running session, or the idle state
// before Run.
func (s *Session) Snapshot() reconciler.State {
	s.mu.Lock()
	rec := s.rec
	s.mu.Unlock()
	if rec == nil {
		return reconciler.State{Phase: model.PhaseIdle}
	}
	return rec.Snapshot()
}

// Run follows the analysis until it reaches a final state or ctx ends. When
// start is true the analysis is triggered once the stream is set up. The
// completed state is returned only after the report fetch settled. The
// stream is always closed and the reconciler disposed before Run returns.
func (s *Session) Run(ctx context.Context, start bool) (reconciler.State, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	wake := make(chan struct{}, 1)
	fatal := make(chan error, 1)

	rec := reconciler.New(s.tenderID, s.backend,
		reconciler.WithStarter(s.backend),
		reconciler.WithObserver(s.observer),
		reconciler.WithOnChange(func(st reconciler.State) {
			if s.onChange != nil {
				s.onChange(st)
			}
			select {
			case wake <- struct{}{}:
			default:
			}
		}),
	)
	s.mu.Lock()
	s.rec = rec
	s.mu.Unlock()

	var wg sync.WaitGroup
	var client *stream.Client

	defer func() {
		if client != nil {
			client.Disconnect()
		}
		rec.Dispose()
		cancel()
		wg.Wait()
		rec.Wait()
		observability.Emit(ctx, s.observer, source, EventSessionClosed, observability.LevelInfo, map[string]any{
			"tender_id": s.tenderID,
			"phase":     string(rec.Snapshot().Phase),
		})
	}()

	polling := s.mode == ModePoll
	if s.mode == ModeStream || s.mode == ModeAuto {
		opts := append([]stream.Option{
			stream.WithObserver(s.observer),
			stream.WithReconnectHandler(func(ctx context.Context) { s.resync(ctx, rec) }),
			stream.WithErrorHandler(func(err error) {
				if errors.Is(err, stream.ErrRetriesExhausted) || errors.Is(err, stream.ErrNoContent) {
					select {
					case fatal <- err:
					default:
					}
				}
			}),
		}, s.streamOpts...)

		client = stream.New(s.backend.StreamURL(), func(ev model.StreamEvent) { rec.Apply(ev) }, opts...)
		if err := client.Connect(runCtx); err != nil {
			if s.mode == ModeStream {
				return rec.Snapshot(), err
			}
			observability.Emit(ctx, s.observer, source, EventFallback, observability.LevelWarning, map[string]any{
				"tender_id": s.tenderID,
				"error":     err.Error(),
			})
			client = nil
		}
		polling = s.mode == ModeAuto
	}

	if start {
		if err := rec.Start(runCtx); err != nil {
			return rec.Snapshot(), err
		}
	}

	if polling {
		opts := []poller.Option{
			poller.WithInterval(s.pollInterval),
			poller.WithObserver(s.observer),
		}
		if client != nil {
			// The stream is the source of truth while it is connected.
			opts = append(opts, poller.WithPause(client.Connected))
		}
		p := poller.New(s.backend, s.tenderID, opts...)

		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = p.Run(runCtx, func(st *model.AnalysisStatusResponse) {
				if client != nil && client.Connected() {
					return
				}
				rec.ApplyStatus(st)
			})
		}()
	}

	streamDown := false
	for {
		st := rec.Snapshot()
		if finished(st) {
			return st, nil
		}

		select {
		case <-ctx.Done():
			return rec.Snapshot(), ctx.Err()
		case err := <-fatal:
			if !polling {
				return rec.Snapshot(), err
			}
			if !streamDown {
				streamDown = true
				observability.Emit(ctx, s.observer, source, EventFallback, observability.LevelWarning, map[string]any{
					"tender_id": s.tenderID,
					"error":     err.Error(),
				})
			}
		case <-wake:
		}
	}
}

// resync applies the current status right after the stream reopened, so
// events missed while disconnected are not lost.
func (s *Session) resync(ctx context.Context, rec *reconciler.Reconciler) {
	st, err := s.backend.AnalysisStatus(ctx, s.tenderID)
	if err != nil {
		observability.Emit(ctx, s.observer, source, EventResyncFailed, observability.LevelWarning, map[string]any{
			"tender_id": s.tenderID,
			"error":     err.Error(),
		})
		return
	}
	observability.Emit(ctx, s.observer, source, EventResync, observability.LevelInfo, map[string]any{
		"tender_id": s.tenderID,
		"status":    string(st.Status),
	})
	rec.ApplyStatus(st)
}

func finished(st reconciler.State) bool {
	switch st.Phase {
	case model.PhaseError:
		return true
	case model.PhaseCompleted:
		return !st.FetchingReport
	default:
		return false
	}
}
