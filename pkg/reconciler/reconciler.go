// Package reconciler folds stream events, polled status and explicit user
// actions for one tender into a single analysis state.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/helmcode/tenderctl/pkg/model"
	"github.com/helmcode/tenderctl/pkg/observability"
)

const source = "reconciler"

const (
	EventTransition   observability.EventType = "reconciler.transition"
	EventIgnored      observability.EventType = "reconciler.event.ignored"
	EventFetchStarted observability.EventType = "reconciler.report.fetch"
	EventFetchFailed  observability.EventType = "reconciler.report.failed"
	EventFetchStale   observability.EventType = "reconciler.report.stale"
)

var (
	// ErrInvalidTransition is returned by Start and Retry when the current
	// phase does not allow the action.
	ErrInvalidTransition = errors.New("invalid analysis transition")
	// ErrDisposed is returned for actions on a disposed reconciler.
	ErrDisposed = errors.New("reconciler disposed")
)

// ReportFetcher loads the full report on demand.
type ReportFetcher interface {
	FetchReport(ctx context.Context) (*model.AnalysisReport, error)
}

// Starter triggers the backend analysis.
type Starter interface {
	StartAnalysis(ctx context.Context, tenderID string) error
}

// userMessage is implemented by errors that carry a message meant for the
// user, such as the backend's error detail.
type userMessage interface {
	UserMessage() string
}

// Option configures a Reconciler.
type Option func(*Reconciler)

func WithStarter(s Starter) Option {
	return func(r *Reconciler) { r.starter = s }
}

func WithObserver(o observability.Observer) Option {
	return func(r *Reconciler) { r.observer = o }
}

// WithOnChange registers a callback that receives every new state. It is
// called without locks held, possibly from different goroutines.
func WithOnChange(fn func(State)) Option {
	return func(r *Reconciler) { r.onChange = fn }
}

// Reconciler owns the analysis state of one tender.
type Reconciler struct {
	tenderID string
	fetcher  ReportFetcher
	starter  Starter
	observer observability.Observer
	onChange func(State)
	now      func() time.Time

	mu       sync.Mutex
	state    State
	run      uint64
	disposed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a reconciler in the idle phase. fetcher may be nil, in which
// case reportless completions stay without report.
func New(tenderID string, fetcher ReportFetcher, opts ...Option) *Reconciler {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Reconciler{
		tenderID: tenderID,
		fetcher:  fetcher,
		observer: observability.NoOpObserver{},
		now:      time.Now,
		state:    State{Phase: model.PhaseIdle},
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// TenderID returns the tender this reconciler tracks.
func (r *Reconciler) TenderID() string {
	return r.tenderID
}

// Snapshot returns the current state.
func (r *Reconciler) Snapshot() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Apply folds one stream event into the state. It returns false when the
// event was ignored.
func (r *Reconciler) Apply(ev model.StreamEvent) bool {
	return r.apply(ev, SourceStream)
}

// ApplyStatus folds a polled status response into the state.
func (r *Reconciler) ApplyStatus(st *model.AnalysisStatusResponse) bool {
	if st == nil {
		return false
	}
	ev, ok := statusEvent(st)
	if !ok {
		observability.Emit(r.ctx, r.observer, source, EventIgnored, observability.LevelVerbose, map[string]any{
			"tender_id": r.tenderID,
			"reason":    fmt.Sprintf("unknown status %q", st.Status),
		})
		return false
	}
	return r.apply(ev, SourcePoll)
}

func (r *Reconciler) apply(ev model.StreamEvent, src Source) bool {
	if ev == nil {
		return false
	}
	if !model.MatchesTender(ev, r.tenderID) {
		observability.Emit(r.ctx, r.observer, source, EventIgnored, observability.LevelVerbose, map[string]any{
			"tender_id": r.tenderID,
			"event_for": ev.Tender(),
		})
		return false
	}

	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return false
	}

	prev := r.state
	next, fetch := transition(prev, ev)
	if prev.Phase == model.PhaseCompleted && next.Phase != model.PhaseCompleted {
		r.run++
	}
	if fetch && r.fetcher != nil {
		next.FetchingReport = true
		r.startFetch(r.run)
	}
	snap := r.commit(next, src)
	r.mu.Unlock()

	r.emitTransition(prev.Phase, snap)
	r.notify(snap)
	return true
}

// Start asks the backend to analyze the tender. Only idle and error phases
// can start; on success the phase becomes processing, on failure error.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return ErrDisposed
	}
	phase, version := r.state.Phase, r.state.Version
	r.mu.Unlock()

	if phase != model.PhaseIdle && phase != model.PhaseError {
		return fmt.Errorf("%w: cannot start from %s", ErrInvalidTransition, phase)
	}
	if r.starter == nil {
		return fmt.Errorf("no starter configured")
	}

	err := r.starter.StartAnalysis(ctx, r.tenderID)

	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		if err != nil {
			return err
		}
		return ErrDisposed
	}

	prev := r.state
	// Any state committed while the request was in flight wins.
	if prev.Version != version {
		r.mu.Unlock()
		return err
	}

	next := State{Phase: model.PhaseProcessing}
	if err != nil {
		next = State{Phase: model.PhaseError, ErrorMessage: messageFor(err, defaultStartError)}
	} else {
		r.run++
	}
	snap := r.commit(next, SourceStart)
	r.mu.Unlock()

	r.emitTransition(prev.Phase, snap)
	r.notify(snap)
	return err
}

// Retry resets a finished run back to idle, clearing report and error.
func (r *Reconciler) Retry() error {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return ErrDisposed
	}
	prev := r.state
	if !prev.Phase.Terminal() {
		r.mu.Unlock()
		return fmt.Errorf("%w: cannot retry from %s", ErrInvalidTransition, prev.Phase)
	}
	r.run++
	snap := r.commit(State{Phase: model.PhaseIdle}, SourceRetry)
	r.mu.Unlock()

	r.emitTransition(prev.Phase, snap)
	r.notify(snap)
	return nil
}

// Dispose detaches the reconciler: later events, polls and fetch results are
// ignored and in-flight fetches are cancelled.
func (r *Reconciler) Dispose() {
	r.mu.Lock()
	r.disposed = true
	r.mu.Unlock()
	r.cancel()
}

// Wait blocks until every report fetch started so far has finished.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}

// commit stores next as the current state. Callers hold r.mu.
func (r *Reconciler) commit(next State, src Source) State {
	next.Source = src
	next.UpdatedAt = r.now()
	next.Version = r.state.Version + 1
	r.state = next
	return next
}

// startFetch launches a detached report request for run. Callers hold r.mu.
func (r *Reconciler) startFetch(run uint64) {
	observability.Emit(r.ctx, r.observer, source, EventFetchStarted, observability.LevelInfo, map[string]any{
		"tender_id": r.tenderID,
	})

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		report, err := r.fetcher.FetchReport(r.ctx)
		r.resolveFetch(run, report, err)
	}()
}

func (r *Reconciler) resolveFetch(run uint64, report *model.AnalysisReport, err error) {
	r.mu.Lock()
	if r.disposed || run != r.run || r.state.Phase != model.PhaseCompleted || !r.state.FetchingReport {
		r.mu.Unlock()
		observability.Emit(r.ctx, r.observer, source, EventFetchStale, observability.LevelVerbose, map[string]any{
			"tender_id": r.tenderID,
		})
		return
	}

	next := r.state
	next.FetchingReport = false
	if err == nil && report != nil {
		next.Report = report
	}
	snap := r.commit(next, SourceFetch)
	r.mu.Unlock()

	if err != nil {
		observability.Emit(r.ctx, r.observer, source, EventFetchFailed, observability.LevelWarning, map[string]any{
			"tender_id": r.tenderID,
			"error":     err.Error(),
		})
	}
	r.notify(snap)
}

func (r *Reconciler) emitTransition(from model.Phase, snap State) {
	observability.Emit(r.ctx, r.observer, source, EventTransition, observability.LevelInfo, map[string]any{
		"tender_id": r.tenderID,
		"from":      string(from),
		"to":        string(snap.Phase),
		"source":    string(snap.Source),
		"progress":  snap.Progress,
	})
}

func (r *Reconciler) notify(snap State) {
	if r.onChange != nil {
		r.onChange(snap)
	}
}

func messageFor(err error, fallback string) string {
	var um userMessage
	if errors.As(err, &um) && um.UserMessage() != "" {
		return um.UserMessage()
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}
