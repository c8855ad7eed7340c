// Package poller periodically asks the backend for analysis status. It is the
// fallback used when the event stream is not connected.
package poller

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/helmcode/tenderctl/pkg/model"
	"github.com/helmcode/tenderctl/pkg/observability"
)

const (
	// DefaultInterval paces per-tender status checks.
	DefaultInterval = 3 * time.Second
	// DefaultGlobalInterval paces global status checks.
	DefaultGlobalInterval = 5 * time.Second

	source = "poller"

	EventPoll      observability.EventType = "poller.status"
	EventPollError observability.EventType = "poller.error"
	EventStopped   observability.EventType = "poller.stopped"
)

// StatusSource fetches the status of one tender.
type StatusSource interface {
	AnalysisStatus(ctx context.Context, tenderID string) (*model.AnalysisStatusResponse, error)
}

// ShouldContinue reports whether polling goes on after seeing status. Only
// completed and failed end a run; unknown values keep polling.
func ShouldContinue(status model.AnalysisStatus) bool {
	return status != model.StatusCompleted && status != model.StatusFailed
}

// Option configures a Poller.
type Option func(*Poller)

func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithErrorHandler receives fetch errors. Polling continues after them.
func WithErrorHandler(fn func(error)) Option {
	return func(p *Poller) { p.onError = fn }
}

func WithObserver(o observability.Observer) Option {
	return func(p *Poller) { p.observer = o }
}

// WithPause skips a tick without any request while paused returns true.
func WithPause(paused func() bool) Option {
	return func(p *Poller) { p.paused = paused }
}

// Poller polls the status endpoint of one tender.
type Poller struct {
	src      StatusSource
	tenderID string
	interval time.Duration
	onError  func(error)
	paused   func() bool
	observer observability.Observer
}

func New(src StatusSource, tenderID string, opts ...Option) *Poller {
	p := &Poller{
		src:      src,
		tenderID: tenderID,
		interval: DefaultInterval,
		observer: observability.NoOpObserver{},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Interval returns the pause between two status requests.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Run polls until a terminal status was delivered to onStatus or ctx ends.
// The first request is sent immediately. It returns the last status seen.
func (p *Poller) Run(ctx context.Context, onStatus func(*model.AnalysisStatusResponse)) (*model.AnalysisStatusResponse, error) {
	var last *model.AnalysisStatusResponse
	err := Every(ctx, p.interval, func(ctx context.Context) bool {
		if p.paused != nil && p.paused() {
			return true
		}
		st, err := p.src.AnalysisStatus(ctx, p.tenderID)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			observability.Emit(ctx, p.observer, source, EventPollError, observability.LevelWarning, map[string]any{
				"tender_id": p.tenderID,
				"error":     err.Error(),
			})
			if p.onError != nil {
				p.onError(err)
			}
			return true
		}

		last = st
		observability.Emit(ctx, p.observer, source, EventPoll, observability.LevelVerbose, map[string]any{
			"tender_id": p.tenderID,
			"status":    string(st.Status),
			"progress":  st.Progress,
		})
		if onStatus != nil {
			onStatus(st)
		}
		return ShouldContinue(st.Status)
	})

	observability.Emit(ctx, p.observer, source, EventStopped, observability.LevelVerbose, map[string]any{
		"tender_id": p.tenderID,
	})
	return last, err
}

// Every calls fn immediately and then at most once per interval until fn
// returns false or ctx is done. It returns ctx.Err() when cancelled.
func Every(ctx context.Context, interval time.Duration, fn func(ctx context.Context) bool) error {
	limiter := rate.NewLimiter(rate.Every(interval), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if !fn(ctx) {
			return ctx.Err()
		}
	}
}
