package reconciler

import (
	"time"

	"github.com/helmcode/tenderctl/pkg/model"
)

// Source names what produced the latest state change.
type Source string

const (
	SourceStream Source = "stream"
	SourcePoll   Source = "poll"
	SourceStart  Source = "start"
	SourceRetry  Source = "retry"
	SourceFetch  Source = "fetch"
)

const (
	defaultErrorMessage = "An error occurred during analysis"
	defaultStartError   = "Failed to start analysis"
)

// State is the authoritative view of one tender's analysis. Report is shared
// between snapshots and must be treated as read-only.
type State struct {
	Phase          model.Phase
	Report         *model.AnalysisReport
	ErrorMessage   string
	Progress       int
	Step           string
	Message        string
	FetchingReport bool
	Source         Source
	UpdatedAt      time.Time
	// Version increases with every change so consumers receiving snapshots
	// from several goroutines can discard older ones.
	Version uint64
}

// AwaitingReport reports a completed run whose report is not attached yet.
func (s State) AwaitingReport() bool {
	return s.Phase == model.PhaseCompleted && s.Report == nil
}

// transition computes the state after ev. fetch is true when the report has
// to be requested separately.
func transition(s State, ev model.StreamEvent) (next State, fetch bool) {
	next = s

	switch e := ev.(type) {
	case model.ProgressEvent:
		if s.Phase != model.PhaseProcessing {
			next.Report = nil
			next.ErrorMessage = ""
			next.FetchingReport = false
		}
		next.Phase = model.PhaseProcessing
		next.Progress = e.Progress
		next.Step = e.Step
		next.Message = e.Message

	case model.CompletedEvent:
		if s.Phase != model.PhaseCompleted {
			next.Report = nil
			next.FetchingReport = false
		}
		next.Phase = model.PhaseCompleted
		next.ErrorMessage = ""
		next.Progress = 100
		if e.Step != "" {
			next.Step = e.Step
		}
		if e.Message != "" {
			next.Message = e.Message
		}
		if e.Report != nil {
			next.Report = e.Report
			next.FetchingReport = false
		}
		fetch = next.Report == nil && !next.FetchingReport

	case model.FailedEvent:
		next.Phase = model.PhaseError
		next.Report = nil
		next.FetchingReport = false
		next.ErrorMessage = e.Message
		if next.ErrorMessage == "" {
			next.ErrorMessage = defaultErrorMessage
		}
	}

	return next, fetch
}

// statusEvent maps a polled status onto the stream event with the same
// meaning. ok is false for unknown status values.
func statusEvent(st *model.AnalysisStatusResponse) (ev model.StreamEvent, ok bool) {
	switch st.Status {
	case model.StatusPending, model.StatusProcessing:
		return model.ProgressEvent{
			TenderID: st.TenderID,
			Progress: min(max(st.Progress, 0), 100),
			Step:     st.CurrentStep,
			Message:  st.Message,
		}, true
	case model.StatusCompleted:
		return model.CompletedEvent{
			TenderID: st.TenderID,
			Step:     st.CurrentStep,
			Message:  st.Message,
		}, true
	case model.StatusFailed:
		msg := st.ErrorDetails
		if msg == "" {
			msg = st.Message
		}
		return model.FailedEvent{TenderID: st.TenderID, Message: msg}, true
	default:
		return nil, false
	}
}
