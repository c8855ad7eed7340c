package model

import "time"

// Wire values of the stream event "state" field.
const (
	StateInAnalysis = "En Análisis"
	StateCompleted  = "Completado"
	StateError      = "Error"
)

// Phase is the client-side view of one analysis run.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseProcessing Phase = "processing"
	PhaseCompleted  Phase = "completed"
	PhaseError      Phase = "error"
)

// Terminal reports whether no further stream event is expected for the run.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseError
}

// StreamEvent is one decoded message from the analysis stream. The concrete
// type is one of ProgressEvent, CompletedEvent or FailedEvent.
type StreamEvent interface {
	// Tender returns the correlation key, or "" for a broadcast event.
	Tender() string
	State() string
	streamEvent()
}

// ProgressEvent reports an analysis that is still running.
type ProgressEvent struct {
	TenderID   string
	Progress   int
	Step       string
	Message    string
	LastUpdate time.Time
}

func (e ProgressEvent) Tender() string { return e.TenderID }
func (e ProgressEvent) State() string  { return StateInAnalysis }
func (ProgressEvent) streamEvent()     {}

// CompletedEvent reports a finished analysis. Report is set only when the
// backend sent the summary and the proposal analyses inline.
type CompletedEvent struct {
	TenderID string
	Progress int
	Step     string
	Message  string
	Report   *AnalysisReport
}

func (e CompletedEvent) Tender() string { return e.TenderID }
func (e CompletedEvent) State() string  { return StateCompleted }
func (CompletedEvent) streamEvent()     {}

// FailedEvent reports an analysis the backend gave up on.
type FailedEvent struct {
	TenderID string
	Message  string
}

func (e FailedEvent) Tender() string { return e.TenderID }
func (e FailedEvent) State() string  { return StateError }
func (FailedEvent) streamEvent()     {}

// MatchesTender reports whether ev should be applied by a subscriber that
// tracks tenderID. Broadcast events match every tender.
func MatchesTender(ev StreamEvent, tenderID string) bool {
	id := ev.Tender()
	return id == "" || id == tenderID
}
