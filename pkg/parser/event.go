package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/helmcode/tenderctl/pkg/model"
)

var (
	// ErrEmptyEvent is returned for payloads without a state, such as the
	// "{}" the backend sends while it rewrites its state file.
	ErrEmptyEvent = errors.New("stream event has no state")
	// ErrUnknownState is returned when the state field holds an unexpected value.
	ErrUnknownState = errors.New("unknown stream event state")
	// ErrBackendEvent wraps an {"error": "..."} payload emitted by the stream itself.
	ErrBackendEvent = errors.New("stream reported an error")
)

// wireEvent mirrors the JSON the stream endpoint sends. Optional fields are
// pointers so absence can be told apart from zero values.
type wireEvent struct {
	State             string                   `json:"state"`
	IsLoading         bool                     `json:"isLoading"`
	TenderID          string                   `json:"tenderId"`
	CurrentProgress   *float64                 `json:"currentProgress"`
	CurrentStep       string                   `json:"currentStep"`
	Message           string                   `json:"message"`
	LastUpdate        string                   `json:"lastUpdate"`
	ExecutiveSummary  string                   `json:"executiveSummary"`
	BudgetComparison  *model.BudgetComparison  `json:"budgetComparison"`
	ProposalsAnalysis []model.ProposalAnalysis `json:"proposalsAnalysis"`
	Error             string                   `json:"error"`
}

// DecodeStreamEvent turns one stream message into its typed variant.
func DecodeStreamEvent(data []byte) (model.StreamEvent, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, ErrEmptyEvent
	}

	var w wireEvent
	if err := json.Unmarshal([]byte(trimmed), &w); err != nil {
		return nil, fmt.Errorf("decode stream event: %w", err)
	}

	switch w.State {
	case model.StateInAnalysis:
		return model.ProgressEvent{
			TenderID:   w.TenderID,
			Progress:   clampProgress(w.CurrentProgress),
			Step:       w.CurrentStep,
			Message:    w.Message,
			LastUpdate: parseTimestamp(w.LastUpdate),
		}, nil

	case model.StateCompleted:
		ev := model.CompletedEvent{
			TenderID: w.TenderID,
			Progress: clampProgress(w.CurrentProgress),
			Step:     w.CurrentStep,
			Message:  w.Message,
		}
		// An empty proposal list still counts as inline data; a missing one does not.
		if w.ExecutiveSummary != "" && w.ProposalsAnalysis != nil {
			report := model.AnalysisReport{
				ExecutiveSummary:  w.ExecutiveSummary,
				ProposalsAnalysis: w.ProposalsAnalysis,
			}
			if w.BudgetComparison != nil {
				report.BudgetComparison = *w.BudgetComparison
			}
			ev.Report = NormalizeReport(&report)
		}
		return ev, nil

	case model.StateError:
		return model.FailedEvent{TenderID: w.TenderID, Message: w.Message}, nil

	case "":
		if w.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrBackendEvent, w.Error)
		}
		return nil, ErrEmptyEvent

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownState, w.State)
	}
}

func clampProgress(v *float64) int {
	if v == nil || math.IsNaN(*v) {
		return 0
	}
	return int(math.Round(min(max(*v, 0), 100)))
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
