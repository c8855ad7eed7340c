package analyzer

import (
	"context"
	"encoding/json"
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

	"github.com/helmcode/tenderctl/pkg/api"
	"github.com/helmcode/tenderctl/pkg/model"
	"github.com/helmcode/tenderctl/pkg/observability"
	"github.com/helmcode/tenderctl/pkg/reconciler"
	"github.com/helmcode/tenderctl/pkg/stream"
)

const (
	progress40   = `{"state":"En Análisis","tenderId":"T-1","currentProgress":40,"currentStep":"scoring"}`
	failedFrame  = `{"state":"Error","tenderId":"T-1","message":"Extraction failed"}`
	bareComplete = `{"state":"Completado","tenderId":"T-1","currentProgress":100}`
)

var testReport = model.AnalysisReport{
	ExecutiveSummary: "Acme is the strongest bid.",
	BudgetComparison: model.BudgetComparison{
		Categories: []string{"Labor"},
		Proposals:  []model.BudgetProposal{{BidderName: "Acme", ValuesUSD: []float64{1200}}},
	},
	ProposalsAnalysis: []model.ProposalAnalysis{{
		BidderName:      "Acme",
		Scores:          model.ProposalScores{Legal: 90, Technical: 85, Financial: 80, ViabilityTotal: 86},
		FindingsSummary: model.FindingsSummary{Total: 10, Critical: 2, Warning: 1, OK: 7},
	}},
}

func inlineComplete(t *testing.T, tenderID string) string {
	t.Helper()
	payload := map[string]any{
		"state":             "Completado",
		"tenderId":          tenderID,
		"currentProgress":   100,
		"executiveSummary":  testReport.ExecutiveSummary,
		"budgetComparison":  testReport.BudgetComparison,
		"proposalsAnalysis": testReport.ProposalsAnalysis,
	}
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	return string(b)
}

// backend fakes the analysis service. Stream frames are written once the
// analysis was started, or immediately when startedAlready is set.
type backend struct {
	*httptest.Server

	frames         []string
	streamStatus   int
	closeFirst     bool
	analyzeStatus  int
	statuses       []model.AnalysisStatusResponse
	startedAlready bool

	started     chan struct{}
	startOnce   sync.Once
	connections atomic.Int32
	statusCalls atomic.Int32
	reportCalls atomic.Int32
}

func newBackend(t *testing.T, configure func(b *backend)) *backend {
	t.Helper()
	b := &backend{started: make(chan struct{})}
	if configure != nil {
		configure(b)
	}
	if b.startedAlready {
		b.markStarted()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /sse/stream", b.serveStream)
	mux.HandleFunc("POST /tenders/{id}/analyze", b.serveAnalyze)
	mux.HandleFunc("GET /tenders/{id}/analysis/status", b.serveStatus)
	mux.HandleFunc("GET /get-analysis-report", b.serveReport)
	b.Server = httptest.NewServer(mux)
	t.Cleanup(b.Close)
	return b
}

func (b *backend) markStarted() {
	b.startOnce.Do(func() { close(b.started) })
}

func (b *backend) serveStream(w http.ResponseWriter, r *http.Request) {
	n := b.connections.Add(1)
	if b.streamStatus != 0 {
		w.WriteHeader(b.streamStatus)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	flusher := w.(http.Flusher)
	flusher.Flush()

	if b.closeFirst && n == 1 {
		return
	}

	select {
	case <-b.started:
	case <-r.Context().Done():
		return
	}
	for _, f := range b.frames {
		fmt.Fprintf(w, "data: %s\n\n", f)
		flusher.Flush()
	}
	<-r.Context().Done()
}

func (b *backend) serveAnalyze(w http.ResponseWriter, r *http.Request) {
	if b.analyzeStatus != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(b.analyzeStatus)
		fmt.Fprint(w, `{"detail":"Tender not found"}`)
		return
	}
	b.markStarted()
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"message":"Analysis started","tender_id":%q}`, r.PathValue("id"))
}

func (b *backend) serveStatus(w http.ResponseWriter, r *http.Request) {
	n := int(b.statusCalls.Add(1)) - 1
	if len(b.statuses) == 0 {
		http.Error(w, `{"detail":"no analysis"}`, http.StatusNotFound)
		return
	}
	st := b.statuses[min(n, len(b.statuses)-1)]
	st.TenderID = r.PathValue("id")
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(st)
}

func (b *backend) serveReport(w http.ResponseWriter, _ *http.Request) {
	b.reportCalls.Add(1)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(testReport)
}

type progressLog struct {
	mu     sync.Mutex
	values []int
	phases []model.Phase
}

func (l *progressLog) record(st reconciler.State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.values = append(l.values, st.Progress)
	l.phases = append(l.phases, st.Phase)
}

func (l *progressLog) sawProgress(p int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, v := range l.values {
		if v == p {
			return true
		}
	}
	return false
}

func fastStream() Option {
	return WithStreamOptions(
		stream.WithBackoff(5*time.Millisecond, 20*time.Millisecond, 2, 0),
		stream.WithMaxRetries(2),
	)
}

func run(t *testing.T, s *Session, start bool) (reconciler.State, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Run(ctx, start)
}

func TestParseMode(t *testing.T) {
	for _, m := range []string{"stream", "poll", "auto"} {
		got, err := ParseMode(m)
		require.NoError(t, err)
		assert.Equal(t, Mode(m), got)
	}

	got, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeAuto, got)

	_, err = ParseMode("websocket")
	assert.Error(t, err)
}

func TestSession_InlineCompletion(t *testing.T) {
	srv := newBackend(t, func(b *backend) {
		b.frames = []string{progress40, inlineComplete(t, "T-1")}
	})
	var log progressLog

	s := New(api.New(srv.URL), "T-1", WithMode(ModeStream), WithOnChange(log.record), fastStream())
	st, err := run(t, s, true)
	require.NoError(t, err)

	assert.Equal(t, model.PhaseCompleted, st.Phase)
	require.NotNil(t, st.Report)
	assert.Equal(t, testReport.ExecutiveSummary, st.Report.ExecutiveSummary)
	assert.Zero(t, srv.reportCalls.Load())
	assert.True(t, log.sawProgress(40))

	log.mu.Lock()
	assert.Equal(t, model.PhaseProcessing, log.phases[0])
	log.mu.Unlock()
}

func TestSession_CompletionFetchesReport(t *testing.T) {
	srv := newBackend(t, func(b *backend) {
		b.frames = []string{progress40, bareComplete}
	})

	s := New(api.New(srv.URL), "T-1", WithMode(ModeStream), fastStream())
	st, err := run(t, s, true)
	require.NoError(t, err)

	assert.Equal(t, model.PhaseCompleted, st.Phase)
	require.NotNil(t, st.Report)
	assert.Equal(t, "Acme", st.Report.ProposalsAnalysis[0].BidderName)
	assert.Equal(t, 10, st.Report.ProposalsAnalysis[0].FindingsSummary.Total)
	assert.Equal(t, int32(1), srv.reportCalls.Load())
}

func TestSession_StreamFailure(t *testing.T) {
	srv := newBackend(t, func(b *backend) {
		b.frames = []string{progress40, failedFrame}
	})

	s := New(api.New(srv.URL), "T-1", WithMode(ModeStream), fastStream())
	st, err := run(t, s, true)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseError, st.Phase)
	assert.Equal(t, "Extraction failed", st.ErrorMessage)
}

func TestSession_IgnoresOtherTenders(t *testing.T) {
	srv := newBackend(t, func(b *backend) {
		b.frames = []string{inlineComplete(t, "T-2"), failedFrame}
	})

	s := New(api.New(srv.URL), "T-1", WithMode(ModeStream), fastStream())
	st, err := run(t, s, true)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseError, st.Phase)
	assert.Nil(t, st.Report)
}

func TestSession_StartFailure(t *testing.T) {
	srv := newBackend(t, func(b *backend) {
		b.analyzeStatus = http.StatusNotFound
	})

	s := New(api.New(srv.URL), "T-1", WithMode(ModeStream), fastStream())
	st, err := run(t, s, true)

	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, model.PhaseError, st.Phase)
	assert.Equal(t, "Tender not found", st.ErrorMessage)
}

func TestSession_PollMode(t *testing.T) {
	srv := newBackend(t, func(b *backend) {
		b.statuses = []model.AnalysisStatusResponse{
			{Status: model.StatusProcessing, Progress: 40, CurrentStep: "scoring"},
			{Status: model.StatusCompleted, Progress: 100},
		}
	})
	var log progressLog

	s := New(api.New(srv.URL), "T-1",
		WithMode(ModePoll),
		WithPollInterval(5*time.Millisecond),
		WithOnChange(log.record),
	)
	st, err := run(t, s, true)
	require.NoError(t, err)

	assert.Equal(t, model.PhaseCompleted, st.Phase)
	require.NotNil(t, st.Report)
	assert.Zero(t, srv.connections.Load())
	assert.GreaterOrEqual(t, srv.statusCalls.Load(), int32(2))
	assert.True(t, log.sawProgress(40))
}

func TestSession_AutoFallsBackToPolling(t *testing.T) {
	srv := newBackend(t, func(b *backend) {
		b.streamStatus = http.StatusServiceUnavailable
		b.statuses = []model.AnalysisStatusResponse{
			{Status: model.StatusFailed, Message: "Analysis failed", ErrorDetails: "OCR timeout"},
		}
	})
	rec := &observability.Recorder{}

	s := New(api.New(srv.URL), "T-1",
		WithMode(ModeAuto),
		WithPollInterval(5*time.Millisecond),
		WithObserver(rec),
		fastStream(),
	)
	st, err := run(t, s, true)
	require.NoError(t, err)

	assert.Equal(t, model.PhaseError, st.Phase)
	assert.Equal(t, "OCR timeout", st.ErrorMessage)
	assert.Equal(t, 1, rec.Count(EventSessionClosed))
}

func TestSession_StreamGivesUp(t *testing.T) {
	srv := newBackend(t, func(b *backend) {
		b.streamStatus = http.StatusBadGateway
	})

	s := New(api.New(srv.URL), "T-1", WithMode(ModeStream), fastStream())
	_, err := run(t, s, false)
	require.ErrorIs(t, err, stream.ErrRetriesExhausted)
	assert.Equal(t, int32(3), srv.connections.Load())
}

func TestSession_ResyncAfterReconnect(t *testing.T) {
	srv := newBackend(t, func(b *backend) {
		b.closeFirst = true
		b.startedAlready = true
		b.statuses = []model.AnalysisStatusResponse{{Status: model.StatusCompleted, Progress: 100}}
	})
	rec := &observability.Recorder{}

	s := New(api.New(srv.URL), "T-1", WithMode(ModeStream), WithObserver(rec), fastStream())
	st, err := run(t, s, false)
	require.NoError(t, err)

	assert.Equal(t, model.PhaseCompleted, st.Phase)
	assert.NotNil(t, st.Report)
	assert.Equal(t, int32(1), srv.statusCalls.Load())
	assert.Equal(t, 1, rec.Count(EventResync))
	assert.GreaterOrEqual(t, srv.connections.Load(), int32(2))
}

func TestSession_ContextCancel(t *testing.T) {
	srv := newBackend(t, nil)

	s := New(api.New(srv.URL), "T-1", WithMode(ModeStream), fastStream())
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	st, err := s.Run(ctx, true)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, model.PhaseProcessing, st.Phase)
}

func TestSession_SnapshotBeforeRun(t *testing.T) {
	s := New(api.New("http://localhost:1"), "T-1")
	assert.Equal(t, model.PhaseIdle, s.Snapshot().Phase)
}
