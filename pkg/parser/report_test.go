package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helmcode/tenderctl/pkg/model"
)

func TestParseReport(t *testing.T) {
	r, err := ParseReport([]byte(`{
		"executiveSummary": "Summary",
		"budgetComparison": {"categories": ["Labor"], "proposals": [{"bidderName": "Acme", "valuesUSD": [100.5]}]},
		"proposalsAnalysis": [{
			"bidderName": "Acme",
			"scores": {"legal": 90, "technical": 80, "financial": 70, "viabilityTotal": 81},
			"findingsSummary": {"total": 3, "critical": 1, "warning": 1, "ok": 1},
			"findings": [{"requirementName": "Bond", "isCompliant": false, "severity": "CRITICAL", "observation": "Missing"}]
		}]
	}`))
	require.NoError(t, err)

	assert.Equal(t, "Summary", r.ExecutiveSummary)
	assert.Equal(t, 100.5, r.BudgetComparison.Proposals[0].ValueAt(0))
	p := r.ProposalsAnalysis[0]
	assert.Equal(t, 81.0, p.Scores.ViabilityTotal)
	assert.Equal(t, model.SeverityCritical, p.Findings[0].Severity)
	assert.Equal(t, 3, p.FindingsSummary.Total)
}

func TestParseReport_NotReady(t *testing.T) {
	_, err := ParseReport([]byte(`{"message":"No analysis report found"}`))
	require.ErrorIs(t, err, ErrReportNotReady)
	assert.Contains(t, err.Error(), "No analysis report found")

	_, err = ParseReport([]byte(`{}`))
	require.ErrorIs(t, err, ErrReportNotReady)

	_, err = ParseReport([]byte(`[1,2]`))
	require.Error(t, err)
}

func TestNormalizeReport(t *testing.T) {
	assert.Nil(t, NormalizeReport(nil))

	in := &model.AnalysisReport{
		ExecutiveSummary: "x",
		ProposalsAnalysis: []model.ProposalAnalysis{
			{BidderName: "Acme", FindingsSummary: model.FindingsSummary{Total: 42, Critical: 2, Warning: -1, OK: 7}},
		},
	}
	out := NormalizeReport(in)

	require.NotNil(t, out.BudgetComparison.Categories)
	require.NotNil(t, out.BudgetComparison.Proposals)
	assert.Equal(t, model.FindingsSummary{Total: 9, Critical: 2, Warning: 0, OK: 7}, out.ProposalsAnalysis[0].FindingsSummary)
	assert.Equal(t, 42, in.ProposalsAnalysis[0].FindingsSummary.Total, "input is not modified")

	assert.Equal(t, out, NormalizeReport(out))
}
