package parser

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/helmcode/tenderctl/pkg/model"
)

// ErrReportNotReady is returned when the report endpoint answers with a
// placeholder instead of a report.
var ErrReportNotReady = errors.New("analysis report not available")

// ParseReport decodes the body of the report endpoint. The backend answers
// with {"message": "..."} until a report exists.
func ParseReport(data []byte) (*model.AnalysisReport, error) {
	var envelope struct {
		model.AnalysisReport
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode analysis report: %w", err)
	}

	r := envelope.AnalysisReport
	if r.ExecutiveSummary == "" && r.ProposalsAnalysis == nil {
		if envelope.Message != "" {
			return nil, fmt.Errorf("%w: %s", ErrReportNotReady, envelope.Message)
		}
		return nil, ErrReportNotReady
	}
	return NormalizeReport(&r), nil
}

// NormalizeReport returns a copy of r with nil collections replaced by empty
// ones and every findings summary total recomputed. It is deterministic, so
// normalizing the same input twice yields equal reports.
func NormalizeReport(r *model.AnalysisReport) *model.AnalysisReport {
	if r == nil {
		return nil
	}

	out := model.AnalysisReport{
		ExecutiveSummary: r.ExecutiveSummary,
		BudgetComparison: model.BudgetComparison{
			Categories: append([]string{}, r.BudgetComparison.Categories...),
			Proposals:  make([]model.BudgetProposal, 0, len(r.BudgetComparison.Proposals)),
		},
		ProposalsAnalysis: make([]model.ProposalAnalysis, 0, len(r.ProposalsAnalysis)),
	}

	for _, p := range r.BudgetComparison.Proposals {
		out.BudgetComparison.Proposals = append(out.BudgetComparison.Proposals, model.BudgetProposal{
			BidderName: p.BidderName,
			ValuesUSD:  append([]float64{}, p.ValuesUSD...),
		})
	}

	for _, p := range r.ProposalsAnalysis {
		p.Findings = append([]model.Finding{}, p.Findings...)
		p.FindingsSummary = p.FindingsSummary.Normalize()
		out.ProposalsAnalysis = append(out.ProposalsAnalysis, p)
	}

	return &out
}
