// Package report derives the tabular views printed for an analysis report:
// budget rows, findings breakdowns, score axes and viability bands.
package report

import (
	"math"
	"sort"

	"github.com/helmcode/tenderctl/pkg/model"
)

// FullMark is the upper bound of every score axis.
const FullMark = 100

const (
	viableThreshold = 85
	riskyThreshold  = 70
)

// Band classifies a viability score.
type Band string

const (
	BandViable    Band = "Viable"
	BandRisky     Band = "Risky"
	BandNotViable Band = "Not Viable"
)

// ViabilityBand returns Viable from 85, Risky from 70, Not Viable below.
func ViabilityBand(score float64) Band {
	switch {
	case score >= viableThreshold:
		return BandViable
	case score >= riskyThreshold:
		return BandRisky
	default:
		return BandNotViable
	}
}

// BudgetRow holds one category with one value per bidder, in the order of
// BudgetComparison.Proposals.
type BudgetRow struct {
	Category string
	Values   []float64
}

// BudgetRows pivots a budget comparison by category. A bidder without a value
// for a category gets zero. An empty comparison yields no rows.
func BudgetRows(bc model.BudgetComparison) []BudgetRow {
	if bc.IsEmpty() {
		return nil
	}
	rows := make([]BudgetRow, 0, len(bc.Categories))
	for idx, category := range bc.Categories {
		values := make([]float64, len(bc.Proposals))
		for i, p := range bc.Proposals {
			values[i] = p.ValueAt(idx)
		}
		rows = append(rows, BudgetRow{Category: category, Values: values})
	}
	return rows
}

// Bidders returns the bidder names of a budget comparison in column order.
func Bidders(bc model.BudgetComparison) []string {
	names := make([]string, len(bc.Proposals))
	for i, p := range bc.Proposals {
		names[i] = p.BidderName
	}
	return names
}

// BudgetTotals sums every bidder's values over the listed categories only.
func BudgetTotals(bc model.BudgetComparison) []float64 {
	totals := make([]float64, len(bc.Proposals))
	for _, row := range BudgetRows(bc) {
		for i, v := range row.Values {
			totals[i] += v
		}
	}
	return totals
}

// Slice is one segment of a findings breakdown.
type Slice struct {
	Severity   model.Severity
	Count      int
	Percentage int
}

// FindingsBreakdown splits a summary into OK, WARNING and CRITICAL segments.
// Counts are copied unchanged; percentages are relative to the summary total.
func FindingsBreakdown(s model.FindingsSummary) []Slice {
	s = s.Normalize()
	return []Slice{
		{Severity: model.SeverityOK, Count: s.OK, Percentage: Percentage(s.OK, s.Total)},
		{Severity: model.SeverityWarning, Count: s.Warning, Percentage: Percentage(s.Warning, s.Total)},
		{Severity: model.SeverityCritical, Count: s.Critical, Percentage: Percentage(s.Critical, s.Total)},
	}
}

// Axis is one spoke of a score radar.
type Axis struct {
	Category string
	Score    float64
	FullMark float64
}

func RadarPoints(s model.ProposalScores) []Axis {
	return []Axis{
		{Category: "Legal", Score: s.Legal, FullMark: FullMark},
		{Category: "Technical", Score: s.Technical, FullMark: FullMark},
		{Category: "Financial", Score: s.Financial, FullMark: FullMark},
	}
}

// Percentage returns value/total as a rounded percentage, zero when total is
// zero.
func Percentage(value, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(value) / float64(total) * 100))
}

// Truncate shortens text to maxLen runes followed by "...".
func Truncate(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:max(maxLen, 0)]) + "..."
}

// Ranked returns the proposals ordered by viability, best first. Ties keep
// the backend's order.
func Ranked(proposals []model.ProposalAnalysis) []model.ProposalAnalysis {
	out := append([]model.ProposalAnalysis(nil), proposals...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Scores.ViabilityTotal > out[j].Scores.ViabilityTotal
	})
	return out
}

// FindingsBySeverity groups findings by severity. Unknown
// severities are dropped.
func FindingsBySeverity(findings []model.Finding) map[model.Severity][]model.Finding {
	groups := make(map[model.Severity][]model.Finding, 3)
	for _, f := range findings {
		switch f.Severity {
		case model.SeverityCritical, model.SeverityWarning, model.SeverityOK:
			groups[f.Severity] = append(groups[f.Severity], f)
		}
	}
	return groups
}

// SeverityOrder lists severities from most to least severe.
var SeverityOrder = []model.Severity{model.SeverityCritical, model.SeverityWarning, model.SeverityOK}
