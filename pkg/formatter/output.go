package formatter

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"github.com/helmcode/tenderctl/pkg/model"
	"github.com/helmcode/tenderctl/pkg/report"
)

// Format selects how results are printed.
type Format string

const (
	FormatHuman Format = "human"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat validates an output format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatHuman, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatHuman, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want human, json or yaml)", s)
	}
}

const lineWidth = 80

// DisplayReport formats and displays an analysis report
func DisplayReport(w io.Writer, r *model.AnalysisReport, format Format) error {
	if r == nil {
		return fmt.Errorf("no report to display")
	}
	switch format {
	case FormatJSON, FormatYAML:
		return writeStructured(w, r, format)
	default:
		displayReportHuman(w, r)
		return nil
	}
}

func writeStructured(w io.Writer, v any, format Format) error {
	switch format {
	case FormatYAML:
		output, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(w, string(output))
		return err
	default:
		output, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(output))
		return err
	}
}

func displayReportHuman(w io.Writer, r *model.AnalysisReport) {
	cyan := color.New(color.FgCyan, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	white := color.New(color.FgWhite, color.Bold)

	fmt.Fprintln(w)

	white.Fprintln(w, "📄 EXECUTIVE SUMMARY:")
	if r.ExecutiveSummary != "" {
		fmt.Fprintln(w, wrapText(r.ExecutiveSummary, lineWidth, "   "))
	} else {
		fmt.Fprintf(w, "   %s\n", color.HiBlackString("No summary provided"))
	}
	fmt.Fprintln(w)

	ranked := report.Ranked(r.ProposalsAnalysis)
	cyan.Fprintln(w, "🏆 PROPOSAL RANKING:")
	if len(ranked) == 0 {
		fmt.Fprintf(w, "   %s\n\n", color.HiBlackString("No proposals were analyzed"))
	} else {
		displayRanking(w, ranked)
		fmt.Fprintln(w)
	}

	if len(ranked) > 0 {
		yellow.Fprintln(w, "⚠️  FINDINGS:")
		for _, p := range ranked {
			displayFindings(w, p)
		}
	}

	green.Fprintln(w, "💰 BUDGET COMPARISON:")
	displayBudget(w, r.BudgetComparison)
	fmt.Fprintln(w)

	fmt.Fprintln(w, strings.Repeat("─", lineWidth))
	fmt.Fprintf(w, "💡 %s\n", color.HiBlackString("Run with -o json or -o yaml for machine-readable output"))
}

func displayRanking(w io.Writer, ranked []model.ProposalAnalysis) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Bidder", "Viability", "Status", "Legal", "Technical", "Financial", "Findings"})
	for i, p := range ranked {
		band := report.ViabilityBand(p.Scores.ViabilityTotal)
		t.AppendRow(table.Row{
			i + 1,
			p.BidderName,
			getBandColor(band).Sprintf("%.0f", p.Scores.ViabilityTotal),
			getBandColor(band).Sprint(string(band)),
			formatScore(p.Scores.Legal),
			formatScore(p.Scores.Technical),
			formatScore(p.Scores.Financial),
			p.FindingsSummary.Normalize().Total,
		})
	}
	t.Render()
}

func displayFindings(w io.Writer, p model.ProposalAnalysis) {
	summary := p.FindingsSummary.Normalize()

	parts := make([]string, 0, 3)
	for _, s := range report.FindingsBreakdown(summary) {
		parts = append(parts, getSeverityColor(s.Severity).Sprintf("%d %s (%d%%)", s.Count, strings.ToLower(string(s.Severity)), s.Percentage))
	}
	fmt.Fprintf(w, "   %s  %s\n", color.New(color.Bold).Sprint(p.BidderName), strings.Join(parts, ", "))

	groups := report.FindingsBySeverity(p.Findings)
	n := 0
	for _, sev := range report.SeverityOrder {
		for _, f := range groups[sev] {
			n++
			fmt.Fprintf(w, "   %d. %s %s\n", n, getSeverityIcon(f.Severity), f.RequirementName)
			if f.Observation != "" {
				fmt.Fprintln(w, wrapText(f.Observation, lineWidth, "      "))
			}
		}
	}
	fmt.Fprintln(w)
}

func displayBudget(w io.Writer, bc model.BudgetComparison) {
	rows := report.BudgetRows(bc)
	if len(rows) == 0 {
		fmt.Fprintf(w, "   %s\n", color.HiBlackString("No budget comparison data available"))
		return
	}

	header := table.Row{"Category"}
	for _, name := range report.Bidders(bc) {
		header = append(header, name)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	for _, row := range rows {
		r := table.Row{row.Category}
		for _, v := range row.Values {
			r = append(r, FormatCurrency(v))
		}
		t.AppendRow(r)
	}

	footer := table.Row{"Total"}
	for _, v := range report.BudgetTotals(bc) {
		footer = append(footer, FormatCurrency(v))
	}
	t.AppendFooter(footer)
	t.Render()
}
