package formatter

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/helmcode/tenderctl/pkg/model"
	"github.com/helmcode/tenderctl/pkg/reconciler"
	"github.com/helmcode/tenderctl/pkg/upload"
)

const barWidth = 30

// DisplayTenderUpload prints the result of a tender upload. info may be nil.
func DisplayTenderUpload(w io.Writer, resp *model.TenderUploadResponse, info *upload.Info, format Format) error {
	if format != FormatHuman {
		return writeStructured(w, resp, format)
	}

	fmt.Fprintf(w, "   Tender ID: %s\n", color.New(color.FgCyan, color.Bold).Sprint(resp.TenderID))
	fmt.Fprintf(w, "   File:      %s\n", resp.Filename)
	if info != nil {
		fmt.Fprintf(w, "   Size:      %.2f MB\n", info.SizeMB())
		if info.Pages > 0 {
			fmt.Fprintf(w, "   Pages:     %d\n", info.Pages)
		}
	}
	if resp.Message != "" {
		fmt.Fprintf(w, "   %s\n", color.HiBlackString(resp.Message))
	}
	return nil
}

// DisplayProposalUpload prints the result of a proposal upload.
func DisplayProposalUpload(w io.Writer, resp *model.ProposalUploadResponse, format Format) error {
	if format != FormatHuman {
		return writeStructured(w, resp, format)
	}

	fmt.Fprintf(w, "   Contractor ID: %s\n", color.New(color.FgCyan, color.Bold).Sprint(resp.ContractorID))
	fmt.Fprintf(w, "   Company:       %s\n", resp.CompanyName)
	fmt.Fprintf(w, "   Tender:        %s\n", resp.TenderID)
	fmt.Fprintf(w, "   Principal:     %s\n", resp.PrincipalFile)
	for _, a := range resp.Attachments {
		fmt.Fprintf(w, "   Attachment:    %s\n", a)
	}
	fmt.Fprintf(w, "   Total files:   %d\n", resp.TotalFiles)
	return nil
}

// DisplayTender prints a tender and the proposals submitted to it.
func DisplayTender(w io.Writer, t *model.TenderDetails, format Format) error {
	if format != FormatHuman {
		return writeStructured(w, t, format)
	}

	fmt.Fprintf(w, "📋 %s %s\n", color.New(color.Bold).Sprint("Tender"), color.CyanString(t.TenderID))
	fmt.Fprintf(w, "   File: %s\n\n", t.TenderFile)
	displayContractorTable(w, t.Applications)
	return nil
}

// DisplayContractors prints the contractor list of a tender.
func DisplayContractors(w io.Writer, c *model.ContractorsResponse, format Format) error {
	if format != FormatHuman {
		return writeStructured(w, c, format)
	}

	fmt.Fprintf(w, "👷 %d contractors for tender %s\n\n", c.TotalContractors, color.CyanString(c.TenderID))
	displayContractorTable(w, c.Contractors)
	return nil
}

func displayContractorTable(w io.Writer, contractors []model.ContractorInfo) {
	if len(contractors) == 0 {
		fmt.Fprintf(w, "   %s\n", color.HiBlackString("No proposals submitted yet"))
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Contractor ID", "Company", "Files"})
	for _, c := range contractors {
		t.AppendRow(table.Row{c.ContractorID, c.CompanyName, c.TotalFiles})
	}
	t.Render()
}

// DisplayApplication prints the files of one proposal.
func DisplayApplication(w io.Writer, a *model.ApplicationDetails, format Format) error {
	if format != FormatHuman {
		return writeStructured(w, a, format)
	}

	fmt.Fprintf(w, "📁 %s (%s)\n", color.New(color.Bold).Sprint(a.CompanyName), a.ContractorID)
	for _, f := range a.Files.Principal {
		fmt.Fprintf(w, "   principal   %s\n", f)
	}
	for _, f := range a.Files.Attachments {
		fmt.Fprintf(w, "   attachment  %s\n", f)
	}
	fmt.Fprintf(w, "   %d files\n", a.TotalFiles)
	return nil
}

// DisplayStatus prints the analysis status of one tender.
func DisplayStatus(w io.Writer, st *model.AnalysisStatusResponse, format Format) error {
	if format != FormatHuman {
		return writeStructured(w, st, format)
	}

	fmt.Fprintf(w, "📊 Tender %s: %s\n", color.CyanString(st.TenderID), getStatusColor(st.Status).Sprint(strings.ToUpper(string(st.Status))))
	fmt.Fprintf(w, "   %s", ProgressBar(st.Progress, barWidth))
	if st.CurrentStep != "" {
		fmt.Fprintf(w, " %s", st.CurrentStep)
	}
	fmt.Fprintln(w)
	if st.Message != "" {
		fmt.Fprintf(w, "   %s\n", st.Message)
	}
	if st.ErrorDetails != "" {
		fmt.Fprintf(w, "   %s\n", color.RedString(st.ErrorDetails))
	}
	return nil
}

// DisplayCurrentStatus prints the global status snapshot. Structured output
// keeps every field the backend sent.
func DisplayCurrentStatus(w io.Writer, st *model.CurrentStatus, format Format) error {
	if format != FormatHuman {
		if st.Raw != nil {
			return writeStructured(w, st.Raw, format)
		}
		return writeStructured(w, st, format)
	}

	state := st.State
	if state == "" {
		state = "idle"
	}
	fmt.Fprintf(w, "📊 Current analysis: %s\n", color.New(color.Bold).Sprint(state))
	if st.TenderID != "" {
		fmt.Fprintf(w, "   Tender:  %s\n", color.CyanString(st.TenderID))
	}
	fmt.Fprintf(w, "   %s", ProgressBar(st.CurrentProgress, barWidth))
	if st.CurrentStep != "" {
		fmt.Fprintf(w, " %s", st.CurrentStep)
	}
	fmt.Fprintln(w)
	if st.Message != "" {
		fmt.Fprintf(w, "   %s\n", st.Message)
	}

	known := map[string]bool{"state": true, "tenderId": true, "currentProgress": true, "currentStep": true, "message": true}
	extra := make([]string, 0, len(st.Raw))
	for k := range st.Raw {
		if !known[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		if s, ok := st.Raw[k].(string); ok {
			fmt.Fprintf(w, "   %s: %s\n", k, s)
		}
	}
	return nil
}

// outcome is the structured form of a finished session.
type outcome struct {
	TenderID     string                `json:"tenderId" yaml:"tenderId"`
	Phase        model.Phase           `json:"phase" yaml:"phase"`
	Progress     int                   `json:"progress" yaml:"progress"`
	ErrorMessage string                `json:"errorMessage,omitempty" yaml:"errorMessage,omitempty"`
	UpdatedAt    time.Time             `json:"updatedAt" yaml:"updatedAt"`
	Report       *model.AnalysisReport `json:"report,omitempty" yaml:"report,omitempty"`
}

// DisplayOutcome prints the final state of an analysis session.
func DisplayOutcome(w io.Writer, tenderID string, st reconciler.State, format Format) error {
	if format != FormatHuman {
		return writeStructured(w, outcome{
			TenderID:     tenderID,
			Phase:        st.Phase,
			Progress:     st.Progress,
			ErrorMessage: st.ErrorMessage,
			UpdatedAt:    st.UpdatedAt,
			Report:       st.Report,
		}, format)
	}

	switch {
	case st.Phase == model.PhaseError:
		color.New(color.FgRed, color.Bold).Fprintln(w, "❌ ANALYSIS FAILED:")
		fmt.Fprintf(w, "   %s\n", st.ErrorMessage)
		return nil
	case st.Phase == model.PhaseCompleted && st.Report == nil:
		color.New(color.FgYellow, color.Bold).Fprintln(w, "⚠️  Analysis completed but the report could not be loaded.")
		fmt.Fprintf(w, "   %s\n", color.HiBlackString("Run 'tenderctl report' to try again"))
		return nil
	case st.Report != nil:
		return DisplayReport(w, st.Report, format)
	default:
		fmt.Fprintf(w, "📊 Tender %s: %s\n", color.CyanString(tenderID), st.Phase)
		fmt.Fprintf(w, "   %s %s\n", ProgressBar(st.Progress, barWidth), st.Step)
		return nil
	}
}

// ProgressLine renders one line describing a running analysis.
func ProgressLine(st reconciler.State) string {
	line := ProgressBar(st.Progress, barWidth)
	if st.Step != "" {
		line += " " + st.Step
	}
	if st.Message != "" && st.Message != st.Step {
		line += " - " + st.Message
	}
	return line
}

func getStatusColor(status model.AnalysisStatus) *color.Color {
	switch status {
	case model.StatusCompleted:
		return color.New(color.FgGreen, color.Bold)
	case model.StatusFailed:
		return color.New(color.FgRed, color.Bold)
	case model.StatusProcessing:
		return color.New(color.FgCyan, color.Bold)
	default:
		return color.New(color.FgYellow)
	}
}

// DisplayHealth prints the backend health payload.
func DisplayHealth(w io.Writer, status map[string]string, format Format) error {
	if format != FormatHuman {
		return writeStructured(w, status, format)
	}
	keys := make([]string, 0, len(status))
	for k := range status {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "   %s: %s\n", k, status[k])
	}
	return nil
}
