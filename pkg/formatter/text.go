package formatter

import (
	"fmt"
	"math"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/helmcode/tenderctl/pkg/model"
	"github.com/helmcode/tenderctl/pkg/report"
)

var usd = message.NewPrinter(language.AmericanEnglish)

// FormatCurrency renders an amount as US dollars, e.g. $1,234.50.
func FormatCurrency(v float64) string {
	if v < 0 {
		return "-" + usd.Sprintf("$%.2f", math.Abs(v))
	}
	return usd.Sprintf("$%.2f", v)
}

func formatScore(v float64) string {
	return fmt.Sprintf("%.0f/%d", v, report.FullMark)
}

// ProgressBar draws a fixed width bar for a 0-100 progress value.
func ProgressBar(progress, width int) string {
	progress = min(max(progress, 0), 100)
	filled := progress * width / 100
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + fmt.Sprintf("] %3d%%", progress)
}

func getSeverityColor(severity model.Severity) *color.Color {
	switch severity {
	case model.SeverityCritical:
		return color.New(color.FgRed, color.Bold)
	case model.SeverityWarning:
		return color.New(color.FgYellow)
	case model.SeverityOK:
		return color.New(color.FgGreen)
	default:
		return color.New(color.FgWhite)
	}
}

func getSeverityIcon(severity model.Severity) string {
	switch severity {
	case model.SeverityCritical:
		return "🔴"
	case model.SeverityWarning:
		return "🟡"
	case model.SeverityOK:
		return "🟢"
	default:
		return "⚪"
	}
}

func getBandColor(band report.Band) *color.Color {
	switch band {
	case report.BandViable:
		return color.New(color.FgGreen, color.Bold)
	case report.BandRisky:
		return color.New(color.FgYellow, color.Bold)
	default:
		return color.New(color.FgRed, color.Bold)
	}
}

func wrapText(text string, width int, indent string) string {
	var result strings.Builder
	lines := strings.Split(text, "\n")

	for _, line := range lines {
		words := strings.Fields(line)
		if len(words) == 0 {
			result.WriteString("\n")
			continue
		}

		currentLine := indent
		for _, word := range words {
			if currentLine != indent && len(currentLine)+len(word)+1 > width {
				result.WriteString(currentLine + "\n")
				currentLine = indent + word
			} else if currentLine == indent {
				currentLine += word
			} else {
				currentLine += " " + word
			}
		}

		if currentLine != indent {
			result.WriteString(currentLine + "\n")
		}
	}

	return strings.TrimSuffix(result.String(), "\n")
}
