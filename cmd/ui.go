package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
)

func newSpinner(w io.Writer, suffix string) *spinner.Spinner {
	s := spinner.New(spinner.CharSets[11], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " " + suffix
	return s
}

// setSuffix updates a running spinner from another goroutine.
func setSuffix(s *spinner.Spinner, suffix string) {
	s.Lock()
	s.Suffix = " " + suffix
	s.Unlock()
}

func printHeader(w io.Writer, title string, fields ...[2]string) {
	cyan := color.New(color.FgCyan, color.Bold)
	fmt.Fprintln(w)
	cyan.Fprintln(w, title)
	for _, f := range fields {
		fmt.Fprintf(w, "%s %s\n", f[0], f[1])
	}
	fmt.Fprintln(w)
}

func printSuccess(w io.Writer, msg string) {
	green := color.New(color.FgGreen)
	green.Fprintf(w, "✓ %s\n", msg)
}

func printError(w io.Writer, msg string) {
	red := color.New(color.FgRed)
	red.Fprintf(w, "✗ %s\n", msg)
}

func printInfo(w io.Writer, msg string) {
	fmt.Fprintf(w, "%s\n", color.HiBlackString(msg))
}
