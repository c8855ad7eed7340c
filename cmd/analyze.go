package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/helmcode/tenderctl/pkg/analyzer"
	"github.com/helmcode/tenderctl/pkg/formatter"
	"github.com/helmcode/tenderctl/pkg/model"
	"github.com/helmcode/tenderctl/pkg/reconciler"
	"github.com/helmcode/tenderctl/pkg/stream"
)

type sessionFlags struct {
	mode string
}

func (f *sessionFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.mode, "mode", string(analyzer.ModeAuto), "How to follow progress (stream, poll, auto)")
}

func NewAnalyzeCmd(opts *GlobalOptions) *cobra.Command {
	var flags sessionFlags
	cmd := &cobra.Command{
		Use:   "analyze TENDER_ID",
		Short: "Start the analysis of a tender and follow it to the report",
		Long: `Start the AI analysis of an uploaded tender and its proposals, follow the
progress live and print the resulting report.

Examples:
  # Analyze and follow over the event stream, polling if it drops
  tenderctl analyze T-1

  # Poll only, for networks that cut long-lived connections
  tenderctl analyze T-1 --mode poll

  # Machine-readable result
  tenderctl analyze T-1 -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.resolve(cmd)
			if err != nil {
				return err
			}
			return runSession(cmd.Context(), a, args[0], flags, true)
		},
	}
	flags.bind(cmd)
	return cmd
}

func NewWatchCmd(opts *GlobalOptions) *cobra.Command {
	var flags sessionFlags
	cmd := &cobra.Command{
		Use:   "watch TENDER_ID",
		Short: "Follow a running analysis without starting a new one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.resolve(cmd)
			if err != nil {
				return err
			}
			return runSession(cmd.Context(), a, args[0], flags, false)
		},
	}
	flags.bind(cmd)
	return cmd
}

func runSession(ctx context.Context, a *app, tenderID string, flags sessionFlags, start bool) error {
	mode, err := analyzer.ParseMode(flags.mode)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	title := "🔍 Tender Analysis"
	if !start {
		title = "👀 Watching Analysis"
	}
	printHeader(a.status, title,
		[2]string{"📝 Tender:", tenderID},
		[2]string{"🌐 Backend:", a.client.BaseURL()},
		[2]string{"📡 Mode:", string(mode)},
	)

	s := newSpinner(a.status, "Connecting...")
	if start {
		s.Suffix = " Starting analysis..."
	}
	s.Start()

	session := analyzer.New(a.client, tenderID,
		analyzer.WithMode(mode),
		analyzer.WithObserver(a.observer),
		analyzer.WithPollInterval(a.cfg.PollInterval),
		analyzer.WithStreamOptions(
			stream.WithBackoff(a.cfg.Stream.InitialBackoff, a.cfg.Stream.MaxBackoff, a.cfg.Stream.Multiplier, a.cfg.Stream.Jitter),
			stream.WithMaxRetries(a.cfg.Stream.MaxRetries),
		),
		analyzer.WithOnChange(func(st reconciler.State) {
			switch {
			case st.Phase == model.PhaseProcessing:
				setSuffix(s, formatter.ProgressLine(st))
			case st.FetchingReport:
				setSuffix(s, "Loading report...")
			}
		}),
	)

	st, err := session.Run(ctx, start)
	s.Stop()
	if err != nil {
		if st.Phase == model.PhaseError {
			printError(a.status, st.ErrorMessage)
		}
		return fmt.Errorf("analysis of %s: %w", tenderID, err)
	}

	switch st.Phase {
	case model.PhaseCompleted:
		printSuccess(a.status, "Analysis complete")
	case model.PhaseError:
		printError(a.status, "Analysis failed")
	}

	if err := formatter.DisplayOutcome(a.out, tenderID, st, a.format); err != nil {
		return err
	}
	if st.Phase == model.PhaseError {
		return fmt.Errorf("analysis of %s failed: %s", tenderID, st.ErrorMessage)
	}
	return nil
}
