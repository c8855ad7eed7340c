package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/helmcode/tenderctl/pkg/formatter"
	"github.com/helmcode/tenderctl/pkg/model"
	"github.com/helmcode/tenderctl/pkg/parser"
	"github.com/helmcode/tenderctl/pkg/poller"
)

func NewStatusCmd(opts *GlobalOptions) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "status [TENDER_ID]",
		Short: "Show the analysis status of a tender, or of the backend",
		Long: `Show the analysis status of a tender. Without a tender ID the backend's
current analysis is shown.

Examples:
  tenderctl status T-1

  # Keep polling until the analysis finishes
  tenderctl status T-1 --watch`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.resolve(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if watch {
				var stop context.CancelFunc
				ctx, stop = signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()
			}

			if len(args) == 0 {
				return showCurrentStatus(ctx, a, watch)
			}
			return showTenderStatus(ctx, a, args[0], watch)
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Poll until the analysis finishes")
	return cmd
}

func showTenderStatus(ctx context.Context, a *app, tenderID string, watch bool) error {
	if !watch {
		st, err := a.client.AnalysisStatus(ctx, tenderID)
		if err != nil {
			return err
		}
		return formatter.DisplayStatus(a.out, st, a.format)
	}

	p := poller.New(a.client, tenderID,
		poller.WithInterval(a.cfg.PollInterval),
		poller.WithObserver(a.observer),
		poller.WithErrorHandler(func(err error) { printError(a.status, err.Error()) }),
	)
	_, err := p.Run(ctx, func(st *model.AnalysisStatusResponse) {
		if err := formatter.DisplayStatus(a.out, st, a.format); err != nil {
			a.logger.Warn("display status", "error", err)
		}
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func showCurrentStatus(ctx context.Context, a *app, watch bool) error {
	var lastErr error
	err := poller.Every(ctx, a.cfg.GlobalInterval, func(ctx context.Context) bool {
		st, err := a.client.CurrentStatus(ctx)
		if err != nil {
			lastErr = err
			if !watch {
				return false
			}
			printError(a.status, err.Error())
			return true
		}
		lastErr = nil
		if err := formatter.DisplayCurrentStatus(a.out, st, a.format); err != nil {
			lastErr = err
			return false
		}
		return watch && st.State == model.StateInAnalysis
	})
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		return err
	}
	return lastErr
}

func NewReportCmd(opts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Print the latest analysis report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.resolve(cmd)
			if err != nil {
				return err
			}

			s := newSpinner(a.status, "Loading report...")
			s.Start()
			report, err := a.client.FetchReport(cmd.Context())
			s.Stop()
			if errors.Is(err, parser.ErrReportNotReady) {
				printInfo(a.status, "No analysis report is available yet. Run 'tenderctl analyze TENDER_ID' first.")
				return err
			}
			if err != nil {
				return err
			}
			return formatter.DisplayReport(a.out, report, a.format)
		},
	}
}

func NewHealthCmd(opts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the analysis backend is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.resolve(cmd)
			if err != nil {
				return err
			}
			status, err := a.client.Health(cmd.Context())
			if err != nil {
				printError(a.status, fmt.Sprintf("Backend %s is not reachable", a.client.BaseURL()))
				return err
			}
			if a.format != formatter.FormatHuman {
				return formatter.DisplayHealth(a.out, status, a.format)
			}
			printSuccess(a.out, fmt.Sprintf("Backend %s is %s", a.client.BaseURL(), status["status"]))
			return nil
		},
	}
}
