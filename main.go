package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/helmcode/tenderctl/cmd"
)

var (
	version = "v0.1.0" // Overwritten at build time
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tenderctl",
		Short: "AI-powered tender proposal analysis",
		Long: `tenderctl uploads tenders and contractor proposals, runs the AI compliance
analysis and shows scores, findings and budget comparisons in the terminal.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Disable automatic 'completion' command added by cobra
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	opts := &cmd.GlobalOptions{}
	opts.Bind(rootCmd)

	// Add subcommands
	rootCmd.AddCommand(
		cmd.NewUploadCmd(opts),
		cmd.NewProposeCmd(opts),
		cmd.NewTenderCmd(opts),
		cmd.NewContractorsCmd(opts),
		cmd.NewAnalyzeCmd(opts),
		cmd.NewWatchCmd(opts),
		cmd.NewStatusCmd(opts),
		cmd.NewReportCmd(opts),
		cmd.NewHealthCmd(opts),
		newVersionCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tenderctl version %s\n", version)
		},
	}
}
