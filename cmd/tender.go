package cmd

import (
	"github.com/spf13/cobra"

	"github.com/helmcode/tenderctl/pkg/formatter"
)

func NewTenderCmd(opts *GlobalOptions) *cobra.Command {
	var proposalID string
	cmd := &cobra.Command{
		Use:   "tender TENDER_ID",
		Short: "Show a tender and its submitted proposals",
		Long: `Show a tender and its submitted proposals.

Examples:
  tenderctl tender T-1

  # Files of one proposal
  tenderctl tender T-1 --proposal C-1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.resolve(cmd)
			if err != nil {
				return err
			}

			if proposalID != "" {
				details, err := a.client.GetApplication(cmd.Context(), args[0], proposalID)
				if err != nil {
					return err
				}
				return formatter.DisplayApplication(a.out, details, a.format)
			}

			tender, err := a.client.GetTender(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return formatter.DisplayTender(a.out, tender, a.format)
		},
	}
	cmd.Flags().StringVar(&proposalID, "proposal", "", "Show the files of one proposal")
	return cmd
}

func NewContractorsCmd(opts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "contractors TENDER_ID",
		Short: "List the contractors that submitted proposals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.resolve(cmd)
			if err != nil {
				return err
			}
			resp, err := a.client.GetContractors(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return formatter.DisplayContractors(a.out, resp, a.format)
		},
	}
}
