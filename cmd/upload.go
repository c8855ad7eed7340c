package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/helmcode/tenderctl/pkg/api"
	"github.com/helmcode/tenderctl/pkg/formatter"
	"github.com/helmcode/tenderctl/pkg/upload"
)

func NewUploadCmd(opts *GlobalOptions) *cobra.Command {
	var (
		analyze bool
		flags   sessionFlags
	)
	cmd := &cobra.Command{
		Use:   "upload FILE",
		Short: "Upload a tender document",
		Long: `Upload a tender PDF (up to 50MB). The file is checked locally before it is
sent.

Examples:
  # Upload a tender
  tenderctl upload ./tender.pdf

  # Upload and analyze right away
  tenderctl upload ./tender.pdf --analyze`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.resolve(cmd)
			if err != nil {
				return err
			}
			path := args[0]

			if err := upload.ValidatePDF(path); err != nil {
				printError(a.status, upload.Message(err))
				return err
			}
			var info *upload.Info
			if i, err := upload.Inspect(path); err != nil {
				a.logger.Debug("inspect pdf", "path", path, "error", err)
			} else {
				info = &i
			}

			s := newSpinner(a.status, fmt.Sprintf("Uploading %s...", filepath.Base(path)))
			s.Start()
			resp, err := a.client.UploadTender(cmd.Context(), path)
			s.Stop()
			if err != nil {
				return err
			}
			printSuccess(a.status, "Tender uploaded")

			if err := formatter.DisplayTenderUpload(a.out, resp, info, a.format); err != nil {
				return err
			}
			if !analyze {
				return nil
			}
			return runSession(cmd.Context(), a, resp.TenderID, flags, true)
		},
	}
	cmd.Flags().BoolVar(&analyze, "analyze", false, "Start the analysis after the upload and follow it")
	flags.bind(cmd)
	return cmd
}

func NewProposeCmd(opts *GlobalOptions) *cobra.Command {
	var p api.ProposalUpload
	cmd := &cobra.Command{
		Use:   "propose TENDER_ID",
		Short: "Upload a contractor proposal for a tender",
		Long: `Upload one principal proposal PDF and any number of attachment PDFs for a
contractor.

Examples:
  tenderctl propose T-1 --contractor C-1 --company "Acme Corp" --ruc 20123456789 \
    --principal offer.pdf --attachment annex-a.pdf --attachment annex-b.pdf`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.resolve(cmd)
			if err != nil {
				return err
			}
			p.TenderID = args[0]

			if err := upload.ValidateProposal(p.Principal, p.Attachments); err != nil {
				printError(a.status, upload.Message(err))
				return err
			}

			s := newSpinner(a.status, fmt.Sprintf("Uploading proposal of %s...", p.CompanyName))
			s.Start()
			resp, err := a.client.UploadProposal(cmd.Context(), p)
			s.Stop()
			if err != nil {
				return err
			}
			printSuccess(a.status, fmt.Sprintf("Uploaded %d files", resp.TotalFiles))
			return formatter.DisplayProposalUpload(a.out, resp, a.format)
		},
	}

	cmd.Flags().StringVar(&p.ContractorID, "contractor", "", "Contractor ID")
	cmd.Flags().StringVar(&p.CompanyName, "company", "", "Company name")
	cmd.Flags().StringVar(&p.RUC, "ruc", "", "Company tax ID (RUC)")
	cmd.Flags().StringVar(&p.Principal, "principal", "", "Principal proposal PDF")
	cmd.Flags().StringArrayVar(&p.Attachments, "attachment", nil, "Attachment PDF (repeatable)")
	_ = cmd.MarkFlagRequired("contractor")
	_ = cmd.MarkFlagRequired("company")
	_ = cmd.MarkFlagRequired("ruc")
	_ = cmd.MarkFlagRequired("principal")
	return cmd
}
