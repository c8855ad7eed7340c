package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/helmcode/tenderctl/pkg/model"
	"github.com/helmcode/tenderctl/pkg/upload"
)

// ProposalUpload describes one contractor submission.
type ProposalUpload struct {
	TenderID     string
	ContractorID string
	CompanyName  string
	RUC          string
	Principal    string
	Attachments  []string
}

// UploadTender calls POST /tenders/upload with the PDF at path. The file is
// validated locally first and never sent when it fails validation.
func (c *Client) UploadTender(ctx context.Context, path string) (*model.TenderUploadResponse, error) {
	if err := upload.ValidatePDF(path); err != nil {
		return nil, err
	}

	body, contentType := multipartBody([]filePart{{field: "file", path: path}})
	req, err := c.newRequest(ctx, http.MethodPost, "/tenders/upload", body)
	if err != nil {
		body.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	var out model.TenderUploadResponse
	if err := c.send(req, &out); err != nil {
		return nil, fmt.Errorf("failed to upload tender: %w", err)
	}
	return &out, nil
}

// UploadProposal calls POST /proposals/upload/{tender}/{contractor}/{company}/{ruc}.
func (c *Client) UploadProposal(ctx context.Context, p ProposalUpload) (*model.ProposalUploadResponse, error) {
	if p.TenderID == "" || p.ContractorID == "" || p.CompanyName == "" || p.RUC == "" {
		return nil, fmt.Errorf("tender id, contractor id, company name and ruc are required")
	}
	if err := upload.ValidateProposal(p.Principal, p.Attachments); err != nil {
		return nil, err
	}

	parts := []filePart{{field: "principal_file", path: p.Principal}}
	for _, a := range p.Attachments {
		parts = append(parts, filePart{field: "attachment_files", path: a})
	}

	body, contentType := multipartBody(parts)
	path := "/proposals/upload/" + escape(p.TenderID, p.ContractorID, p.CompanyName, p.RUC)
	req, err := c.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		body.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	var out model.ProposalUploadResponse
	if err := c.send(req, &out); err != nil {
		return nil, fmt.Errorf("failed to upload proposal: %w", err)
	}
	return &out, nil
}

// GetTender calls GET /tenders/{tenderId}.
func (c *Client) GetTender(ctx context.Context, tenderID string) (*model.TenderDetails, error) {
	var out model.TenderDetails
	if err := c.getJSON(ctx, "/tenders/"+escape(tenderID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetContractors calls GET /tenders/{tenderId}/contractors.
func (c *Client) GetContractors(ctx context.Context, tenderID string) (*model.ContractorsResponse, error) {
	var out model.ContractorsResponse
	if err := c.getJSON(ctx, "/tenders/"+escape(tenderID)+"/contractors", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetApplication calls GET /tenders/{tenderId}/applications/{proposalId}.
func (c *Client) GetApplication(ctx context.Context, tenderID, proposalID string) (*model.ApplicationDetails, error) {
	var out model.ApplicationDetails
	if err := c.getJSON(ctx, "/tenders/"+escape(tenderID, "applications", proposalID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) (map[string]string, error) {
	var out map[string]string
	if err := c.getJSON(ctx, "/health", &out); err != nil {
		return nil, err
	}
	return out, nil
}
