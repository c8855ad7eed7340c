package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/helmcode/tenderctl/pkg/model"
	"github.com/helmcode/tenderctl/pkg/parser"
)

// StartAnalysis calls POST /tenders/{tenderId}/analyze.
func (c *Client) StartAnalysis(ctx context.Context, tenderID string) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/tenders/"+escape(tenderID)+"/analyze", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.send(req, nil)
}

// AnalysisStatus calls GET /tenders/{tenderId}/analysis/status.
func (c *Client) AnalysisStatus(ctx context.Context, tenderID string) (*model.AnalysisStatusResponse, error) {
	var out model.AnalysisStatusResponse
	if err := c.getJSON(ctx, "/tenders/"+escape(tenderID)+"/analysis/status", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CurrentStatus calls GET /analysis/current-status.
func (c *Client) CurrentStatus(ctx context.Context) (*model.CurrentStatus, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, "/analysis/current-status", &raw); err != nil {
		return nil, err
	}

	var out model.CurrentStatus
	if len(raw) == 0 {
		return &out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode current status: %w", err)
	}
	if err := json.Unmarshal(raw, &out.Raw); err != nil {
		return nil, fmt.Errorf("decode current status: %w", err)
	}
	return &out, nil
}

// FetchReport calls GET /get-analysis-report.
func (c *Client) FetchReport(ctx context.Context) (*model.AnalysisReport, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, "/get-analysis-report", &raw); err != nil {
		return nil, err
	}
	return parser.ParseReport(raw)
}
