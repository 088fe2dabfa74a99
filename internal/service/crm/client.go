package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/outdial/outdial/internal/domain/errors"
	"github.com/outdial/outdial/internal/infrastructure/config"
)

// LeadRequest describes a lead to create when a callee expresses interest.
type LeadRequest struct {
	Phone   string `json:"phone"`
	Name    string `json:"name"`
	Source  string `json:"source"`
	Comment string `json:"comment"`
}

// Client creates leads in the CRM.
type Client interface {
	CreateLead(ctx context.Context, req LeadRequest) (string, error)
}

// HTTPClient posts leads to the CRM's REST endpoint.
type HTTPClient struct {
	cfg    config.CRMConfig
	client *http.Client
	logger *zap.Logger
}

func NewHTTPClient(cfg config.CRMConfig, logger *zap.Logger) *HTTPClient {
	return &HTTPClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

func (c *HTTPClient) CreateLead(ctx context.Context, req LeadRequest) (string, error) {
	if req.Source == "" {
		req.Source = c.cfg.Source
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", errors.NewInternalError("failed to marshal lead").WithCause(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", errors.NewInternalError("failed to build lead request").WithCause(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", errors.NewExternalError("crm", "lead creation request failed").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.NewExternalError("crm",
			fmt.Sprintf("lead creation returned status %d", resp.StatusCode))
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", errors.NewExternalError("crm", "failed to decode lead response").WithCause(err)
	}

	c.logger.Info("lead created", zap.String("lead_id", out.ID), zap.String("phone", req.Phone))
	return out.ID, nil
}
