// Package usageclient submits usage records to the gateway ledger and
// reads the usage report back. It is an explicit dependency: callers
// construct one and pass it where recording is needed.
package usageclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"flashmvp/internal/auth"
	"flashmvp/internal/models"
	"flashmvp/internal/pricing"
	"flashmvp/internal/utils"
)

// DailyCost is one day of the spend trend.
type DailyCost struct {
	Date  string  `json:"date"`
	Calls int64   `json:"calls"`
	Cost  float64 `json:"cost"`
}

// ReportData is the report shape handed to rendering code. All slices
// are non-nil, on failure included, so callers never null-check.
type ReportData struct {
	Summary     models.Summary       `json:"summary"`
	TopFeatures []models.FeatureCost `json:"topFeatures"`
	ModelUsage  []models.ModelCost   `json:"modelUsage"`
	DailyTrend  []DailyCost          `json:"dailyTrend"`
}

func emptyReport() *ReportData {
	return &ReportData{
		TopFeatures: []models.FeatureCost{},
		ModelUsage:  []models.ModelCost{},
		DailyTrend:  []DailyCost{},
	}
}

// Client talks to the gateway's ledger endpoints.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *utils.Logger
	userID  string
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithSessionToken derives the recorded user id from a session token.
func WithSessionToken(token string) Option {
	return func(c *Client) { c.userID = auth.UserIDFromLegacyToken(token) }
}

// WithUserID sets the recorded user id directly.
func WithUserID(userID string) Option {
	return func(c *Client) { c.userID = userID }
}

// New builds a client for the gateway at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  utils.NewLogger("usageclient"),
		userID:  auth.AnonymousUser,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RecordUsage prices a completed AI call and submits it to the ledger.
// An unknown provider/model pair fails before any network traffic. The
// returned cost is the total in USD.
//
// There is no retry or local queueing: a failed submission is lost
// unless the caller retries.
func (c *Client) RecordUsage(ctx context.Context, feature, provider, model string, inputTokens, outputTokens int) (float64, error) {
	cost, err := pricing.Calculate(provider, model, inputTokens, outputTokens)
	if err != nil {
		return 0, err
	}

	record := models.UsageRecord{
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		Feature:      feature,
		Provider:     provider,
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Cost:         cost.TotalCost,
		UserID:       c.userID,
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return 0, fmt.Errorf("failed to encode usage record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/track-usage", bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("usage gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp utils.ErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errResp); decodeErr == nil && errResp.Error != "" {
			return 0, fmt.Errorf("usage submission failed: %s", errResp.Error)
		}
		return 0, fmt.Errorf("usage submission failed: status %d", resp.StatusCode)
	}

	return cost.TotalCost, nil
}

// GetReportData reads the usage report. Any failure yields the empty
// fixed-shape report rather than an error.
func (c *Client) GetReportData(ctx context.Context) *ReportData {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/usage-report", nil)
	if err != nil {
		return emptyReport()
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("usage report fetch failed", "error", err)
		return emptyReport()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("usage report fetch failed", "status", resp.StatusCode)
		return emptyReport()
	}

	report := emptyReport()
	if err := json.NewDecoder(resp.Body).Decode(report); err != nil {
		c.logger.Warn("usage report decode failed", "error", err)
		return emptyReport()
	}

	// Re-normalize: a server that sends explicit nulls must not leak
	// them to rendering code.
	if report.TopFeatures == nil {
		report.TopFeatures = []models.FeatureCost{}
	}
	if report.ModelUsage == nil {
		report.ModelUsage = []models.ModelCost{}
	}
	if report.DailyTrend == nil {
		report.DailyTrend = []DailyCost{}
	}
	return report
}
