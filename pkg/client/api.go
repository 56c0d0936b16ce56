package client

import (
	"context"
	"net/url"
	"strconv"
	"time"

	app "github.com/turtacn/SafeScan/internal/application/analysis"
	domain "github.com/turtacn/SafeScan/internal/domain/analysis"
	"github.com/turtacn/SafeScan/pkg/errors"
)

const apiPrefix = "/api/v1"

// Request and response shapes are shared with the server.
type (
	AnalyzeRequest       = app.AnalyzeRequest
	AnalyzeResponse      = app.AnalyzeResponse
	ReviewSearchResponse = app.ReviewSearchResponse
	ValidationLogPage    = app.ValidationLogPage
	ReviewInsights       = domain.ReviewInsights
	ReviewSummary        = domain.ReviewSummary
	ValidationStats      = domain.ValidationStats
	FlaggedSubstance     = domain.FlaggedSubstance
)

// ReviewSearchRequest is the body of POST /reviews/search.
type ReviewSearchRequest struct {
	Query        string `json:"query"`
	URLHash      string `json:"url_hash,omitempty"`
	TopK         int    `json:"top_k,omitempty"`
	MinRating    int    `json:"min_rating,omitempty"`
	VerifiedOnly bool   `json:"verified_only,omitempty"`
}

// ValidationLogFilter narrows GET /admin/validation-logs. Zero values are omitted.
type ValidationLogFilter struct {
	Start      time.Time
	End        time.Time
	ProductURL string
	LogType    string
	Limit      int
	Offset     int
}

// Analyze submits a product for analysis.
func (c *Client) Analyze(ctx context.Context, req *AnalyzeRequest) (*AnalyzeResponse, error) {
	if req == nil || req.URL == "" {
		return nil, errors.InvalidParam("url is required")
	}
	var out AnalyzeResponse
	if err := c.post(ctx, apiPrefix+"/analyze", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReviewInsights fetches review insights for a fingerprint.
func (c *Client) ReviewInsights(ctx context.Context, fingerprint string, forceRefresh bool) (*ReviewInsights, error) {
	if fingerprint == "" {
		return nil, errors.InvalidParam("fingerprint is required")
	}
	path := apiPrefix + "/analyze/" + url.PathEscape(fingerprint) + "/reviews"
	if forceRefresh {
		path += "?force_refresh=true"
	}
	var out ReviewInsights
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchReviews runs a keyword search over indexed reviews.
func (c *Client) SearchReviews(ctx context.Context, req *ReviewSearchRequest) (*ReviewSearchResponse, error) {
	if req == nil || req.Query == "" {
		return nil, errors.InvalidParam("query is required")
	}
	var out ReviewSearchResponse
	if err := c.post(ctx, apiPrefix+"/reviews/search", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReviewSummary fetches rating aggregates for a fingerprint.
func (c *Client) ReviewSummary(ctx context.Context, fingerprint string) (*ReviewSummary, error) {
	if fingerprint == "" {
		return nil, errors.InvalidParam("fingerprint is required")
	}
	var out ReviewSummary
	if err := c.get(ctx, apiPrefix+"/reviews/"+url.PathEscape(fingerprint)+"/summary", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ValidationLogs pages through the validation audit log.
func (c *Client) ValidationLogs(ctx context.Context, f ValidationLogFilter) (*ValidationLogPage, error) {
	q := url.Values{}
	if !f.Start.IsZero() {
		q.Set("start_date", f.Start.Format(time.RFC3339))
	}
	if !f.End.IsZero() {
		q.Set("end_date", f.End.Format(time.RFC3339))
	}
	if f.ProductURL != "" {
		q.Set("product_url", f.ProductURL)
	}
	if f.LogType != "" {
		q.Set("log_type", f.LogType)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}
	path := apiPrefix + "/admin/validation-logs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out ValidationLogPage
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ValidationStats fetches accuracy statistics over the last days.
func (c *Client) ValidationStats(ctx context.Context, days int) (*ValidationStats, error) {
	path := apiPrefix + "/admin/validation-stats"
	if days > 0 {
		path += "?days=" + strconv.Itoa(days)
	}
	var out ValidationStats
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FlaggedSubstances lists the most often rejected substances.
func (c *Client) FlaggedSubstances(ctx context.Context, limit int) ([]FlaggedSubstance, error) {
	path := apiPrefix + "/admin/flagged-substances"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []FlaggedSubstance
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}
