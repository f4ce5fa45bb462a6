// Package client talks to a running whitelist daemon over its HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/TheMich157/whitelisthub/internal/brand"
)

// AddResult mirrors the add response.
type AddResult struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Username string `json:"username"`
	UUID     string `json:"uuid,omitempty"`
	Mode     string `json:"mode"`
}

// RemoveResult mirrors the remove response.
type RemoveResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// StatusResult mirrors the status response.
type StatusResult struct {
	Success bool     `json:"success"`
	Count   int      `json:"count"`
	Users   []string `json:"users"`
	Mode    string   `json:"mode"`
}

// HealthCheck is one entry of HealthResult.Checks.
type HealthCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthTask is one scheduled task in HealthResult.Tasks.
type HealthTask struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Enabled    bool      `json:"enabled"`
	Running    bool      `json:"running"`
	LastRun    time.Time `json:"last_run"`
	LastError  string    `json:"last_error,omitempty"`
	NextRun    time.Time `json:"next_run"`
	RunCount   int64     `json:"run_count"`
	ErrorCount int64     `json:"error_count"`
}

// HealthResult mirrors the health response.
type HealthResult struct {
	Status      string                 `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Service     string                 `json:"service"`
	Version     string                 `json:"version"`
	Mode        string                 `json:"mode"`
	RCONEnabled bool                   `json:"rcon_enabled"`
	RCONHost    string                 `json:"rcon_host,omitempty"`
	RCONPort    int                    `json:"rcon_port,omitempty"`
	Backend     string                 `json:"backend"`
	Bridge      string                 `json:"bridge"`
	Checks      map[string]HealthCheck `json:"checks"`
	Tasks       []HealthTask           `json:"tasks,omitempty"`
}

// AuditEvent mirrors one audit log entry.
type AuditEvent struct {
	ID        int64          `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source"`
	Action    string         `json:"action"`
	Player    string         `json:"player,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Success   bool           `json:"success"`
	IP        string         `json:"ip,omitempty"`
}

// AuditQuery filters Audit. Zero fields are omitted.
type AuditQuery struct {
	Action string
	Player string
	Since  time.Time
	Limit  int
}

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
	Details    string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("API error (status %d): %s: %s", e.StatusCode, e.Message, e.Details)
	}
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// APIClient is the daemon API surface used by the CLI.
type APIClient interface {
	Add(ctx context.Context, username string) (*AddResult, error)
	Remove(ctx context.Context, username string) (*RemoveResult, error)
	Status(ctx context.Context) (*StatusResult, error)
	Health(ctx context.Context) (*HealthResult, error)
}

// HTTPClient is an HTTP-based implementation of APIClient.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// ClientOption configures the HTTPClient.
type ClientOption func(*HTTPClient)

// WithAPIKey sets the key sent as X-API-Key.
func WithAPIKey(key string) ClientOption {
	return func(c *HTTPClient) {
		c.apiKey = key
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the underlying client, e.g. for custom transports.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewHTTPClient creates a client for the daemon at baseURL.
func NewHTTPClient(baseURL string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// doRequest performs an HTTP request and decodes the JSON response.
func (c *HTTPClient) doRequest(ctx context.Context, method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", brand.UserAgent(brand.Version))
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if json.Unmarshal(respBody, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		// The health endpoint answers 503 with a full report.
		if result != nil && resp.StatusCode == http.StatusServiceUnavailable && path == "/api/health" {
			_ = json.Unmarshal(respBody, result)
		}
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

type usernameBody struct {
	Username string `json:"username"`
}

// Add whitelists username.
func (c *HTTPClient) Add(ctx context.Context, username string) (*AddResult, error) {
	var res AddResult
	if err := c.doRequest(ctx, http.MethodPost, "/api/whitelist/add", usernameBody{username}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Remove removes username from the whitelist.
func (c *HTTPClient) Remove(ctx context.Context, username string) (*RemoveResult, error) {
	var res RemoveResult
	if err := c.doRequest(ctx, http.MethodDelete, "/api/whitelist/remove", usernameBody{username}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Status lists the whitelist.
func (c *HTTPClient) Status(ctx context.Context) (*StatusResult, error) {
	var res StatusResult
	if err := c.doRequest(ctx, http.MethodGet, "/api/whitelist/status", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Health fetches the health report. An unhealthy daemon returns both the
// report and an *APIError with status 503.
func (c *HTTPClient) Health(ctx context.Context) (*HealthResult, error) {
	var res HealthResult
	err := c.doRequest(ctx, http.MethodGet, "/api/health", nil, &res)
	if err != nil && res.Status == "" {
		return nil, err
	}
	return &res, err
}

// Audit queries the audit log.
func (c *HTTPClient) Audit(ctx context.Context, q AuditQuery) ([]AuditEvent, error) {
	v := url.Values{}
	if q.Action != "" {
		v.Set("action", q.Action)
	}
	if q.Player != "" {
		v.Set("player", q.Player)
	}
	if !q.Since.IsZero() {
		v.Set("since", q.Since.Format(time.RFC3339))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	path := "/api/audit"
	if len(v) > 0 {
		path += "?" + v.Encode()
	}

	var res struct {
		Events []AuditEvent `json:"events"`
	}
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return res.Events, nil
}
