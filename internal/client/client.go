// Package client talks to the mlbench records service.
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

	"github.com/mlbench/mlbench/internal/database"
	"github.com/mlbench/mlbench/record"
)

// Client wraps HTTP calls to the records API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client targeting the given base URL (e.g. "http://localhost:8080").
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: http.DefaultClient,
	}
}

// APIError is a non-success response from the service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the service.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// ListRecords queries GET /api/v1/records with optional filters.
func (c *Client) ListRecords(ctx context.Context, f database.RecordFilter) ([]database.RecordSummary, error) {
	params := url.Values{}
	if f.Benchmark != "" {
		params.Set("benchmark", f.Benchmark)
	}
	if !f.Since.IsZero() {
		params.Set("since", f.Since.UTC().Format(time.RFC3339))
	}
	if f.Limit > 0 {
		params.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		params.Set("offset", strconv.Itoa(f.Offset))
	}

	u := c.baseURL + "/api/v1/records"
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var items []database.RecordSummary
	if err := c.do(ctx, http.MethodGet, u, nil, http.StatusOK, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// CreateRecord submits POST /api/v1/records.
func (c *Client) CreateRecord(ctx context.Context, rec *record.Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return c.do(ctx, http.MethodPost, c.baseURL+"/api/v1/records", body, http.StatusCreated, nil)
}

// GetRecord fetches GET /api/v1/records/{run}.
func (c *Client) GetRecord(ctx context.Context, run string) (*record.Record, error) {
	var rec record.Record
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/api/v1/records/"+url.PathEscape(run), nil, http.StatusOK, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// DeleteRecord calls DELETE /api/v1/records/{run}.
func (c *Client) DeleteRecord(ctx context.Context, run string) error {
	return c.do(ctx, http.MethodDelete, c.baseURL+"/api/v1/records/"+url.PathEscape(run), nil, http.StatusNoContent, nil)
}

func (c *Client) do(ctx context.Context, method, rawURL string, body []byte, want int, out any) error {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return c.readError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) readError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var apiErr struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
}
