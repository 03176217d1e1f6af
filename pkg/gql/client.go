package gql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is a minimal GraphQL client for the trip warehouse. It carries no
// retry logic; retries belong to the provider client and to the schedule's
// rerun flag.
type Client struct {
	endpoint string
	secret   string
	http     *http.Client
}

// Error is a single GraphQL error returned by the warehouse.
type Error struct {
	Message    string         `json:"message"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Response is the standard GraphQL response envelope.
type Response struct {
	Data   json.RawMessage `json:"data,omitempty"`
	Errors []Error         `json:"errors,omitempty"`
}

// Err collapses the response's error list into a single error, or nil when
// the request succeeded.
func (r *Response) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return fmt.Errorf("graphql: %s", r.Errors[0].Message)
}

// DecodeData unmarshals the response data into v.
func (r *Response) DecodeData(v any) error {
	if len(r.Data) == 0 {
		return fmt.Errorf("graphql response has no data")
	}
	return json.Unmarshal(r.Data, v)
}

// NewClient creates a warehouse client for the given endpoint. The admin
// secret is sent on every request.
func NewClient(endpoint, adminSecret string) *Client {
	return &Client{
		endpoint: endpoint,
		secret:   adminSecret,
		http: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// WithHTTPClient overrides the underlying HTTP client. Used by tests and
// callers that need custom transports or timeouts.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

// Request posts a query document and decodes the response envelope. An
// error is returned for transport failures and non-200 responses; GraphQL
// errors are surfaced in the response so callers can attach context.
func (c *Client) Request(ctx context.Context, query string) (*Response, error) {
	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept", "application/json")
	if c.secret != "" {
		req.Header.Set("X-Hasura-Admin-Secret", c.secret)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("warehouse request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read warehouse response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("warehouse returned status %d: %s", resp.StatusCode, truncate(raw, 512))
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode warehouse response: %w", err)
	}
	return &out, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
