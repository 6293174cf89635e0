// Package oracle adapts the external classification service to a uniform
// request/response contract with retry, rate limiting, and strict response
// validation.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Request is the wire request sent to the classification service.
type Request struct {
	Description string  `json:"description"`
	Currency    string  `json:"currency"`
	Amount      float64 `json:"amount"`
}

// Response is the raw, unvalidated wire response.
type Response struct {
	Category   string  `json:"category"`
	Rationale  string  `json:"rationale"`
	Confidence float64 `json:"confidence"`
}

// Client is the low-level transport to the classification service.
type Client interface {
	Classify(ctx context.Context, req Request) (Response, error)
}

// transientStatus reports whether an HTTP status should be retried.
func transientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// httpClient talks to the classification service over HTTP.
type httpClient struct {
	client   *http.Client
	endpoint string
	apiKey   string
}

// newHTTPClient creates the default transport.
func newHTTPClient(cfg Config) (*httpClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("oracle endpoint is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &httpClient{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// Classify sends one classification request.
func (c *httpClient) Classify(ctx context.Context, request Request) (Response, error) {
	jsonBody, err := json.Marshal(request)
	if err != nil {
		return Response{}, &requestError{fatal: true, err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return Response{}, &requestError{fatal: true, err: fmt.Errorf("failed to create request: %w", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		// Network errors and timeouts are transient.
		return Response{}, &requestError{err: fmt.Errorf("request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, &requestError{err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return Response{}, &requestError{
			fatal: !transientStatus(resp.StatusCode),
			err:   fmt.Errorf("classification service error (status %d): %s", resp.StatusCode, string(body)),
		}
	}

	var response Response
	if err := json.Unmarshal(body, &response); err != nil {
		return Response{}, &requestError{fatal: true, err: fmt.Errorf("failed to parse response: %w", err)}
	}

	return response, nil
}

// requestError carries transport-level transience.
type requestError struct {
	err   error
	fatal bool
}

func (e *requestError) Error() string {
	return e.err.Error()
}

func (e *requestError) Unwrap() error {
	return e.err
}

func isFatalRequest(err error) bool {
	var reqErr *requestError
	return errors.As(err, &reqErr) && reqErr.fatal
}
