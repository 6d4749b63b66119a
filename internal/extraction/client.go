package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client calls the external document-understanding service. Its failures are
// surfaced verbatim as *UpstreamError; retry policy belongs to the caller.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// ClientConfig holds client configuration
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewClient creates a new extraction client
func NewClient(config *ClientConfig) *Client {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		apiKey:  config.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Extract submits a document for analysis and returns the raw, unvalidated
// extraction payload.
func (c *Client) Extract(ctx context.Context, documentURI, mimeType string) (*RawReport, error) {
	body, err := json.Marshal(&ExtractRequest{
		DocumentURI: documentURI,
		MimeType:    mimeType,
	})
	if err != nil {
		return nil, &UpstreamError{Message: fmt.Sprintf("failed to marshal request: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/extract", bytes.NewReader(body))
	if err != nil {
		return nil, &UpstreamError{Message: fmt.Sprintf("failed to create request: %v", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UpstreamError{Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read response: %v", err)}
	}

	if resp.StatusCode >= 400 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	var raw RawReport
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("malformed response: %v", err)}
	}

	return &raw, nil
}

// UpstreamError represents a document-understanding service failure.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("extraction upstream error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("extraction upstream error: %s", e.Message)
}
