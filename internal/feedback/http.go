package feedback

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

// DefaultTimeout bounds a single feedback call.
const DefaultTimeout = 5 * time.Second

const maxResponseBytes = 64 << 10

// HTTPCollaborator posts the request as JSON to Endpoint and expects
// {"text": "..."} back.
type HTTPCollaborator struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
	Client   *http.Client
}

// NewHTTPCollaborator creates a collaborator for endpoint.
func NewHTTPCollaborator(endpoint, apiKey string, timeout time.Duration) *HTTPCollaborator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPCollaborator{
		Endpoint: endpoint,
		APIKey:   apiKey,
		Timeout:  timeout,
		Client:   &http.Client{},
	}
}

type response struct {
	Text string `json:"text"`
}

func (c *HTTPCollaborator) RequestFeedback(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("feedback: encode request: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("feedback: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("feedback: call %s: %w", c.Endpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("feedback: %s returned %s", c.Endpoint, resp.Status)
	}
	var out response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return "", fmt.Errorf("feedback: decode response: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}
