package decide

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hazyhaar/pagelens/capture"
	"github.com/hazyhaar/pagelens/internal/safeurl"
)

// HTTPProvider posts decision requests to a configured endpoint and parses
// the instruction list out of the response. The endpoint is operator
// configuration, so the URL is SSRF-checked once at construction.
type HTTPProvider struct {
	url    string
	client *http.Client
}

// NewHTTPProvider validates the endpoint URL. Loopback targets are
// allowed: local providers are the common deployment.
func NewHTTPProvider(rawURL string, client *http.Client) (*HTTPProvider, error) {
	if err := safeurl.Check(rawURL, true); err != nil {
		return nil, fmt.Errorf("decide: provider url: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: 25 * time.Second}
	}
	return &HTTPProvider{url: rawURL, client: client}, nil
}

// Decide performs one round-trip. Errors are reported as-is; the
// coordinator and manager own the fallback behaviour.
func (p *HTTPProvider) Decide(ctx context.Context, req Request) ([]capture.HighlightInstruction, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("decide: marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("decide: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("decide: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("decide: provider returned %d", resp.StatusCode)
	}

	data, err := safeurl.BoundedRead(resp.Body, safeurl.MaxResponseBody)
	if err != nil {
		return nil, fmt.Errorf("decide: read response: %w", err)
	}

	var parsed Response
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decide: parse response: %w", err)
	}
	return parsed.Instructions, nil
}
