// Package rerank calls the cross-encoder rerank sidecar.
package rerank

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

// ErrUnavailable marks a transport-level failure. The retrieval engine treats
// it as a signal to keep the original order; an HTTP error response is a real
// error and propagates instead.
var ErrUnavailable = errors.New("rerank service unreachable")

// Ranked is one reranked document position.
type Ranked struct {
	Index int     `json:"index"`
	Score float64 `json:"relevance_score"`
}

// Client is the HTTP client for the rerank sidecar.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a rerank client; an empty baseURL disables reranking.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether a rerank endpoint is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.baseURL != ""
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopK      int      `json:"top_k"`
}

type rerankResponse struct {
	Results []Ranked `json:"results"`
}

// Rerank scores documents against the query and returns them best-first.
func (c *Client) Rerank(ctx context.Context, query string, documents []string, topK int) ([]Ranked, error) {
	if !c.Enabled() {
		return nil, ErrUnavailable
	}

	body, err := json.Marshal(rerankRequest{Query: query, Documents: documents, TopK: topK})
	if err != nil {
		return nil, fmt.Errorf("failed to encode rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("rerank service returned %d: %s", resp.StatusCode, string(detail))
	}

	var decoded rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode rerank response: %w", err)
	}

	for _, r := range decoded.Results {
		if r.Index < 0 || r.Index >= len(documents) {
			return nil, fmt.Errorf("rerank returned out-of-range index %d", r.Index)
		}
	}
	return decoded.Results, nil
}
