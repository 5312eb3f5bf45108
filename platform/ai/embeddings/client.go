// Package embeddings calls the HTTP embedding service that turns questions
// into vectors for the knowledge index.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"support_router_backend/platform/apperr"
)

const (
	defaultTimeout  = 15 * time.Second
	maxResponseSize = 4 << 20
)

var errEmptyVector = errors.New("embedding response carried no vector")

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Embed returns the vector for text. Network failures and 5xx/429
// responses are transient; other statuses are permanent.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("encode embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Transient("embedding request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, apperr.Transient("read embedding response", err)
	}

	if resp.StatusCode != http.StatusOK {
		upstream := fmt.Errorf("embedding API returned %d: %s", resp.StatusCode, body)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, apperr.Transient("embedding API unavailable", upstream)
		}
		return nil, upstream
	}

	return decodeVector(body)
}

// decodeVector accepts {"vector": [...]} as well as a bare array.
func decodeVector(body []byte) ([]float32, error) {
	var wrapped struct {
		Vector []float32 `json:"vector"`
	}
	if json.Unmarshal(body, &wrapped) == nil && len(wrapped.Vector) > 0 {
		return wrapped.Vector, nil
	}

	var bare []float32
	if json.Unmarshal(body, &bare) == nil && len(bare) > 0 {
		return bare, nil
	}
	return nil, errEmptyVector
}
