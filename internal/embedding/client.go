// Package embedding calls the offline sentence-embedding endpoint that
// turns a user query into the 384-dim vector the Q-Encoder and the
// long-term vector store both consume.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/FanQ1/Multi-Model-Routing-System/internal/config"
	"github.com/FanQ1/Multi-Model-Routing-System/internal/logging"
)

type embedReq struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResp struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Client wraps the configured embedding endpoint.
type Client struct {
	cfg  config.EmbeddingConfig
	http *http.Client
}

// New constructs a Client from cfg, instrumenting outbound calls with the
// shared otelhttp transport.
func New(cfg config.EmbeddingConfig) *Client {
	return &Client{cfg: cfg, http: logging.NewHTTPClient(nil)}
}

// Embed calls the configured embedding endpoint and returns one embedding
// vector per input string, in order.
func (c *Client) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("embedding: no inputs")
	}
	reqBody, err := json.Marshal(embedReq{Model: c.cfg.Model, Input: inputs})
	if err != nil {
		return nil, fmt.Errorf("embedding: marshal request: %w", err)
	}

	timeout := c.cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := c.cfg.BaseURL + c.cfg.Path
	req, err := http.NewRequestWithContext(cctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("embedding: build request: %w", err)
	}
	if c.cfg.APIHeader == "Authorization" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	} else if c.cfg.APIHeader != "" {
		req.Header.Set(c.cfg.APIHeader, c.cfg.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding: request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("embedding: read response body: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("embedding: endpoint returned %s: %s", resp.Status, string(bodyBytes))
	}

	var er embedResp
	if err := json.Unmarshal(bodyBytes, &er); err != nil {
		limit := len(bodyBytes)
		if limit > 200 {
			limit = 200
		}
		return nil, fmt.Errorf("embedding: parse response (input count %d, body %q): %w",
			len(inputs), string(bodyBytes[:limit]), err)
	}
	if len(er.Data) != len(inputs) {
		return nil, fmt.Errorf("embedding: unexpected embedding count: got %d, want %d", len(er.Data), len(inputs))
	}

	out := make([][]float32, len(er.Data))
	for i := range er.Data {
		out[i] = er.Data[i].Embedding
	}
	return out, nil
}

// CheckReachability verifies the embedding endpoint is reachable by sending
// a minimal probe request, used during process startup to fail fast.
func (c *Client) CheckReachability(ctx context.Context) error {
	if _, err := c.Embed(ctx, []string{"ping"}); err != nil {
		return fmt.Errorf("embedding: reachability check failed: %w", err)
	}
	return nil
}
