// Package google adapts the Gemini (genai) SDK to the portable
// llm.Provider contract.
package google

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	genai "google.golang.org/genai"

	"github.com/FanQ1/Multi-Model-Routing-System/internal/llm"
)

// Config holds the settings needed to reach the Gemini API.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

type Client struct {
	client *genai.Client
	model  string
}

// New constructs an llm.Provider backed by Gemini's GenerateContent API.
func New(ctx context.Context, cfg Config, httpClient *http.Client) (llm.Provider, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	httpOpts := genai.HTTPOptions{}
	if cfg.Timeout > 0 {
		t := cfg.Timeout
		httpOpts.Timeout = &t
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		httpOpts.BaseURL = strings.TrimSuffix(base, "/") + "/"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		HTTPClient:  httpClient,
		HTTPOptions: httpOpts,
	})
	if err != nil {
		return nil, fmt.Errorf("init google client: %w", err)
	}
	return &Client{client: client, model: cfg.Model}, nil
}

func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	if model == "" {
		return "", llm.Permanent(fmt.Errorf("google: no model specified"))
	}

	contents := make([]*genai.Content, 0, len(req.Messages))
	var system string
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = m.Content
		case "assistant":
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	temp := float32(req.Temperature)
	cfg := &genai.GenerateContentConfig{Temperature: &temp}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return "", llm.Transient(err)
	}
	text := resp.Text()
	if text == "" {
		return "", llm.Transient(fmt.Errorf("google: empty response"))
	}
	return text, nil
}
