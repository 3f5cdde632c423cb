// Package anthropic adapts the Anthropic Messages SDK to the portable
// llm.Provider contract.
package anthropic

import (
	"context"
	"fmt"
	"net/http"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog/log"

	"github.com/FanQ1/Multi-Model-Routing-System/internal/llm"
)

// Config holds the settings needed to reach the Anthropic API.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

type Client struct {
	sdk   sdk.Client
	model string
}

// New constructs an llm.Provider backed by Anthropic's Messages API.
func New(cfg Config, httpClient *http.Client) llm.Provider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithHTTPClient(httpClient)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Client{sdk: sdk.NewClient(opts...), model: cfg.Model}
}

func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	if model == "" {
		return "", llm.Permanent(fmt.Errorf("anthropic: no model specified"))
	}

	var system string
	blocks := make([]sdk.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = m.Content
		case "assistant":
			blocks = append(blocks, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		default:
			blocks = append(blocks, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		}
	}

	params := sdk.MessageNewParams{
		Model:       sdk.Model(model),
		MaxTokens:   int64(req.MaxTokens),
		Temperature: sdk.Float(req.Temperature),
		Messages:    blocks,
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}

	start := time.Now()
	resp, err := c.sdk.Messages.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("model", model).Dur("duration", dur).Msg("anthropic message create failed")
		return "", classify(err)
	}
	for _, block := range resp.Content {
		if text := block.Text; text != "" {
			return text, nil
		}
	}
	return "", llm.Transient(fmt.Errorf("anthropic: no text content in response"))
}

func classify(err error) error {
	var apiErr *sdk.Error
	if as, ok := err.(*sdk.Error); ok {
		apiErr = as
	}
	if apiErr != nil {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusBadRequest, http.StatusNotFound:
			return llm.Permanent(err)
		}
	}
	return llm.Transient(err)
}
