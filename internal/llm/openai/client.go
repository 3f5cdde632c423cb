// Package openai adapts the OpenAI chat-completions SDK to the portable
// llm.Provider contract.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/param"
	"github.com/rs/zerolog/log"

	"github.com/FanQ1/Multi-Model-Routing-System/internal/llm"
)

// Config holds the settings needed to reach an OpenAI-compatible endpoint.
type Config struct {
	APIKey  string
	BaseURL string // empty uses the SDK default (api.openai.com)
	Model   string // fallback model when a request omits one
	Timeout time.Duration
}

type Client struct {
	sdk   sdk.Client
	model string
}

// New constructs an llm.Provider backed by the OpenAI chat completions API.
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
		return "", llm.Permanent(fmt.Errorf("openai: no model specified"))
	}

	params := sdk.ChatCompletionNewParams{
		Model:       sdk.ChatModel(model),
		Messages:    adaptMessages(req.Messages),
		Temperature: param.NewOpt(req.Temperature),
		MaxTokens:   param.NewOpt(int64(req.MaxTokens)),
	}

	start := time.Now()
	comp, err := c.sdk.Chat.Completions.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("model", model).Dur("duration", dur).Msg("openai chat completion failed")
		return "", classify(err)
	}
	if len(comp.Choices) == 0 {
		return "", llm.Transient(fmt.Errorf("openai: empty choices"))
	}
	return comp.Choices[0].Message.Content, nil
}

func adaptMessages(msgs []llm.Message) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			out = append(out, sdk.SystemMessage(m.Content))
		case "assistant":
			out = append(out, sdk.AssistantMessage(m.Content))
		default:
			out = append(out, sdk.UserMessage(m.Content))
		}
	}
	return out
}

// classify maps SDK errors into the transient/permanent split the router's
// retry policy relies on. Authentication and malformed-request failures are
// permanent; anything else (timeouts, 5xx, connection resets) is treated as
// transient so the caller gets its one retry.
func classify(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusBadRequest, http.StatusNotFound:
			return llm.Permanent(err)
		}
	}
	return llm.Transient(err)
}
