// Package providers resolves the configured LLM backend into a concrete
// llm.Provider, mirroring the dispatch shape the teacher uses to pick
// between self-hosted and hosted completion backends.
package providers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/FanQ1/Multi-Model-Routing-System/internal/config"
	"github.com/FanQ1/Multi-Model-Routing-System/internal/llm"
	"github.com/FanQ1/Multi-Model-Routing-System/internal/llm/anthropic"
	"github.com/FanQ1/Multi-Model-Routing-System/internal/llm/google"
	"github.com/FanQ1/Multi-Model-Routing-System/internal/llm/openai"
)

// Build constructs an llm.Provider for vendor ("" selects OpenAI). One
// provider serves the whole process: model records carry no vendor field,
// so every routed model name is sent to this vendor.
func Build(ctx context.Context, cfg config.LLMConfig, vendor string, httpClient *http.Client) (llm.Provider, error) {
	switch vendor {
	case "", "openai":
		return openai.New(openai.Config{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.OpenAI.Model,
			Timeout: cfg.OpenAI.Timeout,
		}, httpClient), nil
	case "anthropic":
		return anthropic.New(anthropic.Config{
			APIKey:  cfg.Anthropic.APIKey,
			BaseURL: cfg.Anthropic.BaseURL,
			Model:   cfg.Anthropic.Model,
			Timeout: cfg.Anthropic.Timeout,
		}, httpClient), nil
	case "google":
		return google.New(ctx, google.Config{
			APIKey:  cfg.Google.APIKey,
			BaseURL: cfg.Google.BaseURL,
			Model:   cfg.Google.Model,
			Timeout: cfg.Google.Timeout,
		}, httpClient)
	default:
		return nil, fmt.Errorf("unsupported llm vendor: %s", vendor)
	}
}
