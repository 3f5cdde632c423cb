package providers

import (
	"context"
	"testing"

	"github.com/FanQ1/Multi-Model-Routing-System/internal/config"
)

func TestBuild_DefaultsToOpenAI(t *testing.T) {
	p, err := Build(context.Background(), config.LLMConfig{}, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected a non-nil provider for an unset vendor")
	}
}

func TestBuild_KnownVendors(t *testing.T) {
	for _, vendor := range []string{"openai", "anthropic", "google"} {
		p, err := Build(context.Background(), config.LLMConfig{}, vendor, nil)
		if err != nil {
			t.Fatalf("vendor %q: unexpected error: %v", vendor, err)
		}
		if p == nil {
			t.Fatalf("vendor %q: expected a non-nil provider", vendor)
		}
	}
}

func TestBuild_UnsupportedVendorErrors(t *testing.T) {
	_, err := Build(context.Background(), config.LLMConfig{}, "cohere", nil)
	if err == nil {
		t.Fatal("expected an error for an unsupported vendor")
	}
}
