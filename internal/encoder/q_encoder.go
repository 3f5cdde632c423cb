package encoder

import (
	"context"
	"fmt"
	"strings"

	"github.com/FanQ1/Multi-Model-Routing-System/internal/embedding"
)

const embeddingDim = 384

// Embedder is the subset of embedding.Client the Q-Encoder depends on.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

var _ Embedder = (*embedding.Client)(nil)

// QEncoder turns a query string into z_Q plus the interpretable feature
// vector the selection explainer (not the similarity score) consumes.
type QEncoder struct {
	embedder Embedder
	proj     *mlp
}

// NewQEncoder loads the 384->256->128 projection from checkpointPath, or
// random weights if unavailable.
func NewQEncoder(embedder Embedder, checkpointPath string, seed int64) *QEncoder {
	return &QEncoder{
		embedder: embedder,
		proj:     loadOrRandomMLP(checkpointPath, embeddingDim, 256, LatentDim, seed),
	}
}

// NewQEncoderWithLoader is like NewQEncoder but tries loader (e.g. an S3
// checkpoint store) before falling back to checkpointPath.
func NewQEncoderWithLoader(ctx context.Context, embedder Embedder, loader CheckpointLoader, checkpointName, checkpointPath string, seed int64) *QEncoder {
	return &QEncoder{
		embedder: embedder,
		proj:     loadFromLoaderOrPath(ctx, loader, checkpointName, checkpointPath, embeddingDim, 256, LatentDim, seed),
	}
}

// Features is the interpretable feature vector: one selection per
// vocabulary, derived from case-insensitive keyword matching against the
// query text.
type Features struct {
	Intent     string // chat, code, math, translation, tool_use
	Domain     string // general, programming, math, finance
	Reasoning  string // low, medium, high
	Risk       string // normal, sensitive, high_risk
	Length     string // short, medium, long
	Preference string // cost, latency, quality
}

// Encode embeds queryText, projects it into Z-space, and derives the
// interpretable feature vector for tenantID (tenant preference only
// affects Features.Preference; unknown tenants fall back to "quality").
func (e *QEncoder) Encode(ctx context.Context, queryText, tenantID string) ([]float32, Features, error) {
	vecs, err := e.embedder.Embed(ctx, []string{queryText})
	if err != nil {
		return nil, Features{}, fmt.Errorf("q-encoder: embed query: %w", err)
	}
	if len(vecs) == 0 {
		return nil, Features{}, fmt.Errorf("q-encoder: embedding endpoint returned no vectors")
	}
	z := e.proj.forward(vecs[0])
	return z, extractFeatures(queryText, tenantID), nil
}

func extractFeatures(query, tenantID string) Features {
	lower := strings.ToLower(query)
	return Features{
		Intent:     classifyIntent(lower),
		Domain:     classifyDomain(lower),
		Reasoning:  classifyReasoning(query, lower),
		Risk:       classifyRisk(lower),
		Length:     classifyLength(query),
		Preference: classifyPreference(tenantID),
	}
}

func classifyIntent(lower string) string {
	switch {
	case containsAny(lower, "translate", "translation"):
		return "translation"
	case containsAny(lower, "function call", "tool call", "invoke", "use the tool", "call the tool"):
		return "tool_use"
	case containsAny(lower, "code", "function", "bug", "compile", "python", "golang", "java"):
		return "code"
	case containsAny(lower, "calculate", "equation", "solve", "math", "integral", "derivative"):
		return "math"
	default:
		return "chat"
	}
}

func classifyDomain(lower string) string {
	switch {
	case containsAny(lower, "revenue", "invoice", "stock", "portfolio", "tax", "accounting"):
		return "finance"
	case containsAny(lower, "proof", "theorem", "integral", "derivative", "equation", "algebra"):
		return "math"
	case containsAny(lower, "code", "function", "compile", "api", "bug", "repository", "stack trace"):
		return "programming"
	default:
		return "general"
	}
}

func classifyReasoning(original, lower string) string {
	switch {
	case containsAny(lower, "step by step", "explain") || len(original) > 200:
		return "high"
	case containsAny(lower, "why", "how"):
		return "medium"
	default:
		return "low"
	}
}

func classifyRisk(lower string) string {
	switch {
	case containsAny(lower, "medical", "diagnosis", "self-harm", "suicide", "weapon", "explosive"):
		return "high_risk"
	case containsAny(lower, "password", "private", "confidential", "ssn", "credit card"):
		return "sensitive"
	default:
		return "normal"
	}
}

func classifyLength(original string) string {
	switch {
	case len(original) > 400:
		return "long"
	case len(original) > 120:
		return "medium"
	default:
		return "short"
	}
}

func classifyPreference(tenantID string) string {
	switch tenantID {
	case "tenant_A":
		return "quality"
	case "tenant_B":
		return "cost"
	case "tenant_C":
		return "latency"
	default:
		return "quality"
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
