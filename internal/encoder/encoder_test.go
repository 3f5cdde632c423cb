package encoder

import (
	"context"
	"testing"

	"github.com/FanQ1/Multi-Model-Routing-System/internal/capability"
)

type stubEmbedder struct {
	vec []float32
	err error
}

func (s stubEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(inputs))
	for i := range out {
		out[i] = s.vec
	}
	return out, nil
}

func TestQEncoderProjectsToLatentDim(t *testing.T) {
	vec := make([]float32, embeddingDim)
	for i := range vec {
		vec[i] = 0.01
	}
	q := NewQEncoder(stubEmbedder{vec: vec}, "", 42)
	z, features, err := q.Encode(context.Background(), "please explain step by step how this works", "tenant_B")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(z) != LatentDim {
		t.Fatalf("expected z_Q of length %d, got %d", LatentDim, len(z))
	}
	if features.Reasoning != "high" {
		t.Fatalf("expected high reasoning for 'explain step by step', got %q", features.Reasoning)
	}
	if features.Preference != "cost" {
		t.Fatalf("expected tenant_B preference cost, got %q", features.Preference)
	}
}

func TestMEncoderProjectsToLatentDim(t *testing.T) {
	m := NewMEncoder("", 7)
	z := m.Encode([capability.Skills]float64{0.6, 0.3, 0.1, 0.5, 0.2})
	if len(z) != LatentDim {
		t.Fatalf("expected z_M of length %d, got %d", LatentDim, len(z))
	}
}

func TestClassifyIntentKeywordMatch(t *testing.T) {
	cases := map[string]string{
		"please translate this sentence": "translation",
		"fix this bug in my golang code":  "code",
		"solve this integral":             "math",
		"call the tool to fetch weather":  "tool_use",
		"hello there":                     "chat",
	}
	for q, want := range cases {
		if got := classifyIntent(q); got != want {
			t.Errorf("classifyIntent(%q) = %q, want %q", q, got, want)
		}
	}
}

func TestDotProduct(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{4, 5, 6}
	got := DotProduct(a, b)
	want := 1*4 + 2*5 + 3*6
	if got != float64(want) {
		t.Fatalf("DotProduct = %v, want %v", got, want)
	}
}
