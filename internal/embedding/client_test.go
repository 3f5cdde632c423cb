package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/FanQ1/Multi-Model-Routing-System/internal/config"
)

func writeMinimalEmbedding(w http.ResponseWriter, n int) {
	data := make([]map[string]interface{}, n)
	for i := range data {
		data[i] = map[string]interface{}{"embedding": []float32{0.1, 0.2}}
	}
	b, _ := json.Marshal(map[string]interface{}{"data": data})
	w.Write(b)
}

func TestEmbed_LegacyAuthorizationHeader(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Fatalf("expected Authorization header Bearer secret, got %q", got)
		}
		writeMinimalEmbedding(w, 1)
	}))
	defer ts.Close()

	c := New(config.EmbeddingConfig{BaseURL: ts.URL, Path: "/", Model: "m", APIHeader: "Authorization", APIKey: "secret"})
	out, err := c.Embed(context.Background(), []string{"x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 embedding, got %d", len(out))
	}
}

func TestEmbed_CustomHeader(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "abc" {
			t.Fatalf("expected x-api-key header abc, got %q", got)
		}
		writeMinimalEmbedding(w, 1)
	}))
	defer ts.Close()

	c := New(config.EmbeddingConfig{BaseURL: ts.URL, Path: "/", Model: "m", APIHeader: "x-api-key", APIKey: "abc"})
	if _, err := c.Embed(context.Background(), []string{"x"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEmbed_CountMismatchErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeMinimalEmbedding(w, 1)
	}))
	defer ts.Close()

	c := New(config.EmbeddingConfig{BaseURL: ts.URL, Path: "/", Model: "m"})
	if _, err := c.Embed(context.Background(), []string{"x", "y"}); err == nil {
		t.Fatal("expected count mismatch error")
	}
}

func TestEmbed_NoInputsErrors(t *testing.T) {
	c := New(config.EmbeddingConfig{})
	if _, err := c.Embed(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty inputs")
	}
}
