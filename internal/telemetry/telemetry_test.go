package telemetry

import (
	"context"
	"testing"

	"github.com/FanQ1/Multi-Model-Routing-System/internal/config"
)

func TestSetup_DisabledIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{Enabled: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("no-op shutdown returned an error: %v", err)
	}
}

func TestSetup_EnabledWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{Enabled: true, Endpoint: ""})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("no-op shutdown returned an error: %v", err)
	}
}

func TestMetrics_NilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	m.IncCounter(context.Background(), "requests_total", map[string]string{"model": "x"})
	m.ObserveHistogram(context.Background(), "latency_ms", 12.5, nil)
}

func TestMetrics_CountersAreCachedPerName(t *testing.T) {
	m := NewMetrics("telemetry_test")
	ctx := context.Background()
	m.IncCounter(ctx, "routing_decisions_total", map[string]string{"model": "gpt-4o-mini"})
	m.IncCounter(ctx, "routing_decisions_total", map[string]string{"model": "claude-3-5-sonnet"})

	c1, ok1 := m.getCounter("routing_decisions_total")
	c2, ok2 := m.getCounter("routing_decisions_total")
	if !ok1 || !ok2 {
		t.Fatal("expected getCounter to succeed on a previously created instrument")
	}
	if c1 != c2 {
		t.Fatal("expected the same counter instance to be returned for a repeated name")
	}
}

func TestMetrics_HistogramsAreCachedPerName(t *testing.T) {
	m := NewMetrics("telemetry_test")
	ctx := context.Background()
	m.ObserveHistogram(ctx, "router_latency_ms", 42, nil)

	h1, ok1 := m.getHistogram("router_latency_ms")
	h2, ok2 := m.getHistogram("router_latency_ms")
	if !ok1 || !ok2 {
		t.Fatal("expected getHistogram to succeed on a previously created instrument")
	}
	if h1 != h2 {
		t.Fatal("expected the same histogram instance to be returned for a repeated name")
	}
}

func TestToAttrs_EmptyLabelsReturnsNil(t *testing.T) {
	if got := toAttrs(nil); got != nil {
		t.Fatalf("expected nil for empty labels, got %v", got)
	}
	if got := toAttrs(map[string]string{}); got != nil {
		t.Fatalf("expected nil for empty labels, got %v", got)
	}
}

func TestToAttrs_BuildsOneAttributePerLabel(t *testing.T) {
	got := toAttrs(map[string]string{"model": "gpt-4o-mini"})
	if len(got) != 1 {
		t.Fatalf("expected 1 attribute, got %d", len(got))
	}
	if got[0].Key != "model" || got[0].Value.AsString() != "gpt-4o-mini" {
		t.Fatalf("unexpected attribute: %+v", got[0])
	}
}
