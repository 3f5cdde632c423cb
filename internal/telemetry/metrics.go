package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics is a thin cache over the global meter's instruments, used by the
// HTTP server's request middleware to emit counters and histograms
// without re-creating instruments per call.
type Metrics struct {
	meter metric.Meter

	mu         sync.RWMutex
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram
}

// NewMetrics constructs a Metrics instance bound to the process's global
// meter provider, registered under the given instrumentation name.
func NewMetrics(name string) *Metrics {
	return &Metrics{
		meter:      otel.Meter(name),
		counters:   make(map[string]metric.Int64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

// IncCounter adds 1 to the named counter, creating it on first use.
func (m *Metrics) IncCounter(ctx context.Context, name string, labels map[string]string) {
	if m == nil {
		return
	}
	c, ok := m.getCounter(name)
	if !ok {
		return
	}
	c.Add(ctx, 1, metric.WithAttributes(toAttrs(labels)...))
}

// ObserveHistogram records value against the named histogram, creating it
// on first use.
func (m *Metrics) ObserveHistogram(ctx context.Context, name string, value float64, labels map[string]string) {
	if m == nil {
		return
	}
	h, ok := m.getHistogram(name)
	if !ok {
		return
	}
	h.Record(ctx, value, metric.WithAttributes(toAttrs(labels)...))
}

func (m *Metrics) getCounter(name string) (metric.Int64Counter, bool) {
	m.mu.RLock()
	c, ok := m.counters[name]
	m.mu.RUnlock()
	if ok {
		return c, true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok = m.counters[name]; ok {
		return c, true
	}
	ctr, err := m.meter.Int64Counter(name)
	if err != nil {
		return ctr, false
	}
	m.counters[name] = ctr
	return ctr, true
}

func (m *Metrics) getHistogram(name string) (metric.Float64Histogram, bool) {
	m.mu.RLock()
	h, ok := m.histograms[name]
	m.mu.RUnlock()
	if ok {
		return h, true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok = m.histograms[name]; ok {
		return h, true
	}
	hist, err := m.meter.Float64Histogram(name)
	if err != nil {
		return hist, false
	}
	m.histograms[name] = hist
	return hist, true
}

func toAttrs(labels map[string]string) []attribute.KeyValue {
	if len(labels) == 0 {
		return nil
	}
	out := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		out = append(out, attribute.String(k, v))
	}
	return out
}
