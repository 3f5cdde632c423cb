// Package recordsink implements the Record Sink: append-only routing,
// performance, and violation logs, Merkle-root batching over them, and
// the trust-score/violation-penalty recomputation that feeds back into
// the Capability Engine.
package recordsink

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/FanQ1/Multi-Model-Routing-System/internal/capability"
)

// RoutingRecord is an append-only log entry for a single routing decision.
type RoutingRecord struct {
	ModelName    string
	QueryHash    string
	SelectedRank int
	BlockNumber  int64
	Hash         string
	Timestamp    time.Time
}

// PerformanceRecord is an append-only log entry reporting a model's
// observed performance over a period.
type PerformanceRecord struct {
	ModelName         string
	PromisedLatencyMS float64
	ObservedLatencyMS float64
	SuccessRate       float64 // 0-100
	BlockNumber       int64
	Hash              string
	Timestamp         time.Time
}

// ViolationRecord is an append-only log entry for a policy violation.
type ViolationRecord struct {
	ModelName   string
	Severity    string // HIGH, MEDIUM, LOW
	SlashAmount float64
	BlockNumber int64
	Hash        string
	Timestamp   time.Time
}

// violationPenalty is the trust-score deduction applied per severity.
var violationPenalty = map[string]float64{
	"HIGH":   15,
	"MEDIUM": 8,
	"LOW":    3,
}

// Store persists the three record types and assigns sequential block
// numbers; the Postgres-backed implementation lives in
// internal/persistence/databases.
type Store interface {
	NextBlockNumber(ctx context.Context) (int64, error)
	InsertRouting(ctx context.Context, rec RoutingRecord) error
	InsertPerformance(ctx context.Context, rec PerformanceRecord) error
	InsertViolation(ctx context.Context, rec ViolationRecord) error
	RecentRoutingCount(ctx context.Context, modelName string, limit int) (int, error)
}

// TrustUpdater lets the sink apply recomputed trust scores and violation
// bookkeeping back onto the Capability Engine's model records, without
// this package depending on capability.Engine's concrete type.
type TrustUpdater interface {
	UpdateTrust(ctx context.Context, name string, mutate func(*capability.Record)) error
	Record(name string) (capability.Record, bool)
}

// Sink is the default, Postgres-backed Record Sink. Additional sinks
// (e.g. the hash-chained ledger or a ClickHouse analytics mirror) wrap
// or compose with Sink rather than replacing it.
type Sink struct {
	store     Store
	trust     TrustUpdater
	mirror    *ClickHouseMirror
	publisher *EventPublisher
	ledger    *Ledger
}

// New constructs a Sink with no analytics mirror or event publisher.
func New(store Store, trust TrustUpdater) *Sink {
	return &Sink{store: store, trust: trust}
}

// WithMirror attaches an optional ClickHouse analytics mirror; nil
// disables mirroring.
func (s *Sink) WithMirror(mirror *ClickHouseMirror) *Sink {
	s.mirror = mirror
	return s
}

// WithPublisher attaches an optional Kafka event publisher; nil disables
// publishing.
func (s *Sink) WithPublisher(publisher *EventPublisher) *Sink {
	s.publisher = publisher
	return s
}

// WithLedger attaches an optional hash-chained ledger that mirrors every
// record alongside the primary store, giving operators a second,
// independently-verifiable chain of custody over the same events; nil
// disables it.
func (s *Sink) WithLedger(ledger *Ledger) *Sink {
	s.ledger = ledger
	return s
}

func (s *Sink) mirrorLedger(ctx context.Context, kind string, rec any) {
	if s.ledger == nil {
		return
	}
	switch kind {
	case "routing":
		_ = s.ledger.InsertRouting(ctx, rec.(RoutingRecord))
	case "performance":
		_ = s.ledger.InsertPerformance(ctx, rec.(PerformanceRecord))
	case "violation":
		_ = s.ledger.InsertViolation(ctx, rec.(ViolationRecord))
	}
}

// RecordRouting appends a routing decision log entry.
func (s *Sink) RecordRouting(ctx context.Context, modelName, queryHash string, selectedRank int) error {
	block, err := s.store.NextBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("recordsink: next block number: %w", err)
	}
	rec := RoutingRecord{
		ModelName:    modelName,
		QueryHash:    queryHash,
		SelectedRank: selectedRank,
		BlockNumber:  block,
		Timestamp:    time.Now().UTC(),
	}
	rec.Hash = leafHash(rec)
	if err := s.store.InsertRouting(ctx, rec); err != nil {
		return err
	}
	s.mirror.MirrorRouting(ctx, rec)
	s.publisher.publish(ctx, "routing", rec)
	s.mirrorLedger(ctx, "routing", rec)
	return nil
}

// RecordPerformance appends a performance report and recomputes the
// model's trust score: trust_new = 0.7*trust_old + 0.3*(P+R+U+A),
// clamped to [0, 100].
func (s *Sink) RecordPerformance(ctx context.Context, modelName string, observedLatencyMS, successRate float64) error {
	rec, ok := s.trust.Record(modelName)
	if !ok {
		return fmt.Errorf("recordsink: unknown model %q", modelName)
	}

	block, err := s.store.NextBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("recordsink: next block number: %w", err)
	}
	perf := PerformanceRecord{
		ModelName:         modelName,
		PromisedLatencyMS: rec.AvgLatencyMS,
		ObservedLatencyMS: observedLatencyMS,
		SuccessRate:       successRate,
		BlockNumber:       block,
		Timestamp:         time.Now().UTC(),
	}
	perf.Hash = leafHash(perf)
	if err := s.store.InsertPerformance(ctx, perf); err != nil {
		return fmt.Errorf("recordsink: insert performance: %w", err)
	}
	s.mirror.MirrorPerformance(ctx, perf)
	s.publisher.publish(ctx, "performance", perf)
	s.mirrorLedger(ctx, "performance", perf)

	recentSelections, err := s.store.RecentRoutingCount(ctx, modelName, 100)
	if err != nil {
		return fmt.Errorf("recordsink: recent routing count: %w", err)
	}

	daysSinceRegistration := 0.0
	if rec.RegisteredAtUnix > 0 {
		daysSinceRegistration = time.Since(time.Unix(rec.RegisteredAtUnix, 0)).Hours() / 24
	}

	newTrust := recomputeTrust(rec.TrustScore, rec.AvgLatencyMS, observedLatencyMS, successRate, recentSelections, daysSinceRegistration)
	return s.trust.UpdateTrust(ctx, modelName, func(r *capability.Record) {
		r.TrustScore = newTrust
	})
}

// RecordViolation appends a violation log entry and applies its trust
// and stake penalty.
func (s *Sink) RecordViolation(ctx context.Context, modelName, severity string, slashAmount float64) error {
	penalty, ok := violationPenalty[severity]
	if !ok {
		return fmt.Errorf("recordsink: unknown severity %q", severity)
	}

	block, err := s.store.NextBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("recordsink: next block number: %w", err)
	}
	rec := ViolationRecord{
		ModelName:   modelName,
		Severity:    severity,
		SlashAmount: slashAmount,
		BlockNumber: block,
		Timestamp:   time.Now().UTC(),
	}
	rec.Hash = leafHash(rec)
	if err := s.store.InsertViolation(ctx, rec); err != nil {
		return fmt.Errorf("recordsink: insert violation: %w", err)
	}
	s.mirror.MirrorViolation(ctx, rec)
	s.publisher.publish(ctx, "violation", rec)
	s.mirrorLedger(ctx, "violation", rec)

	return s.trust.UpdateTrust(ctx, modelName, func(r *capability.Record) {
		r.ViolationCount++
		r.Stake -= slashAmount
		r.TrustScore = clamp(r.TrustScore-penalty, 0, 100)
	})
}

// RoutingStats reports, for each registered model, how many of its most
// recent routing records the store returns, capped at 1000, folding the
// original source's get_routing_stats into the sink. window is not used:
// the counts are not limited to a time range.
func (s *Sink) RoutingStats(ctx context.Context, window time.Duration) (map[string]int, error) {
	names := []string{}
	if lister, ok := s.trust.(interface{ ModelList() []string }); ok {
		names = lister.ModelList()
	}
	out := make(map[string]int, len(names))
	for _, name := range names {
		n, err := s.store.RecentRoutingCount(ctx, name, 1000)
		if err != nil {
			return nil, fmt.Errorf("recordsink: routing stats for %q: %w", name, err)
		}
		out[name] = n
	}
	return out, nil
}

// CommitBatch computes and returns a Merkle root over one summary item per
// registered model ({model, count, period}, where count is that model's
// routing records among the store's most recent batchSize for it), folding
// the original source's commit_routing_batch into a read-only roll-up. The
// routing records themselves are not hashed, and period only labels the
// items; it does not select records.
func (s *Sink) CommitBatch(ctx context.Context, period string, batchSize int) (string, error) {
	names := []string{}
	if lister, ok := s.trust.(interface{ ModelList() []string }); ok {
		names = lister.ModelList()
	}
	items := make([]any, 0, len(names))
	for _, name := range names {
		n, err := s.store.RecentRoutingCount(ctx, name, batchSize)
		if err != nil {
			return "", fmt.Errorf("recordsink: commit batch for %q: %w", name, err)
		}
		items = append(items, map[string]any{"model": name, "count": n, "period": period})
	}
	return MerkleRoot(items)
}

func recomputeTrust(trustOld, promisedLatency, observedLatency, successRate float64, recentSelections int, daysSinceRegistration float64) float64 {
	latencyRatio := 1.0
	if observedLatency > 0 {
		latencyRatio = promisedLatency / observedLatency
	}
	p := minF(40, 40*latencyRatio)
	r := 30 * successRate / 100
	u := minF(20, float64(recentSelections)/5)
	a := minF(10, daysSinceRegistration/3)
	newScore := p + r + u + a
	return clamp(0.7*trustOld+0.3*newScore, 0, 100)
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// leafHash JSON-serializes v with sorted keys and returns its SHA-256
// hex digest, matching the hashing convention merkle_root uses for
// leaves.
func leafHash(v any) string {
	b, _ := marshalSorted(v)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// marshalSorted round-trips v through a map so struct field order never
// influences the digest: json.Marshal already emits map keys sorted.
func marshalSorted(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return b, nil
	}
	return json.Marshal(m)
}

// MerkleRoot computes the Merkle root over items: an empty list hashes
// to SHA-256 of empty input; otherwise each item is JSON-serialized with
// sorted keys and hashed, the last leaf is duplicated at odd levels, and
// pairwise hex digests are rehashed until one root remains.
func MerkleRoot(items []any) (string, error) {
	if len(items) == 0 {
		sum := sha256.Sum256(nil)
		return hex.EncodeToString(sum[:]), nil
	}
	leaves := make([]string, len(items))
	for i, item := range items {
		b, err := marshalSorted(item)
		if err != nil {
			return "", fmt.Errorf("recordsink: marshal item %d: %w", i, err)
		}
		sum := sha256.Sum256(b)
		leaves[i] = hex.EncodeToString(sum[:])
	}
	for len(leaves) > 1 {
		if len(leaves)%2 == 1 {
			leaves = append(leaves, leaves[len(leaves)-1])
		}
		next := make([]string, 0, len(leaves)/2)
		for i := 0; i < len(leaves); i += 2 {
			sum := sha256.Sum256([]byte(leaves[i] + leaves[i+1]))
			next = append(next, hex.EncodeToString(sum[:]))
		}
		leaves = next
	}
	return leaves[0], nil
}
