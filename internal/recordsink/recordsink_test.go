package recordsink

import (
	"context"
	"testing"

	"github.com/FanQ1/Multi-Model-Routing-System/internal/capability"
)

func TestMerkleRootEmptyIsSHA256OfEmpty(t *testing.T) {
	got, err := MerkleRoot(nil)
	if err != nil {
		t.Fatalf("MerkleRoot: %v", err)
	}
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got != want {
		t.Fatalf("MerkleRoot(nil) = %s, want %s", got, want)
	}
}

func TestMerkleRootDeterministicRegardlessOfFieldOrder(t *testing.T) {
	a := map[string]any{"b": 2, "a": 1}
	b := map[string]any{"a": 1, "b": 2}
	rootA, err := MerkleRoot([]any{a})
	if err != nil {
		t.Fatalf("MerkleRoot a: %v", err)
	}
	rootB, err := MerkleRoot([]any{b})
	if err != nil {
		t.Fatalf("MerkleRoot b: %v", err)
	}
	if rootA != rootB {
		t.Fatalf("expected map field order to not affect the root: %s != %s", rootA, rootB)
	}
}

func TestMerkleRootDuplicatesLastLeafAtOddLevels(t *testing.T) {
	three, err := MerkleRoot([]any{map[string]any{"i": 1}, map[string]any{"i": 2}, map[string]any{"i": 3}})
	if err != nil {
		t.Fatalf("MerkleRoot three: %v", err)
	}
	threeWithDup, err := MerkleRoot([]any{map[string]any{"i": 1}, map[string]any{"i": 2}, map[string]any{"i": 3}, map[string]any{"i": 3}})
	if err != nil {
		t.Fatalf("MerkleRoot duplicated: %v", err)
	}
	if three != threeWithDup {
		t.Fatalf("expected odd-length input to behave as if the last leaf were duplicated: %s != %s", three, threeWithDup)
	}
}

type fakeStore struct {
	block      int64
	recent     int
	routing    []RoutingRecord
	perf       []PerformanceRecord
	violations []ViolationRecord
}

func (f *fakeStore) NextBlockNumber(ctx context.Context) (int64, error) {
	f.block++
	return f.block, nil
}
func (f *fakeStore) InsertRouting(ctx context.Context, rec RoutingRecord) error {
	f.routing = append(f.routing, rec)
	return nil
}
func (f *fakeStore) InsertPerformance(ctx context.Context, rec PerformanceRecord) error {
	f.perf = append(f.perf, rec)
	return nil
}
func (f *fakeStore) InsertViolation(ctx context.Context, rec ViolationRecord) error {
	f.violations = append(f.violations, rec)
	return nil
}
func (f *fakeStore) RecentRoutingCount(ctx context.Context, modelName string, limit int) (int, error) {
	return f.recent, nil
}

type fakeTrust struct {
	rec capability.Record
}

func (f *fakeTrust) UpdateTrust(ctx context.Context, name string, mutate func(*capability.Record)) error {
	mutate(&f.rec)
	return nil
}
func (f *fakeTrust) Record(name string) (capability.Record, bool) { return f.rec, true }

func TestRecordViolationAppliesPenaltyAndSlash(t *testing.T) {
	store := &fakeStore{}
	trust := &fakeTrust{rec: capability.Record{Name: "m1", TrustScore: 50, Stake: 100}}
	sink := New(store, trust)

	if err := sink.RecordViolation(context.Background(), "m1", "HIGH", 10); err != nil {
		t.Fatalf("RecordViolation: %v", err)
	}
	if trust.rec.TrustScore != 35 {
		t.Fatalf("expected trust score 50-15=35, got %v", trust.rec.TrustScore)
	}
	if trust.rec.Stake != 90 {
		t.Fatalf("expected stake 100-10=90, got %v", trust.rec.Stake)
	}
	if trust.rec.ViolationCount != 1 {
		t.Fatalf("expected violation count 1, got %d", trust.rec.ViolationCount)
	}
	if len(store.violations) != 1 {
		t.Fatalf("expected one violation record persisted, got %d", len(store.violations))
	}
}

func TestRecordPerformanceClampsTrustToRange(t *testing.T) {
	store := &fakeStore{recent: 500}
	trust := &fakeTrust{rec: capability.Record{Name: "m1", TrustScore: 95, AvgLatencyMS: 100}}
	sink := New(store, trust)

	if err := sink.RecordPerformance(context.Background(), "m1", 50, 100); err != nil {
		t.Fatalf("RecordPerformance: %v", err)
	}
	if trust.rec.TrustScore < 0 || trust.rec.TrustScore > 100 {
		t.Fatalf("expected trust score within [0, 100], got %v", trust.rec.TrustScore)
	}
}

func TestRecomputeTrustFormula(t *testing.T) {
	got := recomputeTrust(50, 100, 100, 100, 5, 3)
	// P=40 (latency ratio 1), R=30, U=min(20,1)=1, A=min(10,1)=1 -> new=72
	// trust = 0.7*50 + 0.3*72 = 35 + 21.6 = 56.6
	want := 56.6
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("recomputeTrust = %v, want %v", got, want)
	}
}
