package recordsink

import (
	"context"
	"testing"
)

func TestLedgerChainVerifiesAfterAppends(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()
	l.RegisterModel("m1", 100)

	if err := l.InsertRouting(ctx, RoutingRecord{ModelName: "m1", SelectedRank: 1}); err != nil {
		t.Fatalf("InsertRouting: %v", err)
	}
	if err := l.InsertPerformance(ctx, PerformanceRecord{ModelName: "m1", SuccessRate: 99}); err != nil {
		t.Fatalf("InsertPerformance: %v", err)
	}
	if err := l.InsertViolation(ctx, ViolationRecord{ModelName: "m1", Severity: "HIGH", SlashAmount: 10}); err != nil {
		t.Fatalf("InsertViolation: %v", err)
	}

	if idx, err := l.VerifyChain(); err != nil {
		t.Fatalf("VerifyChain: block %d: %v", idx, err)
	}

	if l.models["m1"].Stake != 90 {
		t.Fatalf("expected stake slashed to 90, got %v", l.models["m1"].Stake)
	}
	if l.models["m1"].Violations != 1 {
		t.Fatalf("expected 1 violation recorded, got %d", l.models["m1"].Violations)
	}
}

func TestLedgerBlockNumbersAreSequential(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		n, err := l.NextBlockNumber(ctx)
		if err != nil {
			t.Fatalf("NextBlockNumber: %v", err)
		}
		if err := l.InsertRouting(ctx, RoutingRecord{ModelName: "m1", BlockNumber: n}); err != nil {
			t.Fatalf("InsertRouting: %v", err)
		}
	}
	if len(l.blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(l.blocks))
	}
	for i, b := range l.blocks {
		if b.number != int64(i+1) {
			t.Fatalf("block %d has number %d, want %d", i, b.number, i+1)
		}
	}
}

func TestLedgerVerifyModelRequiresRegistration(t *testing.T) {
	l := NewLedger()
	if l.VerifyModel("unknown") {
		t.Fatal("expected VerifyModel to fail for an unregistered model")
	}
	l.RegisterModel("m1", 50)
	if !l.VerifyModel("m1") {
		t.Fatal("expected VerifyModel to succeed for a registered model")
	}
}

func TestLedgerRecentRoutingCountRespectsWindow(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := l.InsertRouting(ctx, RoutingRecord{ModelName: "m1"}); err != nil {
			t.Fatalf("InsertRouting: %v", err)
		}
	}
	n, err := l.RecentRoutingCount(ctx, "m1", 2)
	if err != nil {
		t.Fatalf("RecentRoutingCount: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected count capped at window size 2, got %d", n)
	}
}
