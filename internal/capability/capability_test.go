package capability

import (
	"context"
	"testing"
)

func TestUpsertAppendsInRegistrationOrder(t *testing.T) {
	e, err := New(context.Background(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := e.Upsert(context.Background(), "m1", [Skills]int{1, 2, 3, 4, 5}); err != nil {
		t.Fatalf("upsert m1: %v", err)
	}
	if _, err := e.Upsert(context.Background(), "m2", [Skills]int{5, 4, 3, 2, 1}); err != nil {
		t.Fatalf("upsert m2: %v", err)
	}
	got := e.ModelList()
	want := []string{"m1", "m2"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected registration order %v, got %v", want, got)
	}
}

func TestUpsertReplacesExistingRow(t *testing.T) {
	e, _ := New(context.Background(), nil)
	e.Upsert(context.Background(), "m1", [Skills]int{1, 1, 1, 1, 1})
	e.Upsert(context.Background(), "m1", [Skills]int{9, 9, 9, 9, 9})
	ranks, ok := e.RankVector("m1")
	if !ok {
		t.Fatal("expected m1 to exist")
	}
	if ranks != [Skills]int{9, 9, 9, 9, 9} {
		t.Fatalf("expected replaced rank row, got %v", ranks)
	}
	if len(e.ModelList()) != 1 {
		t.Fatalf("expected single row after replace, got %d", len(e.ModelList()))
	}
}

func TestCapabilityVectorBoundedByScaleTarget(t *testing.T) {
	e, _ := New(context.Background(), nil)
	e.Upsert(context.Background(), "m1", [Skills]int{3, 10, 1, 20, 7})
	cap, ok := e.CapabilityVector("m1")
	if !ok {
		t.Fatal("expected m1 to exist")
	}
	maxFound := false
	for _, c := range cap {
		if c < 0 || c > scaleTarget+1e-9 {
			t.Fatalf("capability entry out of bounds [0, %v]: %v", scaleTarget, c)
		}
		if c == scaleTarget {
			maxFound = true
		}
	}
	if !maxFound {
		t.Fatalf("expected at least one entry to equal scale target %v, got %v", scaleTarget, cap)
	}
}

func TestBestRankEntryScoresOne(t *testing.T) {
	row := scoreRow([Skills]int{1, 1, 1, 1, 1})
	for _, v := range row {
		if v != scaleTarget {
			t.Fatalf("expected uniform best row to equal scale target at every entry, got %v", row)
		}
	}
}

func TestRowIndependentOfPeers(t *testing.T) {
	e, _ := New(context.Background(), nil)
	e.Upsert(context.Background(), "m1", [Skills]int{2, 4, 6, 8, 10})
	before, _ := e.CapabilityVector("m1")

	e.Upsert(context.Background(), "m2", [Skills]int{1, 1, 1, 1, 1})
	after, _ := e.CapabilityVector("m1")

	if before != after {
		t.Fatalf("expected m1's capability vector to be unaffected by a new peer; before=%v after=%v", before, after)
	}
}

func TestRemoveDeletesRowAndRecomputes(t *testing.T) {
	e, _ := New(context.Background(), nil)
	e.Upsert(context.Background(), "m1", [Skills]int{1, 2, 3, 4, 5})
	e.Upsert(context.Background(), "m2", [Skills]int{5, 4, 3, 2, 1})

	if err := e.Remove(context.Background(), "m1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := e.RankVector("m1"); ok {
		t.Fatal("expected m1 to be removed")
	}
	if got := e.ModelList(); len(got) != 1 || got[0] != "m2" {
		t.Fatalf("expected only m2 to remain, got %v", got)
	}
}

func TestUnregisteredLookupsReturnNotOK(t *testing.T) {
	e, _ := New(context.Background(), nil)
	if _, ok := e.RankVector("ghost"); ok {
		t.Fatal("expected ok=false for unregistered model")
	}
	if _, ok := e.CapabilityVector("ghost"); ok {
		t.Fatal("expected ok=false for unregistered model")
	}
}
