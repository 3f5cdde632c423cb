package llm

import (
	"errors"
	"fmt"
	"testing"
)

func TestTransient_NilErrReturnsNil(t *testing.T) {
	if err := Transient(nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if err := Permanent(nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestIsTransient_DirectWrap(t *testing.T) {
	base := errors.New("rate limited")
	if !IsTransient(Transient(base)) {
		t.Fatal("expected Transient-wrapped error to report transient")
	}
	if IsTransient(Permanent(base)) {
		t.Fatal("expected Permanent-wrapped error to report non-transient")
	}
}

func TestIsTransient_UnwrapsThroughFmtErrorf(t *testing.T) {
	base := Transient(errors.New("timeout"))
	wrapped := fmt.Errorf("chat call failed: %w", base)
	if !IsTransient(wrapped) {
		t.Fatal("expected IsTransient to unwrap through fmt.Errorf's %w")
	}
}

func TestIsTransient_PlainErrorIsNotTransient(t *testing.T) {
	if IsTransient(errors.New("boom")) {
		t.Fatal("expected a plain error to report non-transient")
	}
	if IsTransient(nil) {
		t.Fatal("expected nil to report non-transient")
	}
}
