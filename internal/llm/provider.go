// Package llm defines the portable, single-turn chat contract the router
// and memory manager use to reach an upstream model, independent of which
// provider SDK backs it.
package llm

import "context"

// Message is one turn of a chat exchange.
type Message struct {
	Role    string // "system" | "user" | "assistant"
	Content string
}

// ChatRequest bundles the parameters every upstream call in this system
// needs: a single user message (rewriter, extractor, decider, and the
// router's own generate all send one), a target model name, and sampling
// knobs. There is no streaming or tool-call surface here — every call site
// in this router is single-turn, per spec §6.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Provider is an upstream LLM backend. Implementations wrap a concrete
// vendor SDK (OpenAI, Anthropic, Google) behind this one call.
type Provider interface {
	// Chat sends req and returns the first choice's text content.
	Chat(ctx context.Context, req ChatRequest) (string, error)
}

// UpstreamError wraps a provider failure. Transient is false for errors
// the caller should not retry (authentication failure, schema mismatch) —
// operator intervention is required — and true for errors worth retrying
// once within the turn (timeout, rate limit, transient network failure).
type UpstreamError struct {
	Transient bool
	Err       error
}

func (e *UpstreamError) Error() string { return e.Err.Error() }
func (e *UpstreamError) Unwrap() error { return e.Err }

// Transient wraps err as a retryable upstream failure.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &UpstreamError{Transient: true, Err: err}
}

// Permanent wraps err as a non-retryable upstream failure.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &UpstreamError{Transient: false, Err: err}
}

// IsTransient reports whether err (or a wrapped cause) is a retryable
// upstream failure.
func IsTransient(err error) bool {
	var ue *UpstreamError
	for err != nil {
		if u, ok := err.(*UpstreamError); ok {
			ue = u
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return ue != nil && ue.Transient
}
