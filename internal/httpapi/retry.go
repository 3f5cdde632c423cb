package httpapi

import (
	"context"

	"github.com/FanQ1/Multi-Model-Routing-System/internal/llm"
)

// retryOnceTransient calls fn, and if it fails with a transient upstream
// error, calls it exactly once more before giving up. No backoff: the
// turn already has a deadline on ctx, and a second immediate attempt is
// what the rewrite/route path calls for per spec §7 — not a case for
// pulling in a general-purpose retry library.
func retryOnceTransient(ctx context.Context, fn func(context.Context) error) error {
	err := fn(ctx)
	if err == nil || !llm.IsTransient(err) || ctx.Err() != nil {
		return err
	}
	return fn(ctx)
}
