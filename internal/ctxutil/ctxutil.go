// Package ctxutil provides convenience functions for working with
// context.Context objects. vtmaster.Handle.BeginDeactivate uses
// DeadlineBefore to check whether the runtime's process-wide context
// will expire before a VT_RELDISP handshake's own bounded timeout would,
// a case where the normal forced-deactivation timer never gets to fire
// because shutdown tears the loop down first.
package ctxutil

import (
	"context"
	"math"
	"time"
)

// MaxTimeout is the maximum value of time.Duration, approximately 290
// years. Useful on calling timeout-related functions when "no timeout"
// needs to be expressed as a very large one instead of a special case.
const MaxTimeout time.Duration = math.MaxInt64

// OptionalTimeout returns a context and cancel function derived from ctx
// with the specified timeout applied. If timeout is zero or negative
// (meaning unset), no new timeout is applied.
func OptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// Shorten returns a context derived from ctx with its deadline shortened
// by d. If ctx has no deadline, the returned context won't have one
// either.
func Shorten(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	dl, ok := ctx.Deadline()
	if !ok {
		return context.WithCancel(ctx)
	}
	return context.WithDeadline(ctx, dl.Add(-d))
}

// DeadlineBefore reports whether ctx has a deadline that expires before t.
// BeginDeactivate calls this with t set to the VT_RELDISP timeout's own
// expiry, to detect a shutdown context that would cut the handshake off
// before its own timer fires.
func DeadlineBefore(ctx context.Context, t time.Time) bool {
	dl, ok := ctx.Deadline()
	if !ok {
		return false
	}
	return dl.Before(t)
}
