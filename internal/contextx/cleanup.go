// Package contextx provides context utilities for scope-exit work.
package contextx

import (
	"context"
	"time"
)

// WithCleanupTimeout derives a context for scope-exit operations (flushing a
// cache entry, releasing a lock) that survives cancellation of the parent.
// The scoped-acquisition contract says these run on every exit path, including
// the one where the caller's context was cancelled mid-block, so the cleanup
// context keeps the parent's values but not its cancellation.
//
// A timeout bounds the cleanup so a dead store cannot block scope exit
// indefinitely. The caller must call the returned cancel function.
func WithCleanupTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), timeout)
}
