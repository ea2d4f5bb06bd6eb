// Package async provides helpers for safe fire-and-forget goroutines.
package async

import (
	"context"
	"log"
	"runtime/debug"
	"time"
)

// SafeGo executes a function in a goroutine with:
// - Context cancellation support
// - Panic recovery
// - Timeout enforcement
// - Error logging
//
// Use this instead of bare `go func()` to prevent goroutine leaks and crashes.
//
// Example:
//
//	SafeGo(r.Context(), 5*time.Second, "usage tracking", func(ctx context.Context) error {
//	    return quotas.RecordTokens(ctx, tenantID, used)
//	})
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				log.Printf("[SafeGo] PANIC in %s: %v\nStack trace:\n%s",
					taskName, r, string(debug.Stack()))
			}
		}()

		if err := fn(ctx); err != nil {
			// Log error but don't crash. Caller decides if this is critical.
			log.Printf("[SafeGo] Error in %s: %v", taskName, err)
		}
	}()
}

// SafeGoDetached is like SafeGo but detaches from the parent context's
// cancellation while keeping its values. Use for work that must outlive
// the request (audit emission after the response is written).
func SafeGoDetached(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	SafeGo(context.WithoutCancel(parentCtx), timeout, taskName, fn)
}
