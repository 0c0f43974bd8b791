// Package retry implements the single retry-with-backoff policy shared by
// every external call site (simulator and planning service). One bounded
// loop with a doubling wait; no overlapping in-flight attempts.
package retry

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Do calls op up to attempts times, sleeping wait, 2*wait, 4*wait … between
// failures. It returns nil on the first success, ctx.Err if the context ends
// during a backoff sleep, and the last error once the budget is exhausted.
func Do(ctx context.Context, attempts int, wait time.Duration, op func() error) error {
	var last error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		last = op()
		if last == nil {
			return nil
		}
		if i < attempts-1 {
			log.Printf("[RETRY] attempt %d/%d failed: %v (retrying in %s)", i+1, attempts, last, wait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			wait *= 2
		}
	}
	return fmt.Errorf("after %d attempts: %w", attempts, last)
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, attempts int, wait time.Duration, op func() (T, error)) (T, error) {
	var out T
	err := Do(ctx, attempts, wait, func() error {
		var err error
		out, err = op()
		return err
	})
	return out, err
}
