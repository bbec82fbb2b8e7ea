package middleware

import (
	"context"
	"fmt"
	"time"
)

// TimeoutMiddleware enforces a maximum duration for each broker call.
// It only bounds the caller's wait; it does not touch the pending
// request table, so a late reply still finds its handler and completes
// normally, and the table entry is removed by the correlator exactly as
// it would be without a timeout.
//
// Implementation:
//  1. Create a context with timeout (ctx.Done() fires when timeout expires)
//  2. Run the next step in a goroutine, sending its result to a channel
//  3. Select between the result channel and ctx.Done()
//
// The step goroutine is NOT cancelled on timeout — it keeps running so
// the Correlator's registration stays intact; only the caller stops
// waiting for it.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next Step) Step {
		return func(ctx context.Context, op string) (any, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			type outcome struct {
				result any
				err    error
			}
			done := make(chan outcome, 1)
			go func() {
				result, err := next(ctx, op)
				done <- outcome{result, err}
			}()

			select {
			case o := <-done:
				return o.result, o.err
			case <-ctx.Done():
				return nil, fmt.Errorf("broker: %s timed out after %s", op, timeout)
			}
		}
	}
}
