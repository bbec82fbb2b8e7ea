// Package middleware implements the onion model middleware chain around a
// broker request's "write frame, await terminal outcome" step.
//
// Onion model execution order:
//
//	Chain(A, B, C)(step)  →  A(B(C(step)))
//
//	Request:   A.before → B.before → C.before → step
//	Response:  step → C.after → B.after → A.after
//
// Each middleware can:
//   - Do pre-processing (before calling next)
//   - Call next(ctx, op) to pass to the next layer
//   - Do post-processing (after next returns)
//   - Short-circuit by returning early without calling next
//
// Step stands in for a request/response pair with the broker sync
// façade's single named operation and its (result, error) outcome, since
// a client call has no inbound request to decorate, only an outbound op
// awaiting a terminal reply.
package middleware

import "context"

// Step is one broker call: op names the operation (e.g. "publish",
// "subscribe") for logging and timing; the return value is whatever the
// underlying sync façade call returns.
type Step func(ctx context.Context, op string) (any, error)

// Middleware takes a Step and returns a new Step that wraps it.
type Middleware func(next Step) Step

// Chain composes multiple middlewares into a single middleware, built
// from right to left so the first middleware in the list is the
// outermost layer (executed first on the way in, last on the way out).
//
// Example:
//
//	chain := Chain(LoggingMiddleware(logger), TimeoutMiddleware(5*time.Second))
//	step := chain(rawStep)
func Chain(middlewares ...Middleware) Middleware {
	return func(next Step) Step {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
