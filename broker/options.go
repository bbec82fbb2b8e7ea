package broker

import (
	"time"

	"go.uber.org/zap"

	"bw2/middleware"
	"bw2/transport"
)

// clientConfig collects the optional knobs Connect accepts: transport-level
// dial settings plus the middleware chain wrapped around every blocking
// call the sync façade makes.
type clientConfig struct {
	transportOpts []transport.Option
	middlewares   []middleware.Middleware
}

// Option configures a Connect call.
type Option func(*clientConfig)

// WithTransport passes o through to transport.Dial unchanged, for
// connection-level knobs (WithLogger, WithDialTimeout, WithHandshakeTimeout).
func WithTransport(o transport.Option) Option {
	return func(c *clientConfig) { c.transportOpts = append(c.transportOpts, o) }
}

// WithMiddleware appends mw to the chain wrapped around the sync façade's
// send step. Middlewares run in the order given: the first wraps
// outermost.
func WithMiddleware(mw ...middleware.Middleware) Option {
	return func(c *clientConfig) { c.middlewares = append(c.middlewares, mw...) }
}

// WithLogger wires logger into both the transport's connection-lifecycle
// logging and a LoggingMiddleware entry covering every blocking call.
func WithLogger(logger *zap.Logger) Option {
	return func(c *clientConfig) {
		c.transportOpts = append(c.transportOpts, transport.WithLogger(logger))
		c.middlewares = append(c.middlewares, middleware.LoggingMiddleware(logger))
	}
}

// WithTimeout bounds every blocking sync façade call with a
// TimeoutMiddleware entry. It does not touch the underlying connection;
// a timed-out call's registration is still fulfilled normally if the
// broker eventually replies.
func WithTimeout(d time.Duration) Option {
	return func(c *clientConfig) { c.middlewares = append(c.middlewares, middleware.TimeoutMiddleware(d)) }
}
