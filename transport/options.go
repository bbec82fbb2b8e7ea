package transport

import (
	"time"

	"go.uber.org/zap"
)

// config collects the optional knobs Dial accepts, following the
// functional-options idiom for a Dial(addr, opts...) surface.
type config struct {
	logger           *zap.Logger
	dialTimeout      time.Duration
	handshakeTimeout time.Duration
}

// Option configures a Dial call.
type Option func(*config)

func defaultConfig() *config {
	return &config{
		logger:           zap.NewNop(),
		dialTimeout:      10 * time.Second,
		handshakeTimeout: 10 * time.Second,
	}
}

// WithLogger injects a structured logger for connection lifecycle events
// (dial, handshake, dispatch errors, close). Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDialTimeout bounds the initial TCP dial. Defaults to 10s.
func WithDialTimeout(d time.Duration) Option {
	return func(c *config) { c.dialTimeout = d }
}

// WithHandshakeTimeout bounds the wait for the broker's "helo" frame
// after the socket connects. Defaults to 10s.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *config) { c.handshakeTimeout = d }
}
