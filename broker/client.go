package broker

import (
	"context"
	"fmt"
	"sync"

	"bw2/message"
	"bw2/middleware"
	"bw2/transport"
	"bw2/wire"
)

// ResponseHandler, ResultHandler, and ListResultHandler are the async
// entry points' callback types, re-exported from transport so callers
// never import that package directly.
type ResponseHandler = transport.ResponseHandler
type ResultHandler = transport.ResultHandler
type ListResultHandler = transport.ListResultHandler

// Client pairs a connected transport.Connection with the request
// builders and the synchronous façade, splitting the multiplexed
// transport from the call-shaping layer on top of it.
type Client struct {
	conn  *transport.Connection
	chain middleware.Middleware
}

// Connect dials addr, performs the helo handshake, and returns a Client
// ready to issue requests.
func Connect(addr string, opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	conn, err := transport.Dial(addr, cfg.transportOpts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, chain: middleware.Chain(cfg.middlewares...)}, nil
}

// Close tears down the underlying connection, releasing every pending
// request with a connection-closed failure.
func (c *Client) Close() error { return c.conn.Close() }

// runStep drives fn through the configured middleware chain, so every
// blocking sync façade call is decorated by the same logging/timeout
// wrappers regardless of which operation it backs.
func (c *Client) runStep(op string, fn func() (*message.Response, error)) (*message.Response, error) {
	step := c.chain(func(ctx context.Context, op string) (any, error) {
		return fn()
	})
	result, err := step(context.Background(), op)
	if err != nil {
		return nil, err
	}
	return result.(*message.Response), nil
}

// send registers a response-only handler, writes f, and blocks for the
// terminal Response, all run as one middleware-decorated step. A write
// failure undoes the registration so no handler record leaks.
func (c *Client) send(op string, f *wire.Frame) (*message.Response, error) {
	return c.runStep(op, func() (*message.Response, error) {
		respCh := make(chan *message.Response, 1)
		c.conn.Register(f.SeqNum, transport.Registration{
			Kind:     message.KindResponseOnly,
			Response: func(r *message.Response) { respCh <- r },
		})
		if err := c.conn.WriteFrame(f); err != nil {
			c.conn.Unregister(f.SeqNum)
			return nil, err
		}
		resp := <-respCh
		if !resp.Okay() {
			return resp, fmt.Errorf("%w: %s", ErrRequestFailed, resp.Reason)
		}
		return resp, nil
	})
}

// asyncSend registers reg and writes f without blocking for the reply. A
// write failure undoes the registration so no handler record leaks.
func (c *Client) asyncSend(f *wire.Frame, reg transport.Registration) error {
	c.conn.Register(f.SeqNum, reg)
	if err := c.conn.WriteFrame(f); err != nil {
		c.conn.Unregister(f.SeqNum)
		return err
	}
	return nil
}

// Publish issues a publish (or persist, if Options.Persist) request and
// blocks until the broker's terminal response arrives.
func (c *Client) Publish(o PublishOptions) error {
	f := buildPublishFrame(c.conn.NextSeqNum(), o)
	_, err := c.send("publish", f)
	return err
}

// AsyncPublish issues a publish/persist request without blocking; onResponse
// receives the terminal Response.
func (c *Client) AsyncPublish(o PublishOptions, onResponse ResponseHandler) error {
	f := buildPublishFrame(c.conn.NextSeqNum(), o)
	return c.asyncSend(f, transport.Registration{Kind: message.KindResponseOnly, Response: onResponse})
}

// Subscribe issues a subscribe request; onResult receives every streamed
// Result for the lifetime of the subscription. The call blocks only until
// the initial terminal Response (accept or reject) arrives.
func (c *Client) Subscribe(o SubscribeOptions, onResult ResultHandler) error {
	f := buildSubscribeFrame(c.conn.NextSeqNum(), o)
	_, err := c.runStep("subscribe", func() (*message.Response, error) {
		respCh := make(chan *message.Response, 1)
		err := c.asyncSend(f, transport.Registration{
			Kind:     message.KindStreamResult,
			Response: func(r *message.Response) { respCh <- r },
			Result:   onResult,
			Unpack:   resolveUnpack(o.Unpack),
		})
		if err != nil {
			return nil, err
		}
		resp := <-respCh
		if !resp.Okay() {
			return resp, fmt.Errorf("%w: %s", ErrRequestFailed, resp.Reason)
		}
		return resp, nil
	})
	return err
}

// AsyncSubscribe issues a subscribe request without blocking at all;
// onResponse receives the initial terminal Response, onResult receives
// every streamed Result.
func (c *Client) AsyncSubscribe(o SubscribeOptions, onResponse ResponseHandler, onResult ResultHandler) error {
	f := buildSubscribeFrame(c.conn.NextSeqNum(), o)
	return c.asyncSend(f, transport.Registration{
		Kind: message.KindStreamResult, Response: onResponse, Result: onResult, Unpack: resolveUnpack(o.Unpack),
	})
}

// Query issues a query request and blocks until the stream terminates,
// returning the accumulated Results in arrival order.
func (c *Client) Query(o QueryOptions) ([]*message.Result, error) {
	f := buildQueryFrame(c.conn.NextSeqNum(), o)
	var mu sync.Mutex
	var results []*message.Result
	_, err := c.runStep("query", func() (*message.Response, error) {
		respCh := make(chan *message.Response, 1)
		werr := c.asyncSend(f, transport.Registration{
			Kind:     message.KindStreamResult,
			Response: func(r *message.Response) { respCh <- r },
			Result: func(r *message.Result) {
				mu.Lock()
				results = append(results, r)
				mu.Unlock()
			},
			Unpack: resolveUnpack(o.Unpack),
		})
		if werr != nil {
			return nil, werr
		}
		resp := <-respCh
		if !resp.Okay() {
			return resp, fmt.Errorf("%w: %s", ErrRequestFailed, resp.Reason)
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	mu.Lock()
	defer mu.Unlock()
	return results, nil
}

// AsyncQuery issues a query request without blocking; onResponse receives
// the terminal Response, onResult receives every streamed Result.
func (c *Client) AsyncQuery(o QueryOptions, onResponse ResponseHandler, onResult ResultHandler) error {
	f := buildQueryFrame(c.conn.NextSeqNum(), o)
	return c.asyncSend(f, transport.Registration{
		Kind: message.KindStreamResult, Response: onResponse, Result: onResult, Unpack: resolveUnpack(o.Unpack),
	})
}

// List issues a list request and blocks until the stream terminates,
// returning the accumulated child URIs in arrival order.
func (c *Client) List(o ListOptions) ([]string, error) {
	f := buildListFrame(c.conn.NextSeqNum(), o)
	var mu sync.Mutex
	var children []string
	_, err := c.runStep("list", func() (*message.Response, error) {
		respCh := make(chan *message.Response, 1)
		werr := c.asyncSend(f, transport.Registration{
			Kind:     message.KindStreamList,
			Response: func(r *message.Response) { respCh <- r },
			ListResult: func(lr *message.ListResult) {
				if lr.Finished {
					return
				}
				mu.Lock()
				children = append(children, lr.Child)
				mu.Unlock()
			},
		})
		if werr != nil {
			return nil, werr
		}
		resp := <-respCh
		if !resp.Okay() {
			return resp, fmt.Errorf("%w: %s", ErrRequestFailed, resp.Reason)
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	mu.Lock()
	defer mu.Unlock()
	return children, nil
}

// AsyncList issues a list request without blocking; onResponse receives
// the terminal Response, onListResult receives every streamed ListResult.
func (c *Client) AsyncList(o ListOptions, onResponse ResponseHandler, onListResult ListResultHandler) error {
	f := buildListFrame(c.conn.NextSeqNum(), o)
	return c.asyncSend(f, transport.Registration{Kind: message.KindStreamList, Response: onResponse, ListResult: onListResult})
}

// SetEntity issues a set-entity request and returns the verifying key
// from the response's "vk" KV.
func (c *Client) SetEntity(o SetEntityOptions) (string, error) {
	f := buildSetEntityFrame(c.conn.NextSeqNum(), o)
	resp, err := c.send("set-entity", f)
	if err != nil {
		return "", err
	}
	vk, _ := resp.FirstValue("vk")
	return vk, nil
}

// AsyncSetEntity issues a set-entity request without blocking.
func (c *Client) AsyncSetEntity(o SetEntityOptions, onResponse ResponseHandler) error {
	f := buildSetEntityFrame(c.conn.NextSeqNum(), o)
	return c.asyncSend(f, transport.Registration{Kind: message.KindResponseOnly, Response: onResponse})
}

// MakeEntity issues a make-entity request and returns the new entity's
// verifying key and raw bytes, taken from the response's single payload
// object. Fails with ErrShape if the response does not carry exactly one.
func (c *Client) MakeEntity(o MakeEntityOptions) (string, []byte, error) {
	f := buildMakeEntityFrame(c.conn.NextSeqNum(), o)
	resp, err := c.send("make-entity", f)
	if err != nil {
		return "", nil, err
	}
	if len(resp.Payload) != 1 {
		return "", nil, fmt.Errorf("%w: expected exactly one payload object in make-entity response, got %d", ErrShape, len(resp.Payload))
	}
	vk, _ := resp.FirstValue("vk")
	return vk, resp.Payload[0].Content, nil
}

// AsyncMakeEntity issues a make-entity request without blocking.
func (c *Client) AsyncMakeEntity(o MakeEntityOptions, onResponse ResponseHandler) error {
	f := buildMakeEntityFrame(c.conn.NextSeqNum(), o)
	return c.asyncSend(f, transport.Registration{Kind: message.KindResponseOnly, Response: onResponse})
}

// MakeDot issues a make-dot request and returns the new dot's hash and
// raw bytes, taken from the response's single payload object. Fails with
// ErrShape if the response does not carry exactly one.
func (c *Client) MakeDot(o MakeDotOptions) (string, []byte, error) {
	f := buildMakeDotFrame(c.conn.NextSeqNum(), o)
	resp, err := c.send("make-dot", f)
	if err != nil {
		return "", nil, err
	}
	if len(resp.Payload) != 1 {
		return "", nil, fmt.Errorf("%w: expected exactly one payload object in make-dot response, got %d", ErrShape, len(resp.Payload))
	}
	hash, _ := resp.FirstValue("hash")
	return hash, resp.Payload[0].Content, nil
}

// AsyncMakeDot issues a make-dot request without blocking.
func (c *Client) AsyncMakeDot(o MakeDotOptions, onResponse ResponseHandler) error {
	f := buildMakeDotFrame(c.conn.NextSeqNum(), o)
	return c.asyncSend(f, transport.Registration{Kind: message.KindResponseOnly, Response: onResponse})
}

// MakeChain issues a make-chain request and returns the new chain's hash
// and its single routing object. Fails with ErrShape if the response
// does not carry exactly one routing object.
func (c *Client) MakeChain(o MakeChainOptions) (string, wire.RoutingObject, error) {
	f := buildMakeChainFrame(c.conn.NextSeqNum(), o)
	resp, err := c.send("make-chain", f)
	if err != nil {
		return "", wire.RoutingObject{}, err
	}
	if len(resp.Routing) != 1 {
		return "", wire.RoutingObject{}, fmt.Errorf("%w: expected exactly one routing object in make-chain response, got %d", ErrShape, len(resp.Routing))
	}
	hash, _ := resp.FirstValue("hash")
	return hash, resp.Routing[0], nil
}

// AsyncMakeChain issues a make-chain request without blocking.
func (c *Client) AsyncMakeChain(o MakeChainOptions, onResponse ResponseHandler) error {
	f := buildMakeChainFrame(c.conn.NextSeqNum(), o)
	return c.asyncSend(f, transport.Registration{Kind: message.KindResponseOnly, Response: onResponse})
}
