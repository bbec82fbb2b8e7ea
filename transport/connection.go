// Package transport implements frame I/O and the correlator: a dedicated
// reader goroutine that continuously decodes inbound frames from a single
// duplex socket and dispatches each one to the handler registered for its
// sequence number, plus a write-serialized path for outbound frames.
//
// One multiplexed TCP connection carries a dedicated reader goroutine and
// a write-serialization mutex, routing each inbound frame to one of three
// shapes: terminal responses, streamed results, and streamed list results.
package transport

import (
	"bufio"
	"fmt"
	"math/rand/v2"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"bw2/message"
	"bw2/wire"
)

// ResponseHandler receives the terminal Response for a request.
type ResponseHandler func(*message.Response)

// ResultHandler receives each streamed Result for a subscribe/query
// request.
type ResultHandler func(*message.Result)

// ListResultHandler receives each streamed ListResult for a list request.
type ListResultHandler func(*message.ListResult)

// Registration is the handler record the correlator stores for one
// pending request: a response handler (every request kind has one) plus,
// mutually exclusively, a result or list-result handler. Unpack is the
// originating request's resolved unpack option and only matters for
// KindStreamResult: it decides whether a delivered Result carries RO/PO,
// independent of anything a "rslt" frame itself carries.
type Registration struct {
	Kind       message.Kind
	Response   ResponseHandler
	Result     ResultHandler
	ListResult ListResultHandler
	Unpack     bool
}

// resultEntry pairs a registered ResultHandler with the unpack option of
// the request that registered it.
type resultEntry struct {
	handler ResultHandler
	unpack  bool
}

// Connection owns the socket, the pending request table (as three
// independently-locked handler tables), the reader goroutine, and the
// write-serialization mutex.
type Connection struct {
	conn   net.Conn
	reader *bufio.Reader
	logger *zap.Logger

	writeMu sync.Mutex

	responses   *table[ResponseHandler]
	results     *table[resultEntry]
	listResults *table[ListResultHandler]

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to the broker at addr, performs the "helo" handshake on
// the calling goroutine, and then starts the background reader. The
// returned Connection is Connected; it transitions to Closed on Close or
// on a reader-side fatal error.
func Dial(addr string, opts ...Option) (*Connection, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	netConn, err := net.DialTimeout("tcp", addr, cfg.dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}

	c := &Connection{
		conn:        netConn,
		reader:      bufio.NewReader(netConn),
		logger:      cfg.logger,
		responses:   newTable[ResponseHandler](),
		results:     newTable[resultEntry](),
		listResults: newTable[ListResultHandler](),
		done:        make(chan struct{}),
	}

	if cfg.handshakeTimeout > 0 {
		_ = netConn.SetReadDeadline(time.Now().Add(cfg.handshakeTimeout))
	}
	helo, err := wire.Decode(c.reader)
	if cfg.handshakeTimeout > 0 {
		_ = netConn.SetReadDeadline(time.Time{})
	}
	if err != nil {
		netConn.Close()
		return nil, fmt.Errorf("%w: reading handshake frame: %v", ErrProtocol, err)
	}
	if helo.Command != "helo" {
		netConn.Close()
		return nil, fmt.Errorf("%w: expected helo, got %q", ErrProtocol, helo.Command)
	}

	c.logger.Debug("broker handshake complete", zap.String("addr", addr))
	go c.dispatchLoop()
	return c, nil
}

// WriteFrame serializes a frame under the write mutex, so two outbound
// frames can never interleave bytes on the wire.
func (c *Connection) WriteFrame(f *wire.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := wire.Encode(c.conn, f); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	}
	return nil
}

// Register inserts a handler record before the frame is written, so a
// reply racing ahead of the caller can never find the table empty.
func (c *Connection) Register(seqNum uint32, reg Registration) {
	c.responses.set(seqNum, reg.Response)
	switch reg.Kind {
	case message.KindStreamResult:
		c.results.set(seqNum, resultEntry{handler: reg.Result, unpack: reg.Unpack})
	case message.KindStreamList:
		c.listResults.set(seqNum, reg.ListResult)
	}
}

// Unregister discards any pending handler entry for seqNum. Used to undo
// a Register call when the frame that would have produced a reply was
// never successfully written, so a transient write error can't leak a
// handler record the reader will now never complete.
func (c *Connection) Unregister(seqNum uint32) {
	c.responses.delete(seqNum)
	c.results.delete(seqNum)
	c.listResults.delete(seqNum)
}

// NextSeqNum draws a uniformly random sequence number and retries on
// collision with a currently pending request. A streaming request's
// response handler is removed when its okay Response arrives while its
// result or list-result handler stays registered, so all three tables
// are checked.
func (c *Connection) NextSeqNum() uint32 {
	for {
		seq := rand.Uint32()
		if !c.responses.has(seq) && !c.results.has(seq) && !c.listResults.has(seq) {
			return seq
		}
	}
}

// dispatchLoop is the dedicated reader: it continuously decodes inbound
// frames and routes each to the handler registered for its seq_num. No
// other goroutine ever reads from the connection.
func (c *Connection) dispatchLoop() {
	defer close(c.done)
	for {
		frame, err := wire.Decode(c.reader)
		if err != nil {
			c.logger.Debug("connection reader exiting", zap.Error(err))
			c.releasePending(err)
			return
		}

		switch frame.Command {
		case "resp":
			c.dispatchResponse(frame)
		case "rslt":
			c.dispatchResult(frame)
		default:
			c.logger.Debug("dropping frame with unhandled command", zap.String("command", frame.Command))
		}
	}
}

func (c *Connection) dispatchResponse(frame *wire.Frame) {
	handler, ok := c.responses.pop(frame.SeqNum)
	if !ok {
		return // no response handler registered: drop silently
	}
	resp := message.ResponseFromFrame(frame)
	if !resp.Okay() {
		// The request is terminated by an error: clean up any
		// result/list-result handler too.
		c.results.delete(frame.SeqNum)
		c.listResults.delete(frame.SeqNum)
	}
	c.invoke("response", frame.SeqNum, func() { handler(resp) })
}

func (c *Connection) dispatchResult(frame *wire.Frame) {
	finishedStr, _ := frame.FirstValue("finished")
	finished := strings.EqualFold(finishedStr, "true")

	if entry, ok := c.results.get(frame.SeqNum); ok {
		if finished {
			c.results.delete(frame.SeqNum)
		}
		result := message.ResultFromFrame(frame, entry.unpack)
		c.invoke("result", frame.SeqNum, func() { entry.handler(result) })
		return
	}
	if handler, ok := c.listResults.get(frame.SeqNum); ok {
		if finished {
			c.listResults.delete(frame.SeqNum)
			c.invoke("list-result", frame.SeqNum, func() { handler(&message.ListResult{Finished: true}) })
			return
		}
		child, _ := frame.FirstValue("child")
		c.invoke("list-result", frame.SeqNum, func() { handler(&message.ListResult{Child: child}) })
	}
}

// invoke runs a handler with panic recovery so a misbehaving handler
// cannot stall the multiplexer: a handler panicking is the caller's bug,
// but the reader goroutine must survive it regardless.
func (c *Connection) invoke(kind string, seqNum uint32, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("recovered panic in request handler",
				zap.String("handlerKind", kind), zap.Uint32("seqNum", seqNum), zap.Any("panic", r))
		}
	}()
	fn()
}

// releasePending implements shutdown: every pending response handler is
// invoked with a connection-closed failure Response, result and
// list-result handlers are dropped without being called, and the three
// tables are emptied so no entries leak.
func (c *Connection) releasePending(cause error) {
	resp := &message.Response{
		Status: "error",
		Reason: fmt.Sprintf("%v: %v", ErrConnectionClosed, cause),
	}
	c.responses.drainAll(func(seq uint32, h ResponseHandler) {
		c.results.delete(seq)
		c.listResults.delete(seq)
		c.invoke("response", seq, func() { h(resp) })
	})
	c.results.drainAll(func(uint32, resultEntry) {})
	c.listResults.drainAll(func(uint32, ListResultHandler) {})
}

// Close tears down the socket. The reader observes the resulting I/O
// error, releases every pending waiter, and exits; Close blocks until
// that teardown has completed.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	<-c.done
	return err
}
