package transport

import (
	"net"
	"sync"
	"testing"
	"time"

	"bw2/message"
	"bw2/wire"
)

// fakeBroker accepts exactly one connection and hands it to the test for
// scripting. No mocking framework — a real loopback listener.
func fakeBroker(t *testing.T) (addr string, accept func() net.Conn, closeFn func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	connCh := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			connCh <- conn
		}
	}()
	return ln.Addr().String(), func() net.Conn {
		select {
		case c := <-connCh:
			return c
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for broker-side accept")
			return nil
		}
	}, func() { ln.Close() }
}

func writeHelo(t *testing.T, conn net.Conn) {
	t.Helper()
	if err := wire.Encode(conn, wire.NewFrame("helo", 0)); err != nil {
		t.Fatalf("write helo: %v", err)
	}
}

func TestDialHandshake(t *testing.T) {
	addr, accept, closeLn := fakeBroker(t)
	defer closeLn()

	done := make(chan struct{})
	go func() {
		conn := accept()
		writeHelo(t, conn)
		close(done)
	}()

	c, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()
	<-done
}

func TestDialHandshakeRejectsNonHelo(t *testing.T) {
	addr, accept, closeLn := fakeBroker(t)
	defer closeLn()

	go func() {
		conn := accept()
		wire.Encode(conn, wire.NewFrame("resp", 0))
	}()

	if _, err := Dial(addr); err == nil {
		t.Fatal("expected Dial to fail on non-helo first frame")
	}
}

// dialConnected performs a handshake and returns the Connection plus the
// broker-side conn for scripting further frames.
func dialConnected(t *testing.T) (*Connection, net.Conn, func()) {
	t.Helper()
	addr, accept, closeLn := fakeBroker(t)

	brokerConnCh := make(chan net.Conn, 1)
	go func() {
		conn := accept()
		writeHelo(t, conn)
		brokerConnCh <- conn
	}()

	c, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	brokerConn := <-brokerConnCh
	return c, brokerConn, func() { c.Close(); closeLn() }
}

func TestDispatchResponseOkay(t *testing.T) {
	c, brokerConn, cleanup := dialConnected(t)
	defer cleanup()

	respCh := make(chan *message.Response, 1)
	const seq = uint32(7)
	c.Register(seq, Registration{Kind: message.KindResponseOnly, Response: func(r *message.Response) { respCh <- r }})

	f := wire.NewFrame("resp", seq)
	f.AddKVString("status", "okay")
	if err := wire.Encode(brokerConn, f); err != nil {
		t.Fatalf("write resp: %v", err)
	}

	select {
	case resp := <-respCh:
		if !resp.Okay() {
			t.Fatalf("expected okay response, got status=%q", resp.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for response dispatch")
	}
}

// A Result is stripped of RO/PO based on the unpack option the request
// registered with, not on any "unpack" KV the frame itself carries (P7).
func TestDispatchResultUnpackFromRegistrationNotFrame(t *testing.T) {
	c, brokerConn, cleanup := dialConnected(t)
	defer cleanup()

	const seq = uint32(13)
	resultCh := make(chan *message.Result, 1)
	c.Register(seq, Registration{
		Kind:     message.KindStreamResult,
		Response: func(*message.Response) {},
		Result:   func(r *message.Result) { resultCh <- r },
		Unpack:   false,
	})

	ro, _ := wire.NewRoutingObject(1, []byte("hi"))
	po := wire.NewPayloadObject(wire.EntityPOType, []byte("entity bytes"))
	f := wire.NewFrame("rslt", seq)
	f.AddKVString("from", "vk1")
	f.AddKVString("uri", "a/b")
	f.AddRoutingObject(ro)
	f.AddPayloadObject(po)
	if err := wire.Encode(brokerConn, f); err != nil {
		t.Fatalf("write rslt: %v", err)
	}

	select {
	case result := <-resultCh:
		if len(result.Routing) != 0 || len(result.Payload) != 0 {
			t.Fatalf("expected RO/PO stripped per registration's unpack=false, got ro=%d po=%d", len(result.Routing), len(result.Payload))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for result dispatch")
	}
}

func TestSeqNumUniquenessAgainstPending(t *testing.T) {
	c, _, cleanup := dialConnected(t)
	defer cleanup()

	seen := make(map[uint32]bool)
	for i := 0; i < 256; i++ {
		seq := c.NextSeqNum()
		if seen[seq] {
			t.Fatalf("NextSeqNum returned a collision with a pending request: %d", seq)
		}
		seen[seq] = true
		c.Register(seq, Registration{Kind: message.KindResponseOnly, Response: func(*message.Response) {}})
	}
}

func TestTerminationCleanupOnErrorResponse(t *testing.T) {
	c, brokerConn, cleanup := dialConnected(t)
	defer cleanup()

	const seq = uint32(11)
	respCh := make(chan *message.Response, 1)
	c.Register(seq, Registration{
		Kind:     message.KindStreamResult,
		Response: func(r *message.Response) { respCh <- r },
		Result:   func(*message.Result) {},
	})

	f := wire.NewFrame("resp", seq)
	f.AddKVString("status", "error")
	f.AddKVString("reason", "no perms")
	if err := wire.Encode(brokerConn, f); err != nil {
		t.Fatalf("write resp: %v", err)
	}

	select {
	case resp := <-respCh:
		if resp.Okay() {
			t.Fatal("expected a non-okay response")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for response dispatch")
	}

	if c.results.has(seq) {
		t.Fatal("expected result handler to be removed after non-okay response (P5)")
	}
	if c.responses.has(seq) {
		t.Fatal("expected response handler to be removed after dispatch")
	}
}

func TestStreamingCompletionListResult(t *testing.T) {
	c, brokerConn, cleanup := dialConnected(t)
	defer cleanup()

	const seq = uint32(42)
	var mu sync.Mutex
	var children []string
	respCh := make(chan *message.Response, 1)
	c.Register(seq, Registration{
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

	for _, child := range []string{"a/x", "a/y", "a/z"} {
		f := wire.NewFrame("rslt", seq)
		f.AddKVString("child", child)
		if err := wire.Encode(brokerConn, f); err != nil {
			t.Fatalf("write rslt: %v", err)
		}
	}
	finished := wire.NewFrame("rslt", seq)
	finished.AddKVString("finished", "true")
	if err := wire.Encode(brokerConn, finished); err != nil {
		t.Fatalf("write finished rslt: %v", err)
	}
	resp := wire.NewFrame("resp", seq)
	resp.AddKVString("status", "okay")
	if err := wire.Encode(brokerConn, resp); err != nil {
		t.Fatalf("write resp: %v", err)
	}

	select {
	case r := <-respCh:
		if !r.Okay() {
			t.Fatalf("expected okay terminal response, got %q", r.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for terminal response")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"a/x", "a/y", "a/z"}
	if len(children) != len(want) {
		t.Fatalf("expected %v, got %v", want, children)
	}
	for i := range want {
		if children[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, children)
		}
	}
	if c.listResults.has(seq) {
		t.Fatal("expected list-result handler to be removed after finished=true (P6)")
	}
}

func TestCloseReleasesPendingWaiters(t *testing.T) {
	c, _, cleanup := dialConnected(t)
	defer cleanup()

	respCh := make(chan *message.Response, 1)
	c.Register(99, Registration{Kind: message.KindResponseOnly, Response: func(r *message.Response) { respCh <- r }})

	c.Close()

	select {
	case resp := <-respCh:
		if resp.Okay() {
			t.Fatal("expected connection-closed failure, got okay")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pending waiter release on close")
	}
}
