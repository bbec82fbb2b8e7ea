// Package message defines the per-request domain records the correlator
// builds from inbound frames and delivers to caller handlers: terminal
// Responses, streamed Results, and streamed ListResults.
//
// These are the client-facing "envelope" types, shaped around the three
// distinct inbound frame kinds (resp / rslt-with-result / rslt-with-child)
// instead of a single request/response pair.
package message

import "bw2/wire"

// Kind identifies which handler shapes a pending request registered, so
// the Correlator knows which tables to insert it into.
type Kind int

const (
	// KindResponseOnly requests (publish, set-entity, make-entity,
	// make-dot, make-chain) only ever receive a terminal Response.
	KindResponseOnly Kind = iota
	// KindStreamResult requests (subscribe, query) receive a Response
	// plus zero or more Results; a "rslt" frame with finished=true ends the
	// stream (its Result is still delivered and carries no finished marker).
	KindStreamResult
	// KindStreamList requests (list) receive a Response plus zero or more
	// ListResults, terminated by a ListResult with Finished=true.
	KindStreamList
)

// Response is the terminal per-request record: status, human-readable
// reason, and the carrying frame's KV pairs, routing objects, and payload
// objects.
type Response struct {
	Status  string
	Reason  string
	KV      []wire.KVPair
	Routing []wire.RoutingObject
	Payload []wire.PayloadObject
}

// Okay reports whether Status is the literal "okay".
func (r *Response) Okay() bool { return r.Status == "okay" }

// FirstValue returns the first KV value for key, mirroring wire.Frame.
func (r *Response) FirstValue(key string) (string, bool) {
	for _, kv := range r.KV {
		if kv.Key == key {
			return string(kv.Value), true
		}
	}
	return "", false
}

// ResponseFromFrame builds a Response from a "resp" frame.
func ResponseFromFrame(f *wire.Frame) *Response {
	status, _ := f.FirstValue("status")
	reason, _ := f.FirstValue("reason")
	return &Response{
		Status:  status,
		Reason:  reason,
		KV:      f.KV,
		Routing: f.Routing,
		Payload: f.Payload,
	}
}

// Result is a non-terminal per-request record for subscribe/query: the
// publisher identity, the URI it was published on, and — depending on the
// originating request's "unpack" option — either the carrying frame's
// routing/payload objects or none.
type Result struct {
	From    string
	URI     string
	Routing []wire.RoutingObject
	Payload []wire.PayloadObject
}

// ResultFromFrame builds a Result from a "rslt" frame. unpack is the
// originating request's resolved unpack option (default true), not
// anything read off the frame: a Result strips RO/PO regardless of what
// the frame carried when the request that produced it asked for
// unpack=false.
func ResultFromFrame(f *wire.Frame, unpack bool) *Result {
	from, _ := f.FirstValue("from")
	uri, _ := f.FirstValue("uri")
	result := &Result{From: from, URI: uri}
	if unpack {
		result.Routing = f.Routing
		result.Payload = f.Payload
	}
	return result
}

// ListResult is a non-terminal per-request record for list: either a
// single child URI, or the finished sentinel.
type ListResult struct {
	Child    string
	Finished bool
}
