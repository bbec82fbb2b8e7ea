// Package wire implements the line-oriented frame protocol spoken between
// a broker client and the broker agent: frame grammar, header layout, and
// key/value, routing-object, and payload-object item encoding.
//
// A frame is a header line followed by zero or more item blocks terminated
// by a line containing exactly "end". All line terminators are a single
// '\n'; lengths in item headers are exact byte counts of the body that
// follows, and every body is followed by one terminator byte that is
// consumed and discarded, not part of the body.
package wire

import (
	"fmt"
)

// KVPair is one key/value item. Keys are short ASCII tokens; values are
// opaque byte strings. Duplicate keys are legal and insertion order is
// preserved — the wire format never deduplicates.
type KVPair struct {
	Key   string
	Value []byte
}

// Frame is the unit of protocol exchange: a command tag, a sequence
// number, and the ordered KV pairs, routing objects, and payload objects
// carried by this frame.
type Frame struct {
	Command string
	SeqNum  uint32
	KV      []KVPair
	Routing []RoutingObject
	Payload []PayloadObject
}

// NewFrame starts an empty frame for the given 4-character command tag.
func NewFrame(command string, seqNum uint32) *Frame {
	return &Frame{Command: command, SeqNum: seqNum}
}

// AddKV appends a key/value item. Value is copied by reference, not
// cloned — callers must not mutate it after adding.
func (f *Frame) AddKV(key string, value []byte) {
	f.KV = append(f.KV, KVPair{Key: key, Value: value})
}

// AddKVString is AddKV for a UTF-8 string value.
func (f *Frame) AddKVString(key, value string) {
	f.AddKV(key, []byte(value))
}

// AddRoutingObject appends a routing object in list order.
func (f *Frame) AddRoutingObject(ro RoutingObject) {
	f.Routing = append(f.Routing, ro)
}

// AddPayloadObject appends a payload object in list order.
func (f *Frame) AddPayloadObject(po PayloadObject) {
	f.Payload = append(f.Payload, po)
}

// FirstValue returns the value of the first KV pair matching key, and
// whether one was found. Later duplicates are left in KV for callers that
// need them; the Correlator only ever wants the first.
func (f *Frame) FirstValue(key string) (string, bool) {
	for _, kv := range f.KV {
		if kv.Key == key {
			return string(kv.Value), true
		}
	}
	return "", false
}

// FirstValueBytes is FirstValue without the string conversion, for values
// that are genuinely opaque bytes (e.g. "dot").
func (f *Frame) FirstValueBytes(key string) ([]byte, bool) {
	for _, kv := range f.KV {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return nil, false
}

// AllValues returns every value for key, in insertion order.
func (f *Frame) AllValues(key string) []string {
	var out []string
	for _, kv := range f.KV {
		if kv.Key == key {
			out = append(out, string(kv.Value))
		}
	}
	return out
}

func (f *Frame) String() string {
	return fmt.Sprintf("Frame{%s seq=%d kv=%d ro=%d po=%d}",
		f.Command, f.SeqNum, len(f.KV), len(f.Routing), len(f.Payload))
}
