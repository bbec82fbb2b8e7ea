package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// RoutingObject is a typed binary blob the broker uses for routing and
// authorization decisions. Number must be in 0..255; RoutingObject is
// immutable after construction.
type RoutingObject struct {
	Number  int
	Content []byte
}

// NewRoutingObject validates Number and returns a RoutingObject, or
// ErrValidation if Number is outside 0..255.
func NewRoutingObject(number int, content []byte) (RoutingObject, error) {
	if number < 0 || number > 255 {
		return RoutingObject{}, fmt.Errorf("%w: routing object number %d outside 0..255", ErrValidation, number)
	}
	return RoutingObject{Number: number, Content: content}, nil
}

// PayloadObjectType identifies a payload object's schema. It carries two
// equivalent forms — a dotted 4-octet tuple and a numeric form — at least
// one of which must be present; when both are present they must agree
// under num = (d0<<24)|(d1<<16)|(d2<<8)|d3.
type PayloadObjectType struct {
	hasDotted bool
	dotted    [4]byte
	hasNum    bool
	num       uint32
}

// EntityPOType is the well-known payload object type for entity blobs,
// dotted (0,0,0,50) / numeric 50.
var EntityPOType = mustPOType(NewPayloadObjectType(&[4]byte{0, 0, 0, 50}, numPtr(50)))

func numPtr(n uint32) *uint32 { return &n }

func mustPOType(t PayloadObjectType, err error) PayloadObjectType {
	if err != nil {
		panic(err)
	}
	return t
}

// NewPayloadObjectType constructs a type from an optional dotted tuple and
// an optional numeric id. At least one must be non-nil; dotted octets must
// each be in 0..254; if both are given they must agree (P2).
func NewPayloadObjectType(dotted *[4]byte, num *uint32) (PayloadObjectType, error) {
	if dotted == nil && num == nil {
		return PayloadObjectType{}, fmt.Errorf("%w: payload object type needs a dotted or numeric form", ErrValidation)
	}
	var t PayloadObjectType
	if dotted != nil {
		for _, octet := range dotted {
			if octet >= 255 {
				return PayloadObjectType{}, fmt.Errorf("%w: payload object type octet %d must be < 255", ErrValidation, octet)
			}
		}
		t.hasDotted = true
		t.dotted = *dotted
	}
	if num != nil {
		t.hasNum = true
		t.num = *num
	}
	if t.hasDotted && t.hasNum {
		computed := uint32(t.dotted[0])<<24 | uint32(t.dotted[1])<<16 | uint32(t.dotted[2])<<8 | uint32(t.dotted[3])
		if computed != t.num {
			return PayloadObjectType{}, fmt.Errorf("%w: payload object type dotted %v and numeric %d don't agree", ErrValidation, t.dotted, t.num)
		}
	}
	return t, nil
}

// NewPayloadObjectTypeDotted constructs a dotted-only type.
func NewPayloadObjectTypeDotted(d0, d1, d2, d3 byte) (PayloadObjectType, error) {
	return NewPayloadObjectType(&[4]byte{d0, d1, d2, d3}, nil)
}

// NewPayloadObjectTypeNum constructs a numeric-only type.
func NewPayloadObjectTypeNum(num uint32) (PayloadObjectType, error) {
	return NewPayloadObjectType(nil, &num)
}

// HasDotted reports whether the dotted form was provided.
func (t PayloadObjectType) HasDotted() bool { return t.hasDotted }

// Dotted returns the dotted form and whether it is present.
func (t PayloadObjectType) Dotted() ([4]byte, bool) { return t.dotted, t.hasDotted }

// HasNum reports whether the numeric form was provided.
func (t PayloadObjectType) HasNum() bool { return t.hasNum }

// Num returns the numeric form, computing it from the dotted form if only
// that was supplied.
func (t PayloadObjectType) Num() uint32 {
	if t.hasNum {
		return t.num
	}
	return uint32(t.dotted[0])<<24 | uint32(t.dotted[1])<<16 | uint32(t.dotted[2])<<8 | uint32(t.dotted[3])
}

// Equal reports whether two PayloadObjectTypes carry the same forms and
// values, letting test helpers like go-cmp compare them without reaching
// into the unexported fields directly.
func (t PayloadObjectType) Equal(other PayloadObjectType) bool {
	return t.hasDotted == other.hasDotted && t.dotted == other.dotted &&
		t.hasNum == other.hasNum && t.num == other.num
}

// String renders the wire token: "d0.d1.d2.d3:", ":N", or "d0.d1.d2.d3:N".
func (t PayloadObjectType) String() string {
	var b strings.Builder
	if t.hasDotted {
		fmt.Fprintf(&b, "%d.%d.%d.%d", t.dotted[0], t.dotted[1], t.dotted[2], t.dotted[3])
	}
	b.WriteByte(':')
	if t.hasNum {
		fmt.Fprintf(&b, "%d", t.num)
	}
	return b.String()
}

// ParsePayloadObjectType parses a wire type token of the form ":N",
// "d0.d1.d2.d3:", or "d0.d1.d2.d3:N". Any other shape is ErrParse.
func ParsePayloadObjectType(token string) (PayloadObjectType, error) {
	idx := strings.IndexByte(token, ':')
	if idx < 0 || strings.IndexByte(token[idx+1:], ':') >= 0 {
		return PayloadObjectType{}, fmt.Errorf("%w: payload object type token %q must contain exactly one colon", ErrParse, token)
	}
	dottedPart, numPart := token[:idx], token[idx+1:]

	var dotted *[4]byte
	if dottedPart != "" {
		octets := strings.Split(dottedPart, ".")
		if len(octets) != 4 {
			return PayloadObjectType{}, fmt.Errorf("%w: payload object type dotted part %q must have 4 octets", ErrParse, dottedPart)
		}
		var d [4]byte
		for i, o := range octets {
			n, err := strconv.Atoi(o)
			if err != nil || n < 0 || n > 255 {
				return PayloadObjectType{}, fmt.Errorf("%w: payload object type octet %q invalid", ErrParse, o)
			}
			d[i] = byte(n)
		}
		dotted = &d
	}

	var num *uint32
	if numPart != "" {
		n, err := strconv.ParseUint(numPart, 10, 32)
		if err != nil {
			return PayloadObjectType{}, fmt.Errorf("%w: payload object type numeric part %q invalid", ErrParse, numPart)
		}
		n32 := uint32(n)
		num = &n32
	}

	if dotted == nil && num == nil {
		return PayloadObjectType{}, fmt.Errorf("%w: payload object type token %q has neither form", ErrParse, token)
	}
	t, err := NewPayloadObjectType(dotted, num)
	if err != nil {
		// The token parsed but violates a construction invariant (e.g. an
		// octet of 255, or disagreement between the two forms) — that is
		// a validation error, not a parse error, but it can only surface
		// while parsing an inbound frame, so it is reported as ErrParse
		// wrapping the underlying ErrValidation for callers that want both.
		return PayloadObjectType{}, fmt.Errorf("%w: %w", ErrParse, err)
	}
	return t, nil
}

// PayloadObject is a typed binary blob carrying application data,
// immutable after construction.
type PayloadObject struct {
	Type    PayloadObjectType
	Content []byte
}

// NewPayloadObject constructs a payload object of the given type.
func NewPayloadObject(t PayloadObjectType, content []byte) PayloadObject {
	return PayloadObject{Type: t, Content: content}
}
