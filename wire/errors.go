package wire

import "errors"

// ErrParse marks a malformed frame or item header: wrong field count,
// negative length, unknown item kind, or a payload object type token
// that doesn't fit any of the three accepted shapes.
var ErrParse = errors.New("wire: parse error")

// ErrValidation marks a value that's well-formed textually but violates
// a construction invariant: a routing object number outside 0..255, an
// octet outside 0..254, or a payload object type missing both forms
// (or whose forms disagree).
var ErrValidation = errors.New("wire: validation error")
