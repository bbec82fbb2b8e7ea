package broker

import "errors"

// ErrRequestFailed wraps a terminal Response whose status was not "okay".
// The wrapped text carries the response's reason.
var ErrRequestFailed = errors.New("broker: request failed")

// ErrShape marks a synchronous make-entity/make-dot/make-chain call whose
// response carried the wrong number of payload or routing objects.
var ErrShape = errors.New("broker: unexpected response shape")
