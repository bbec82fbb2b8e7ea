package transport

import "errors"

// ErrProtocol marks a handshake failure: the first frame received after
// dial was not a "helo" command.
var ErrProtocol = errors.New("transport: protocol error")

// ErrConnectionClosed marks a connection-level failure — a socket read
// or write error, or an explicit Close — that terminates every pending
// request on the connection.
var ErrConnectionClosed = errors.New("transport: connection closed")
