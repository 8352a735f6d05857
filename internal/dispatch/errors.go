package dispatch

import "errors"

// Domain errors for the command loop. Both end the session.
var (
	// ErrUnknownCommand is returned for a command code outside the protocol.
	// Nothing is written back to the peer.
	ErrUnknownCommand = errors.New("dispatch: unknown command")

	// ErrProtocolViolation is returned for a negative index or value.
	ErrProtocolViolation = errors.New("dispatch: protocol violation")
)
