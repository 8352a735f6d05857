package protocol

import "errors"

// Sentinel errors for the peer protocol.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNoPortAvailable is returned when every port up to MaxPort is in use.
	ErrNoPortAvailable = errors.New("protocol: no port available")

	// ErrBindFailed is returned when binding fails for a reason other than
	// the address being in use.
	ErrBindFailed = errors.New("protocol: bind failed")

	// ErrAcceptFailed is returned when the listener fails before a peer connects.
	ErrAcceptFailed = errors.New("protocol: accept failed")

	// ErrHandshakeFailed is returned when the peer's check message is missing,
	// truncated, padded or different.
	ErrHandshakeFailed = errors.New("protocol: handshake failed")

	// ErrShortRead is returned when fewer bytes than a full frame arrive.
	ErrShortRead = errors.New("protocol: short read")

	// ErrShortWrite is returned when a frame cannot be written in full.
	ErrShortWrite = errors.New("protocol: short write")

	// ErrNotConnected is returned by frame operations before Accept succeeds.
	ErrNotConnected = errors.New("protocol: no peer connected")
)
