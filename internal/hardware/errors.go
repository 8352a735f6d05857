package hardware

import "errors"

// Domain errors for the hardware package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, hardware.ErrIndexOutOfRange) {
//	    // peer addressed an entry that does not exist
//	}
var (
	// ErrRegistryBuild is returned when the collaborator cannot be opened or
	// has not been opened.
	ErrRegistryBuild = errors.New("hardware: registry build failed")

	// ErrIndexOutOfRange is returned when an index does not address an entry.
	ErrIndexOutOfRange = errors.New("hardware: index out of range")

	// ErrWrongKind is returned when a Control-only operation targets a Fan or
	// Temperature entry.
	ErrWrongKind = errors.New("hardware: wrong kind")

	// ErrNoControlCapability is returned when a Control entry has no usable
	// control handle.
	ErrNoControlCapability = errors.New("hardware: no control capability")

	// ErrClosed is returned by operations on a registry that has been shut down.
	ErrClosed = errors.New("hardware: registry closed")
)
