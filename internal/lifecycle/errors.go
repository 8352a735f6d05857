package lifecycle

import "errors"

// Domain errors for startup and shutdown.
var (
	// ErrStartup wraps any failure before the command loop starts.
	ErrStartup = errors.New("lifecycle: startup failed")

	// ErrSnapshot is returned when the initial snapshot cannot be encoded or sent.
	ErrSnapshot = errors.New("lifecycle: initial snapshot failed")
)
