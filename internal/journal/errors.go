package journal

import "errors"

// Domain errors for the override journal.
var (
	// ErrNoSession is returned when a session operation runs before BeginSession.
	ErrNoSession = errors.New("journal: no open session")

	// ErrSessionOpen is returned when BeginSession is called twice.
	ErrSessionOpen = errors.New("journal: session already open")
)
