package lifecycle

import (
	"os"
	"syscall"
)

// Reason identifies which trigger won the shutdown latch.
type Reason string

// Shutdown reasons.
const (
	ReasonNone       Reason = ""
	ReasonCommand    Reason = "command"
	ReasonInterrupt  Reason = "interrupt"
	ReasonSessionEnd Reason = "session-end"
	ReasonFailure    Reason = "failure"
)

// Graceful reports whether the process should exit with status 0.
func (r Reason) Graceful() bool {
	switch r {
	case ReasonCommand, ReasonInterrupt, ReasonSessionEnd:
		return true
	default:
		return false
	}
}

// ExitCode returns the process exit status for r.
func (r Reason) ExitCode() int {
	if r.Graceful() {
		return 0
	}
	return 1
}

// ReasonForSignal maps a received signal to a shutdown reason. SIGHUP means
// the controlling terminal or user session went away.
func ReasonForSignal(sig os.Signal) Reason {
	if sig == syscall.SIGHUP {
		return ReasonSessionEnd
	}
	return ReasonInterrupt
}

// Signals lists the signals the daemon shuts down on.
func Signals() []os.Signal {
	return []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGHUP}
}
