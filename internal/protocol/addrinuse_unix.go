//go:build unix

package protocol

import (
	"errors"

	"golang.org/x/sys/unix"
)

// isAddrInUse reports whether a bind failed because the port is taken.
func isAddrInUse(err error) bool {
	return errors.Is(err, unix.EADDRINUSE)
}
