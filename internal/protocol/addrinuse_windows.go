//go:build windows

package protocol

import (
	"errors"

	"golang.org/x/sys/windows"
)

// isAddrInUse reports whether a bind failed because the port is taken.
// WSAEACCES is what Windows reports for ports held with exclusive use.
func isAddrInUse(err error) bool {
	return errors.Is(err, windows.WSAEADDRINUSE) || errors.Is(err, windows.WSAEACCES)
}
