//go:build unix

package hwmon

import (
	"errors"

	"golang.org/x/sys/unix"
)

// writable reports whether the process may write path.
func writable(path string) bool {
	return unix.Access(path, unix.W_OK) == nil
}

// isPermission reports whether err means the attribute cannot be driven by
// this process.
func isPermission(err error) bool {
	return errors.Is(err, unix.EACCES) || errors.Is(err, unix.EPERM) || errors.Is(err, unix.EROFS)
}
