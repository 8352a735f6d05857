//go:build !unix

package hwmon

import (
	"errors"
	"io/fs"
	"os"
)

func writable(path string) bool {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return false
	}
	f.Close() //nolint:errcheck // existence check only
	return true
}

func isPermission(err error) bool {
	return errors.Is(err, fs.ErrPermission)
}
