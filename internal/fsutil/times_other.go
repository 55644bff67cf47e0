//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package fsutil

import "time"

// FileTimes returns the modification time for both values; access times are
// not portable here.
func FileTimes(path string) (atime, mtime time.Time, err error) {
	return modTimeOnly(path)
}
