//go:build linux || darwin || freebsd || netbsd || openbsd

package fsutil

import (
	"time"

	"golang.org/x/sys/unix"
)

// FileTimes returns the access and modification times of path.
func FileTimes(path string) (atime, mtime time.Time, err error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return modTimeOnly(path)
	}
	atime = time.Unix(st.Atim.Unix())
	mtime = time.Unix(st.Mtim.Unix())
	return atime, mtime, nil
}
