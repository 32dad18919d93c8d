//go:build linux

package fetcher

import (
	"os"

	"golang.org/x/sys/unix"
)

// preallocate reserves size bytes for f. Failures are ignored.
func preallocate(f *os.File, size int64) {
	if err := unix.Fallocate(int(f.Fd()), 0, 0, size); err != nil {
		_ = f.Truncate(size)
	}
}
