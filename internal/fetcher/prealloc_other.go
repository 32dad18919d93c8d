//go:build !linux

package fetcher

import "os"

// preallocate reserves size bytes for f. Failures are ignored.
func preallocate(f *os.File, size int64) {
	_ = f.Truncate(size)
}
