//go:build !windows

package monitor

import (
	"os"
	"syscall"
)

// allocatedSize returns the bytes allocated on disk for a file, so sparse
// value log files count what they really use.
func allocatedSize(info os.FileInfo) int64 {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok || stat == nil {
		return info.Size()
	}
	// st_blocks counts 512-byte units regardless of the filesystem block size
	return stat.Blocks * 512
}
