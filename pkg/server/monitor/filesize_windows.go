//go:build windows

package monitor

import "os"

// allocatedSize returns the logical size; Windows reports no block count.
func allocatedSize(info os.FileInfo) int64 {
	return info.Size()
}
