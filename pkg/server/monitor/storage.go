package monitor

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"time"
)

// ErrStorageFull is returned by CheckLimit once the data directory reaches its limit.
var ErrStorageFull = errors.New("storage limit reached")

// StorageUsage is a snapshot of the data directory size.
type StorageUsage struct {
	DataDir     string  `json:"data_dir"`
	UsedBytes   int64   `json:"used_bytes"`
	MaxBytes    int64   `json:"max_bytes"`
	UsedPercent float64 `json:"used_percent"`
}

// StorageMonitor tracks the size of a local data directory. Sizes are cached
// for cacheDuration because walking a badger directory is not free.
type StorageMonitor struct {
	dataDir       string
	maxBytes      int64
	cachedUsage   int64
	lastCheck     time.Time
	cacheDuration time.Duration
	mu            sync.Mutex
}

// NewStorageMonitor creates a monitor for dataDir. maxBytes <= 0 disables the limit.
func NewStorageMonitor(dataDir string, maxBytes int64) *StorageMonitor {
	return &StorageMonitor{
		dataDir:       dataDir,
		maxBytes:      maxBytes,
		cacheDuration: 10 * time.Second,
	}
}

// Usage returns the current usage of the data directory.
func (sm *StorageMonitor) Usage() (StorageUsage, error) {
	used, err := sm.usedBytes()
	if err != nil {
		return StorageUsage{}, err
	}
	u := StorageUsage{DataDir: sm.dataDir, UsedBytes: used, MaxBytes: sm.maxBytes}
	if sm.maxBytes > 0 {
		u.UsedPercent = float64(used) * 100 / float64(sm.maxBytes)
	}
	return u, nil
}

// CheckLimit fails with ErrStorageFull when usage has reached the limit.
func (sm *StorageMonitor) CheckLimit() error {
	if sm.maxBytes <= 0 {
		return nil
	}
	used, err := sm.usedBytes()
	if err != nil {
		return fmt.Errorf("failed to check storage usage: %w", err)
	}
	if used >= sm.maxBytes {
		return fmt.Errorf("%w: %d of %d bytes used", ErrStorageFull, used, sm.maxBytes)
	}
	return nil
}

// Limit returns the configured limit in bytes.
func (sm *StorageMonitor) Limit() int64 {
	return sm.maxBytes
}

func (sm *StorageMonitor) usedBytes() (int64, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.lastCheck.IsZero() && time.Since(sm.lastCheck) < sm.cacheDuration {
		return sm.cachedUsage, nil
	}

	usage, err := dirSize(sm.dataDir)
	if err != nil {
		return 0, err
	}
	sm.cachedUsage = usage
	sm.lastCheck = time.Now()
	return usage, nil
}

// dirSize sums the allocated size of every regular file under path.
func dirSize(path string) (int64, error) {
	var size int64
	err := filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		size += allocatedSize(info)
		return nil
	})
	return size, err
}
