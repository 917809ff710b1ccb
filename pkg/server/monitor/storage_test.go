package monitor

import (
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// writeSegment writes incompressible bytes so allocated size is never zero.
func writeSegment(t *testing.T, path string, size int) {
	t.Helper()
	data := make([]byte, size)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("Failed to generate data: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}
}

func TestStorageMonitor_Limit(t *testing.T) {
	sm := NewStorageMonitor(t.TempDir(), 1024*1024*1024)
	if got := sm.Limit(); got != 1024*1024*1024 {
		t.Errorf("Limit() = %d, want %d", got, 1024*1024*1024)
	}
}

func TestStorageMonitor_Usage(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(tmpDir, "vlog"), 0755); err != nil {
		t.Fatalf("Failed to create subdir: %v", err)
	}
	writeSegment(t, filepath.Join(tmpDir, "vlog", "000001.vlog"), 64*1024)

	sm := NewStorageMonitor(tmpDir, 1024*1024*1024)
	usage, err := sm.Usage()
	if err != nil {
		t.Fatalf("Usage() error = %v", err)
	}
	if usage.UsedBytes <= 0 {
		t.Errorf("UsedBytes = %d, want > 0", usage.UsedBytes)
	}
	if want := float64(usage.UsedBytes) * 100 / float64(usage.MaxBytes); usage.UsedPercent != want {
		t.Errorf("UsedPercent = %f, want %f", usage.UsedPercent, want)
	}
	if usage.DataDir != tmpDir {
		t.Errorf("DataDir = %q, want %q", usage.DataDir, tmpDir)
	}
}

func TestStorageMonitor_Caching(t *testing.T) {
	tmpDir := t.TempDir()
	sm := NewStorageMonitor(tmpDir, 1024*1024*1024)

	first, err := sm.Usage()
	if err != nil {
		t.Fatalf("Usage() error = %v", err)
	}
	writeSegment(t, filepath.Join(tmpDir, "late.sst"), 64*1024)
	second, err := sm.Usage()
	if err != nil {
		t.Fatalf("Usage() error = %v", err)
	}
	if first.UsedBytes != second.UsedBytes {
		t.Errorf("Cached values differ: %d != %d", first.UsedBytes, second.UsedBytes)
	}
}

func TestStorageMonitor_CheckLimit(t *testing.T) {
	tmpDir := t.TempDir()
	writeSegment(t, filepath.Join(tmpDir, "data.sst"), 64*1024)

	if err := NewStorageMonitor(tmpDir, 1024*1024*1024).CheckLimit(); err != nil {
		t.Errorf("CheckLimit() under limit = %v, want nil", err)
	}
	if err := NewStorageMonitor(tmpDir, 0).CheckLimit(); err != nil {
		t.Errorf("CheckLimit() without limit = %v, want nil", err)
	}
	if err := NewStorageMonitor(tmpDir, 10).CheckLimit(); !errors.Is(err, ErrStorageFull) {
		t.Errorf("CheckLimit() over limit = %v, want ErrStorageFull", err)
	}
}

func TestStorageMonitor_InvalidDir(t *testing.T) {
	sm := NewStorageMonitor("/nonexistent/path/12345", 1024*1024*1024)
	if _, err := sm.Usage(); err == nil {
		t.Error("Usage() should return error for nonexistent directory")
	}
	if err := sm.CheckLimit(); err == nil {
		t.Error("CheckLimit() should return error for nonexistent directory")
	}
}
