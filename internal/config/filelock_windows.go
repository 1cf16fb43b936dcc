//go:build windows

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileLock is a best-effort lock using exclusive file creation.
type FileLock struct {
	lockFile *os.File
	path     string
}

// AcquireLock creates lockPath exclusively, retrying every 100ms up to
// maxRetries times.
func AcquireLock(lockPath string, maxRetries int) (*FileLock, error) {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
		if err == nil {
			return &FileLock{lockFile: f, path: lockPath}, nil
		}
		lastErr = err
		if i < maxRetries {
			time.Sleep(100 * time.Millisecond)
		}
	}
	return nil, fmt.Errorf("failed to acquire lock after %d retries: %w", maxRetries, lastErr)
}

// Release drops the lock and removes the lock file.
func (fl *FileLock) Release() error {
	if fl.lockFile == nil {
		return nil
	}
	fl.lockFile.Close()
	fl.lockFile = nil
	_ = os.Remove(fl.path)
	return nil
}
