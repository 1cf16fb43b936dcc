//go:build !windows

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// FileLock is an advisory lock held on a sidecar file.
type FileLock struct {
	lockFile *os.File
	path     string
}

// AcquireLock takes an exclusive flock on lockPath, retrying every 100ms up
// to maxRetries times.
func AcquireLock(lockPath string, maxRetries int) (*FileLock, error) {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
		if err != nil {
			return nil, fmt.Errorf("failed to open lock file: %w", err)
		}
		err = syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			return &FileLock{lockFile: lockFile, path: lockPath}, nil
		}
		lockFile.Close()
		lastErr = err
		if i < maxRetries {
			time.Sleep(100 * time.Millisecond)
		}
	}
	return nil, fmt.Errorf("failed to acquire lock after %d retries: %w", maxRetries, lastErr)
}

// Release drops the lock.
func (fl *FileLock) Release() error {
	if fl.lockFile == nil {
		return nil
	}
	if err := syscall.Flock(int(fl.lockFile.Fd()), syscall.LOCK_UN); err != nil {
		fl.lockFile.Close()
		fl.lockFile = nil
		return fmt.Errorf("failed to release lock: %w", err)
	}
	err := fl.lockFile.Close()
	fl.lockFile = nil
	if err != nil {
		return fmt.Errorf("failed to close lock file: %w", err)
	}
	return nil
}
