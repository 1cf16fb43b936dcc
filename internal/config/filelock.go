package config

import (
	"fmt"
	"os"
)

const lockRetries = 50

// WithFileLock runs fn while holding the lock at lockPath.
func WithFileLock(lockPath string, fn func() error) error {
	lock, err := AcquireLock(lockPath, lockRetries)
	if err != nil {
		return fmt.Errorf("failed to acquire config lock: %w", err)
	}
	defer func() {
		if releaseErr := lock.Release(); releaseErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to release lock: %v\n", releaseErr)
		}
	}()
	return fn()
}
