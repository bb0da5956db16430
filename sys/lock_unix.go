//go:build unix

package sys

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

func tryLock(lockPath string) (func() error, error) {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", lockPath, err)
	}
	fd := int(f.Fd())
	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("flock %s: %w", lockPath, err)
	}
	release := func() error {
		// Remove while still holding the lock so a waiter never locks a stale inode.
		removeErr := os.Remove(lockPath)
		_ = unix.Flock(fd, unix.LOCK_UN)
		closeErr := f.Close()
		if removeErr != nil && !os.IsNotExist(removeErr) {
			return removeErr
		}
		return closeErr
	}
	return release, nil
}
