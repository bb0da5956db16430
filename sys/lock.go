package sys

import (
	"errors"
	"time"
)

// ErrLocked is returned when a lock is held by another process past the timeout.
var ErrLocked = errors.New("file is locked by another process")

const lockRetryInterval = 25 * time.Millisecond

// AcquireFileLock takes an exclusive advisory lock on path + ".lock", retrying
// until timeout elapses. The returned release function unlocks and removes the
// lock file.
func AcquireFileLock(path string, timeout time.Duration) (func() error, error) {
	lockPath := path + ".lock"
	deadline := time.Now().Add(timeout)
	for {
		release, err := tryLock(lockPath)
		if err == nil {
			return release, nil
		}
		if !errors.Is(err, ErrLocked) || time.Now().After(deadline) {
			return nil, err
		}
		time.Sleep(lockRetryInterval)
	}
}
