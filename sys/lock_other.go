//go:build !unix

package sys

import (
	"fmt"
	"os"
)

func tryLock(lockPath string) (func() error, error) {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("failed to create lock file %s: %w", lockPath, err)
	}
	release := func() error {
		closeErr := f.Close()
		if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
			return err
		}
		return closeErr
	}
	return release, nil
}
