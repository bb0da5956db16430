//go:build linux

package sys

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

// Preallocate reserves size bytes for f without changing its visible size,
// so a rewrite of a large dataset fails early when the disk cannot hold it.
func Preallocate(f FileHandle, size int64) error {
	if size <= 0 {
		return nil
	}
	fg, ok := f.(interface{ Fd() uintptr })
	if !ok {
		return ErrPreallocNotSupported
	}
	// WSL mounts of Windows drives do not implement fallocate.
	if strings.HasPrefix(f.Name(), "/mnt/") {
		return ErrPreallocNotSupported
	}
	fd := int(fg.Fd())

	var st unix.Statfs_t
	if err := unix.Fstatfs(fd, &st); err != nil {
		return ErrPreallocNotSupported
	}
	switch st.Type {
	case 0xEF53, // EXT2/3/4
		0x58465342, // XFS
		0x9123683E, // BTRFS
		0x01021994, // TMPFS
		0x794C7630, // OVERLAYFS
		0xF2F52010, // F2FS
		0x2FC12FC1: // ZFS on Linux
	default:
		return ErrPreallocNotSupported
	}

	err := unix.Fallocate(fd, unix.FALLOC_FL_KEEP_SIZE, 0, size)
	if err == nil {
		return nil
	}
	if isUnsupported(err) {
		return ErrPreallocNotSupported
	}
	return fmt.Errorf("preallocation failed for %s: %w", f.Name(), err)
}

func isUnsupported(err error) bool {
	return errors.Is(err, unix.ENOSYS) || errors.Is(err, unix.EINVAL) || errors.Is(err, unix.EOPNOTSUPP) || errors.Is(err, unix.ENOTTY)
}
