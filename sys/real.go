package sys

import (
	"os"
)

var _ FileHandle = (*RealFile)(nil)

// RealFile adapts *os.File to FileHandle.
type RealFile struct {
	f *os.File
}

func (df *RealFile) Write(p []byte) (n int, err error) {
	return df.f.Write(p)
}

func (df *RealFile) Read(p []byte) (n int, err error) {
	return df.f.Read(p)
}

func (df *RealFile) Seek(offset int64, whence int) (int64, error) {
	return df.f.Seek(offset, whence)
}

func (df *RealFile) Stat() (os.FileInfo, error) {
	return df.f.Stat()
}

func (df *RealFile) Sync() error {
	return df.f.Sync()
}

func (df *RealFile) Truncate(size int64) error {
	return df.f.Truncate(size)
}

func (df *RealFile) Name() string {
	return df.f.Name()
}

func (df *RealFile) WriteAt(p []byte, off int64) (n int, err error) {
	return df.f.WriteAt(p, off)
}

func (df *RealFile) ReadAt(p []byte, off int64) (n int, err error) {
	return df.f.ReadAt(p, off)
}

func (df *RealFile) Close() error {
	return df.f.Close()
}

// Fd exposes the descriptor for platform helpers such as Preallocate.
func (df *RealFile) Fd() uintptr {
	return df.f.Fd()
}
