package sys

import (
	"io"
	"os"
)

// FileHandle is the subset of *os.File used by dataset readers and writers.
// Tests substitute their own implementation through the handler variables below.
type FileHandle interface {
	io.ReadWriteCloser
	io.ReaderAt
	io.WriterAt
	io.Seeker

	Stat() (os.FileInfo, error)
	Sync() error
	Truncate(size int64) error
	Name() string
}

type CreateHandler func(name string) (FileHandle, error)
type OpenHandler func(name string) (FileHandle, error)
type OpenFileHandler func(name string, flag int, perm os.FileMode) (FileHandle, error)
type RenameHandler func(oldpath, newpath string) error
type RemoveHandler func(name string) error

// Create creates or truncates the named file for reading and writing.
var Create CreateHandler = func(name string) (FileHandle, error) {
	return OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
}

// Open opens the named file read-only.
var Open OpenHandler = func(name string) (FileHandle, error) {
	return OpenFile(name, os.O_RDONLY, 0)
}

var OpenFile OpenFileHandler = func(name string, flag int, perm os.FileMode) (FileHandle, error) {
	f, err := os.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &RealFile{f: f}, nil
}

var Rename RenameHandler = func(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

// Remove deletes the named file. A missing file is not an error.
var Remove RemoveHandler = func(name string) error {
	if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
