package dataset

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/INLOpen/nexusdata/compressors"
	"github.com/INLOpen/nexusdata/core"
	"github.com/INLOpen/nexusdata/sys"
)

const (
	writeBufferSize = 64 * 1024
	// DefaultLockTimeout is how long Create waits for a concurrent writer of the same path.
	DefaultLockTimeout = 5 * time.Second
)

// WriterOptions holds configuration for a Writer.
type WriterOptions struct {
	Compression core.CompressionType
	// Preallocate reserves this many bytes for the output file up front (0 disables).
	Preallocate int64
	LockTimeout time.Duration
	Logger      *slog.Logger
}

// Writer appends entries to a dataset stream. The header is written on creation
// and its entry count is patched when the writer is closed. File-backed writers
// write to a temporary file that only replaces the target on Commit.
type Writer struct {
	dst  io.WriteSeeker
	file sys.FileHandle
	bw   *bufio.Writer

	path    string
	tmpPath string
	release func() error

	layout     Layout
	compressor core.Compressor
	entryCount uint32
	bytes      int64

	raw    *bytes.Buffer // pooled scratch for the decoded payload
	encBuf []byte
	closed bool

	logger *slog.Logger
}

// NewWriter writes a dataset to an arbitrary seekable sink.
func NewWriter(dst io.WriteSeeker, layout Layout, opts WriterOptions) (*Writer, error) {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	compressor, err := compressors.Get(opts.Compression)
	if err != nil {
		return nil, err
	}

	bw := bufio.NewWriterSize(dst, writeBufferSize)
	header := core.NewFileHeader(core.DatasetMagicNumber, opts.Compression)
	n, err := writeHeader(bw, header, 0, layout)
	if err != nil {
		return nil, err
	}
	return &Writer{
		dst:        dst,
		bw:         bw,
		layout:     layout,
		compressor: compressor,
		bytes:      n,
		raw:        core.BufferPool.Get(),
		logger:     opts.Logger.With("component", "DatasetWriter"),
	}, nil
}

// Create starts a new dataset file at path. The data goes to path + ".tmp"
// under an advisory lock on path until Commit renames it into place.
func Create(path string, layout Layout, opts WriterOptions) (*Writer, error) {
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = DefaultLockTimeout
	}
	release, err := sys.AcquireFileLock(path, opts.LockTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to lock dataset %s: %w", path, err)
	}

	tmpPath := core.FormatTempFilename(path, core.TempFileSuffix)
	file, err := sys.Create(tmpPath)
	if err != nil {
		release()
		return nil, fmt.Errorf("failed to create dataset file %s: %w", tmpPath, err)
	}

	w, err := NewWriter(file, layout, opts)
	if err != nil {
		file.Close()
		sys.Remove(tmpPath)
		release()
		return nil, fmt.Errorf("failed to write dataset header to %s: %w", tmpPath, err)
	}
	w.file = file
	w.path = path
	w.tmpPath = tmpPath
	w.release = release

	if opts.Preallocate > 0 {
		if err := sys.Preallocate(file, opts.Preallocate); err != nil && !errors.Is(err, sys.ErrPreallocNotSupported) {
			w.logger.Warn("Preallocation failed, continuing without it", "path", tmpPath, "bytes", opts.Preallocate, "error", err)
		}
	}
	return w, nil
}

// CreateLike starts a dataset at path replicating the layout and codec of src,
// so stored records of src can be appended verbatim with WriteRecord.
func CreateLike(path string, src *Reader, opts WriterOptions) (*Writer, error) {
	opts.Compression = src.Compression()
	return Create(path, src.Layout(), opts)
}

// Write encodes one entry and appends it. Buffers must match the layout exactly.
func (w *Writer) Write(input []byte, output []float32) error {
	if w.closed {
		return core.ErrWriterClosed
	}
	inSize := w.layout.InputSize()
	if len(input) != inSize || len(output) != w.layout.OutputNeuronCount() {
		return fmt.Errorf("%w: got input=%d bytes output=%d values, layout is %s", core.ErrLayoutMismatch, len(input), len(output), w.layout)
	}

	w.raw.Reset()
	w.raw.Write(input)
	var scratch [4]byte
	for _, v := range output {
		binary.LittleEndian.PutUint32(scratch[:], math.Float32bits(v))
		w.raw.Write(scratch[:])
	}

	encoded, err := w.compressor.Encode(w.encBuf, w.raw.Bytes())
	if err != nil {
		return fmt.Errorf("failed to encode entry %d: %w", w.entryCount, err)
	}
	w.encBuf = encoded
	return w.writeFrame(encoded)
}

// WriteRecord appends an already encoded record payload verbatim.
func (w *Writer) WriteRecord(data []byte) error {
	if w.closed {
		return core.ErrWriterClosed
	}
	return w.writeFrame(data)
}

// writeFrame writes a single record.
// Format: length (4 bytes) | data (variable) | checksum (4 bytes)
func (w *Writer) writeFrame(data []byte) error {
	if w.entryCount == math.MaxUint32 {
		return fmt.Errorf("%w: entry count overflow", core.ErrLogicViolation)
	}
	var scratch [core.RecordLengthSize]byte
	binary.LittleEndian.PutUint32(scratch[:], uint32(len(data)))
	if _, err := w.bw.Write(scratch[:]); err != nil {
		return fmt.Errorf("failed to write record length: %w", err)
	}
	if _, err := w.bw.Write(data); err != nil {
		return fmt.Errorf("failed to write record data: %w", err)
	}
	binary.LittleEndian.PutUint32(scratch[:], crc32.ChecksumIEEE(data))
	if _, err := w.bw.Write(scratch[:]); err != nil {
		return fmt.Errorf("failed to write record checksum: %w", err)
	}
	w.entryCount++
	w.bytes += int64(core.RecordOverhead + len(data))
	return nil
}

// Close flushes buffered records and patches the entry count into the header.
// For file-backed writers the file is synced and closed but not yet renamed.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.releaseBuffer()

	if err := w.bw.Flush(); err != nil {
		w.closeFile()
		return fmt.Errorf("failed to flush dataset records: %w", err)
	}
	if _, err := w.dst.Seek(entryCountOffset, io.SeekStart); err != nil {
		w.closeFile()
		return fmt.Errorf("failed to seek to entry count: %w", err)
	}
	if err := binary.Write(w.dst, binary.LittleEndian, w.entryCount); err != nil {
		w.closeFile()
		return fmt.Errorf("failed to patch entry count: %w", err)
	}
	if w.file != nil {
		if err := w.file.Sync(); err != nil {
			w.closeFile()
			return fmt.Errorf("failed to sync dataset file: %w", err)
		}
	}
	return w.closeFile()
}

// Commit closes the writer and atomically moves the finished file into place.
func (w *Writer) Commit() error {
	if err := w.Close(); err != nil {
		w.discard()
		return err
	}
	if w.tmpPath == "" {
		return nil
	}
	defer w.unlock()
	if err := sys.Rename(w.tmpPath, w.path); err != nil {
		sys.Remove(w.tmpPath)
		return fmt.Errorf("failed to rename %s to %s: %w", w.tmpPath, w.path, err)
	}
	w.logger.Info("Dataset committed", "path", w.path, "entries", w.entryCount, "bytes", w.bytes)
	w.tmpPath = ""
	return nil
}

// Abort discards everything written so far. A partially written dataset is never valid.
func (w *Writer) Abort() error {
	w.closed = true
	w.releaseBuffer()
	err := w.closeFile()
	w.discard()
	return err
}

func (w *Writer) discard() {
	if w.tmpPath != "" {
		if err := sys.Remove(w.tmpPath); err != nil {
			w.logger.Warn("Failed to remove partial dataset", "path", w.tmpPath, "error", err)
		}
		w.logger.Info("Discarded partial dataset", "path", w.tmpPath, "entries", w.entryCount)
		w.tmpPath = ""
	}
	w.unlock()
}

func (w *Writer) releaseBuffer() {
	if w.raw != nil {
		core.BufferPool.Put(w.raw)
		w.raw = nil
	}
}

func (w *Writer) closeFile() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *Writer) unlock() {
	if w.release != nil {
		if err := w.release(); err != nil {
			w.logger.Warn("Failed to release dataset lock", "path", w.path, "error", err)
		}
		w.release = nil
	}
}

func (w *Writer) EntryCount() uint32                { return w.entryCount }
func (w *Writer) Layout() Layout                    { return w.layout }
func (w *Writer) Compression() core.CompressionType { return w.compressor.Type() }

// Size is the number of bytes written so far, header included.
func (w *Writer) Size() int64 { return w.bytes }
