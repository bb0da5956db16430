package dataset

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"math"

	"github.com/INLOpen/nexusdata/compressors"
	"github.com/INLOpen/nexusdata/core"
	"github.com/INLOpen/nexusdata/sys"
)

const readBufferSize = 64 * 1024

// Cursor is a resumable position inside a dataset stream. It is only
// meaningful for the Reader that produced it.
type Cursor struct {
	Offset  int64
	EntryID uint32
}

// ReaderOptions holds configuration for a Reader.
type ReaderOptions struct {
	Logger *slog.Logger
}

// Reader reads entries sequentially from a dataset stream and supports
// repositioning through Reset, Seek and Rewind. A Reader is not safe for
// concurrent use: its position is shared mutable state.
type Reader struct {
	src    io.ReadSeeker
	closer io.Closer
	path   string
	br     *bufio.Reader

	header     core.FileHeader
	layout     Layout
	compressor core.Compressor
	entryCount uint32

	dataStart      int64 // position marker captured right after the header
	offset         int64
	entryReadCount uint32

	frameBuf []byte
	rawBuf   []byte

	logger *slog.Logger
}

var _ SupervisedReader = (*Reader)(nil)

// Open opens the dataset file at path.
func Open(path string, opts ReaderOptions) (*Reader, error) {
	file, err := sys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset %s: %w", path, err)
	}
	r, err := newReader(file, path, opts)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to open dataset %s: %w", path, err)
	}
	r.closer = file
	return r, nil
}

// NewReader reads a dataset from an arbitrary seekable stream.
func NewReader(src io.ReadSeeker, opts ReaderOptions) (*Reader, error) {
	return newReader(src, "", opts)
}

func newReader(src io.ReadSeeker, path string, opts ReaderOptions) (*Reader, error) {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to header: %w", err)
	}
	br := bufio.NewReaderSize(src, readBufferSize)
	header, entryCount, layout, headerSize, err := readHeader(br)
	if err != nil {
		return nil, err
	}
	compressor, err := compressors.Get(header.CompressorType)
	if err != nil {
		return nil, err
	}

	r := &Reader{
		src:        src,
		path:       path,
		br:         br,
		header:     header,
		layout:     layout,
		compressor: compressor,
		entryCount: entryCount,
		dataStart:  headerSize,
		offset:     headerSize,
		logger:     opts.Logger.With("component", "DatasetReader"),
	}
	r.logger.Debug("Opened dataset", "path", path, "entries", entryCount, "layout", layout.String(), "compression", header.CompressorType.String())
	return r, nil
}

// Reset rewinds the reader to the first entry.
func (r *Reader) Reset() error {
	return r.Seek(Cursor{Offset: r.dataStart, EntryID: 0})
}

// Position returns a cursor to the next unread entry.
func (r *Reader) Position() Cursor {
	return Cursor{Offset: r.offset, EntryID: r.entryReadCount}
}

// Seek repositions the reader at a cursor previously returned by Position.
func (r *Reader) Seek(c Cursor) error {
	if c.Offset < r.dataStart || c.EntryID > r.entryCount {
		return fmt.Errorf("%w: cursor offset=%d entry=%d is outside the entry region", core.ErrLogicViolation, c.Offset, c.EntryID)
	}
	if _, err := r.src.Seek(c.Offset, io.SeekStart); err != nil {
		return r.corrupt(c.EntryID, c.Offset, fmt.Errorf("seek: %w", err))
	}
	r.br.Reset(r.src)
	r.offset = c.Offset
	r.entryReadCount = c.EntryID
	return nil
}

// Rewind positions the reader in front of entryID. Uncompressed datasets have
// fixed-size records and seek directly; other codecs skip records from the start.
func (r *Reader) Rewind(entryID uint32) error {
	if entryID > r.entryCount {
		return fmt.Errorf("%w: entry %d is beyond entry count %d", core.ErrLogicViolation, entryID, r.entryCount)
	}
	if r.header.CompressorType == core.CompressionNone {
		recordSize := int64(core.RecordOverhead + r.layout.RawSize())
		return r.Seek(Cursor{Offset: r.dataStart + int64(entryID)*recordSize, EntryID: entryID})
	}
	if err := r.Reset(); err != nil {
		return err
	}
	for r.entryReadCount < entryID {
		if err := r.skipFrame(); err != nil {
			return err
		}
	}
	return nil
}

// EntryAvailable reports whether another entry can be read.
func (r *Reader) EntryAvailable() bool {
	return r.entryReadCount < r.entryCount
}

// Read decodes the next entry into the caller's buffers. A nil buffer skips
// that part of the payload. Read returns io.EOF once all entries were read.
func (r *Reader) Read(input []byte, output []float32) error {
	inSize := r.layout.InputSize()
	outCount := r.layout.OutputNeuronCount()
	if input != nil && len(input) < inSize {
		return fmt.Errorf("%w: input buffer holds %d bytes, entry needs %d", core.ErrLayoutMismatch, len(input), inSize)
	}
	if output != nil && len(output) < outCount {
		return fmt.Errorf("%w: output buffer holds %d values, entry needs %d", core.ErrLayoutMismatch, len(output), outCount)
	}

	entryID, offset := r.entryReadCount, r.offset
	data, err := r.readFrame()
	if err != nil {
		return err
	}
	raw, err := r.compressor.Decode(r.rawBuf[:0], data, r.layout.RawSize())
	if err != nil {
		return r.corrupt(entryID, offset, err)
	}
	r.rawBuf = raw

	if input != nil {
		copy(input, raw[:inSize])
	}
	if output != nil {
		decodeFloats(output[:outCount], raw[inSize:])
	}
	return nil
}

// ReadRecord returns the next stored record payload, checksum verified but not
// decoded. The slice is only valid until the next call on the reader.
func (r *Reader) ReadRecord() ([]byte, error) {
	return r.readFrame()
}

// readFrame reads one record: length (4 bytes) | data | checksum (4 bytes).
func (r *Reader) readFrame() ([]byte, error) {
	if !r.EntryAvailable() {
		return nil, io.EOF
	}
	entryID, start := r.entryReadCount, r.offset

	var lenBuf [core.RecordLengthSize]byte
	if _, err := io.ReadFull(r.br, lenBuf[:]); err != nil {
		return nil, r.corrupt(entryID, start, fmt.Errorf("record length: %w", unexpected(err)))
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n > core.MaxRecordSize {
		return nil, r.corrupt(entryID, start, fmt.Errorf("%w: record length %d exceeds limit", core.ErrCorruptRecord, n))
	}

	need := int(n) + core.ChecksumSize
	if cap(r.frameBuf) < need {
		r.frameBuf = make([]byte, need)
	}
	frame := r.frameBuf[:need]
	if _, err := io.ReadFull(r.br, frame); err != nil {
		return nil, r.corrupt(entryID, start, fmt.Errorf("record data: %w", unexpected(err)))
	}
	data := frame[:n]
	if crc32.ChecksumIEEE(data) != binary.LittleEndian.Uint32(frame[n:]) {
		return nil, r.corrupt(entryID, start, core.ErrChecksumMismatch)
	}

	r.offset += int64(core.RecordLengthSize + need)
	r.entryReadCount++
	return data, nil
}

func (r *Reader) skipFrame() error {
	entryID, start := r.entryReadCount, r.offset
	var lenBuf [core.RecordLengthSize]byte
	if _, err := io.ReadFull(r.br, lenBuf[:]); err != nil {
		return r.corrupt(entryID, start, fmt.Errorf("record length: %w", unexpected(err)))
	}
	size := binary.LittleEndian.Uint32(lenBuf[:])
	if size > core.MaxRecordSize {
		return r.corrupt(entryID, start, fmt.Errorf("%w: record length %d exceeds limit", core.ErrCorruptRecord, size))
	}
	n := int(size) + core.ChecksumSize
	if _, err := r.br.Discard(n); err != nil {
		return r.corrupt(entryID, start, fmt.Errorf("skip record: %w", unexpected(err)))
	}
	r.offset += int64(core.RecordLengthSize + n)
	r.entryReadCount++
	return nil
}

func (r *Reader) corrupt(entryID uint32, offset int64, err error) error {
	r.logger.Error("Dataset read failed", "path", r.path, "entry_id", entryID, "offset", offset, "error", err)
	return &core.CorruptionError{Path: r.path, EntryID: entryID, Offset: offset, Err: err}
}

// The entry count promises more records, so a clean EOF is still premature.
func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

func decodeFloats(dst []float32, src []byte) {
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[4*i:]))
	}
}

func (r *Reader) EntryCount() uint32                           { return r.entryCount }
func (r *Reader) Layout() Layout                               { return r.layout }
func (r *Reader) InputConfiguration() core.LayerConfiguration  { return r.layout.Input }
func (r *Reader) OutputConfiguration() core.LayerConfiguration { return r.layout.Output }
func (r *Reader) InputType() core.InputType                    { return r.layout.InputType }
func (r *Reader) Compression() core.CompressionType            { return r.header.CompressorType }
func (r *Reader) Header() core.FileHeader                      { return r.header }
func (r *Reader) Path() string                                 { return r.path }

// Close releases the underlying file when the reader was created by Open.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}
