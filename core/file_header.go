package core

import (
	"encoding/binary"
	"fmt"
	"time"
)

// FileHeader opens every dataset stream file. The entry count and the entry
// layout follow it; CompressorType names the codec of every record payload.
type FileHeader struct {
	Magic          uint32
	Version        uint8
	CreatedAt      int64 // UnixNano, set when the writer was created
	CompressorType CompressionType
}

// Size is the encoded size of the header in bytes.
func (h *FileHeader) Size() int {
	return binary.Size(h)
}

// Check rejects headers that do not belong to a dataset stream this package can read.
func (h *FileHeader) Check() error {
	if h.Magic != DatasetMagicNumber {
		return fmt.Errorf("invalid magic number: got %x, want %x", h.Magic, DatasetMagicNumber)
	}
	if h.Version > FormatVersion {
		return fmt.Errorf("unsupported dataset format version %d (max %d)", h.Version, FormatVersion)
	}
	return nil
}

// NewFileHeader stamps a header of the current format version for a new dataset.
func NewFileHeader(magic uint32, compressorType CompressionType) FileHeader {
	return FileHeader{
		Magic:          magic,
		Version:        FormatVersion,
		CreatedAt:      time.Now().UnixNano(),
		CompressorType: compressorType,
	}
}
