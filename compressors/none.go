package compressors

import (
	"fmt"

	"github.com/INLOpen/nexusdata/core"
)

// NoCompressionCompressor stores record payloads verbatim.
type NoCompressionCompressor struct{}

var _ core.Compressor = (*NoCompressionCompressor)(nil)

func (c *NoCompressionCompressor) Encode(dst, src []byte) ([]byte, error) {
	return append(dst[:0], src...), nil
}

func (c *NoCompressionCompressor) Decode(dst, src []byte, rawSize int) ([]byte, error) {
	if len(src) != rawSize {
		return nil, fmt.Errorf("%w: stored payload is %d bytes, layout expects %d", core.ErrCorruptRecord, len(src), rawSize)
	}
	return append(dst[:0], src...), nil
}

func (c *NoCompressionCompressor) Type() core.CompressionType {
	return core.CompressionNone
}
