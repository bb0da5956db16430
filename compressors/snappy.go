package compressors

import (
	"fmt"

	"github.com/INLOpen/nexusdata/core"
	"github.com/golang/snappy"
)

// SnappyCompressor encodes record payloads with the Snappy block format.
type SnappyCompressor struct{}

var _ core.Compressor = (*SnappyCompressor)(nil)

func NewSnappyCompressor() *SnappyCompressor {
	return &SnappyCompressor{}
}

func (c *SnappyCompressor) Encode(dst, src []byte) ([]byte, error) {
	// snappy.Encode reuses dst when it is large enough.
	return snappy.Encode(dst[:cap(dst)], src), nil
}

func (c *SnappyCompressor) Decode(dst, src []byte, rawSize int) ([]byte, error) {
	n, err := snappy.DecodedLen(src)
	if err != nil {
		return nil, fmt.Errorf("%w: snappy header: %v", core.ErrCorruptRecord, err)
	}
	if n != rawSize {
		return nil, fmt.Errorf("%w: snappy payload decodes to %d bytes, layout expects %d", core.ErrCorruptRecord, n, rawSize)
	}
	decoded, err := snappy.Decode(dst[:cap(dst)], src)
	if err != nil {
		return nil, fmt.Errorf("%w: snappy decompress error: %v", core.ErrCorruptRecord, err)
	}
	return decoded, nil
}

func (c *SnappyCompressor) Type() core.CompressionType {
	return core.CompressionSnappy
}
