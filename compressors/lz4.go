package compressors

import (
	"fmt"

	"github.com/INLOpen/nexusdata/core"
	lz4 "github.com/pierrec/lz4/v4"
)

const (
	lz4BlockCompressed byte = 0
	lz4BlockStored     byte = 1
)

// LZ4Compressor encodes record payloads with the LZ4 block format. The block
// format does not carry the decoded size; it always comes from the dataset layout.
// Every encoded payload starts with one marker byte, since LZ4 reports
// incompressible input by returning zero bytes.
type LZ4Compressor struct{}

var _ core.Compressor = (*LZ4Compressor)(nil)

func NewLz4Compressor() *LZ4Compressor {
	return &LZ4Compressor{}
}

func (c *LZ4Compressor) Encode(dst, src []byte) ([]byte, error) {
	bound := 1 + lz4.CompressBlockBound(len(src))
	if cap(dst) < bound {
		dst = make([]byte, bound)
	}
	dst = dst[:bound]

	n, err := lz4.CompressBlock(src, dst[1:], nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress error: %w", err)
	}
	if n == 0 || n >= len(src) {
		dst[0] = lz4BlockStored
		return append(dst[:1], src...), nil
	}
	dst[0] = lz4BlockCompressed
	return dst[:1+n], nil
}

func (c *LZ4Compressor) Decode(dst, src []byte, rawSize int) ([]byte, error) {
	if len(src) == 0 {
		return nil, fmt.Errorf("%w: lz4 payload is missing its marker byte", core.ErrCorruptRecord)
	}
	switch src[0] {
	case lz4BlockStored:
		if len(src)-1 != rawSize {
			return nil, fmt.Errorf("%w: stored lz4 payload is %d bytes, layout expects %d", core.ErrCorruptRecord, len(src)-1, rawSize)
		}
		return append(dst[:0], src[1:]...), nil
	case lz4BlockCompressed:
		if cap(dst) < rawSize {
			dst = make([]byte, rawSize)
		}
		dst = dst[:rawSize]
		n, err := lz4.UncompressBlock(src[1:], dst)
		if err != nil {
			return nil, fmt.Errorf("%w: lz4 decompress error: %v", core.ErrCorruptRecord, err)
		}
		if n != rawSize {
			return nil, fmt.Errorf("%w: lz4 payload decodes to %d bytes, layout expects %d", core.ErrCorruptRecord, n, rawSize)
		}
		return dst, nil
	default:
		return nil, fmt.Errorf("%w: unknown lz4 block marker %d", core.ErrCorruptRecord, src[0])
	}
}

func (c *LZ4Compressor) Type() core.CompressionType {
	return core.CompressionLZ4
}
