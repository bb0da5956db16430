package compressors

import (
	"fmt"
	"sync"

	"github.com/INLOpen/nexusdata/core"
	"github.com/klauspost/compress/zstd"
)

// zstdMaxDecoderMemory caps the memory a single decode may allocate.
const zstdMaxDecoderMemory = 512 * 1024 * 1024

// ZstdCompressor encodes record payloads with Zstandard. Encoders and decoders
// are created once and shared; EncodeAll and DecodeAll are safe for concurrent use.
type ZstdCompressor struct {
	initOnce sync.Once
	initErr  error
	encoder  *zstd.Encoder
	decoder  *zstd.Decoder
}

var _ core.Compressor = (*ZstdCompressor)(nil)

func NewZstdCompressor() *ZstdCompressor {
	return &ZstdCompressor{}
}

func (c *ZstdCompressor) init() error {
	c.initOnce.Do(func() {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
		if err != nil {
			c.initErr = fmt.Errorf("zstd encoder init: %w", err)
			return
		}
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1), zstd.WithDecoderMaxMemory(zstdMaxDecoderMemory))
		if err != nil {
			enc.Close()
			c.initErr = fmt.Errorf("zstd decoder init: %w", err)
			return
		}
		c.encoder = enc
		c.decoder = dec
	})
	return c.initErr
}

func (c *ZstdCompressor) Encode(dst, src []byte) ([]byte, error) {
	if err := c.init(); err != nil {
		return nil, err
	}
	return c.encoder.EncodeAll(src, dst[:0]), nil
}

func (c *ZstdCompressor) Decode(dst, src []byte, rawSize int) ([]byte, error) {
	if err := c.init(); err != nil {
		return nil, err
	}
	if cap(dst) < rawSize {
		dst = make([]byte, 0, rawSize)
	}
	decoded, err := c.decoder.DecodeAll(src, dst[:0])
	if err != nil {
		return nil, fmt.Errorf("%w: zstd decompress error: %v", core.ErrCorruptRecord, err)
	}
	if len(decoded) != rawSize {
		return nil, fmt.Errorf("%w: zstd payload decodes to %d bytes, layout expects %d", core.ErrCorruptRecord, len(decoded), rawSize)
	}
	return decoded, nil
}

func (c *ZstdCompressor) Type() core.CompressionType {
	return core.CompressionZSTD
}
