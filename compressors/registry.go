package compressors

import (
	"fmt"

	"github.com/INLOpen/nexusdata/core"
)

// Get returns a Compressor for the given CompressionType, as recorded in a dataset header.
func Get(compressionType core.CompressionType) (core.Compressor, error) {
	switch compressionType {
	case core.CompressionNone:
		return &NoCompressionCompressor{}, nil
	case core.CompressionSnappy:
		return NewSnappyCompressor(), nil
	case core.CompressionLZ4:
		return NewLz4Compressor(), nil
	case core.CompressionZSTD:
		return NewZstdCompressor(), nil
	default:
		return nil, fmt.Errorf("unknown compression type: %d", compressionType)
	}
}
