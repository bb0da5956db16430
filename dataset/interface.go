package dataset

import "github.com/INLOpen/nexusdata/core"

// SupervisedReader is the sequential entry reader contract consumed by
// training loops and data transformers.
type SupervisedReader interface {
	// Reset rewinds to the first entry.
	Reset() error
	// Read decodes the next entry; io.EOF signals the end of the stream.
	Read(input []byte, output []float32) error
	InputConfiguration() core.LayerConfiguration
	OutputConfiguration() core.LayerConfiguration
	InputType() core.InputType
	EntryCount() uint32
}
