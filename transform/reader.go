package transform

import (
	"fmt"
	"math"

	"github.com/INLOpen/nexusdata/core"
	"github.com/INLOpen/nexusdata/dataset"
)

// Reader expands every entry of an underlying reader into the samples of a
// DataTransformer. Samples of one entry are returned consecutively and share
// its output payload.
type Reader struct {
	src         dataset.SupervisedReader
	transformer DataTransformer

	inBuf  []byte
	outBuf []float32
	sample int
}

var _ dataset.SupervisedReader = (*Reader)(nil)

func NewReader(src dataset.SupervisedReader, transformer DataTransformer) (*Reader, error) {
	if transformer.SampleCount() < 1 {
		return nil, fmt.Errorf("transformer produces no samples")
	}
	if uint64(src.EntryCount())*uint64(transformer.SampleCount()) > math.MaxUint32 {
		return nil, fmt.Errorf("%d entries with %d samples each overflow the entry count", src.EntryCount(), transformer.SampleCount())
	}
	inSize := src.InputConfiguration().NeuronCount() * src.InputType().ElementSize()
	return &Reader{
		src:         src,
		transformer: transformer,
		inBuf:       make([]byte, inSize),
		outBuf:      make([]float32, src.OutputConfiguration().NeuronCount()),
	}, nil
}

func (r *Reader) Reset() error {
	r.sample = 0
	return r.src.Reset()
}

// Read returns the next sample. It returns io.EOF after the last sample of the last entry.
func (r *Reader) Read(input []byte, output []float32) error {
	if input != nil && len(input) < len(r.inBuf) {
		return fmt.Errorf("%w: input buffer holds %d bytes, entry needs %d", core.ErrLayoutMismatch, len(input), len(r.inBuf))
	}
	if output != nil && len(output) < len(r.outBuf) {
		return fmt.Errorf("%w: output buffer holds %d values, entry needs %d", core.ErrLayoutMismatch, len(output), len(r.outBuf))
	}
	if r.sample == 0 {
		if err := r.src.Read(r.inBuf, r.outBuf); err != nil {
			return err
		}
	}

	if input != nil {
		// inBuf is private, so it never aliases the caller's buffer.
		if err := r.transformer.Transform(r.inBuf, input, r.src.InputType(), r.src.InputConfiguration(), r.sample); err != nil {
			return fmt.Errorf("failed to transform sample %d: %w", r.sample, err)
		}
	}
	if output != nil {
		copy(output, r.outBuf)
	}

	r.sample++
	if r.sample == r.transformer.SampleCount() {
		r.sample = 0
	}
	return nil
}

func (r *Reader) InputConfiguration() core.LayerConfiguration  { return r.src.InputConfiguration() }
func (r *Reader) OutputConfiguration() core.LayerConfiguration { return r.src.OutputConfiguration() }
func (r *Reader) InputType() core.InputType                    { return r.src.InputType() }

// EntryCount is the number of samples: underlying entries times samples per entry.
func (r *Reader) EntryCount() uint32 {
	return r.src.EntryCount() * uint32(r.transformer.SampleCount())
}
