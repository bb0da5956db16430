package dataset

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/INLOpen/nexusdata/core"
)

// maxDimensionCount bounds the number of dimensions accepted from a header.
const maxDimensionCount = 16

// entryCountOffset is the file offset of the entry count, right after core.FileHeader.
var entryCountOffset = int64(binary.Size(core.FileHeader{}))

// Layout is the fixed per-entry shape of a dataset. It is queried once and
// assumed constant for every entry of the stream.
type Layout struct {
	InputType core.InputType
	Input     core.LayerConfiguration
	Output    core.LayerConfiguration
}

// InputSize is the number of bytes of an entry's input payload.
func (l Layout) InputSize() int {
	return l.Input.NeuronCount() * l.InputType.ElementSize()
}

// OutputNeuronCount is the number of float32 values of an entry's output payload.
func (l Layout) OutputNeuronCount() int {
	return l.Output.NeuronCount()
}

// RawSize is the decoded size of one record payload.
func (l Layout) RawSize() int {
	return l.InputSize() + 4*l.OutputNeuronCount()
}

// Equal reports whether two layouts describe identical entries.
func (l Layout) Equal(other Layout) bool {
	return l.InputType == other.InputType && l.Input.Equal(other.Input) && l.Output.Equal(other.Output)
}

func (l Layout) Validate() error {
	if err := l.InputType.Validate(); err != nil {
		return err
	}
	if err := l.Input.Validate("input_configuration"); err != nil {
		return err
	}
	if err := l.Output.Validate("output_configuration"); err != nil {
		return err
	}
	// Both layers are bounded by MaxLayerNeurons here, so RawSize cannot overflow.
	if size := l.RawSize(); size > core.MaxRecordSize {
		return &core.ValidationError{
			Field:   "layout",
			Value:   l.String(),
			Message: fmt.Sprintf("entry payload of %d bytes exceeds the %d byte record limit", size, core.MaxRecordSize),
		}
	}
	return nil
}

func (l Layout) String() string {
	return fmt.Sprintf("input=%s(%s) output=%s", l.Input, l.InputType, l.Output)
}

// writeHeader writes the file header, entry count and layout. It returns the
// number of bytes written, which is also the offset of the first record.
func writeHeader(w io.Writer, h core.FileHeader, entryCount uint32, l Layout) (int64, error) {
	cw := &countingWriter{w: w}
	if err := binary.Write(cw, binary.LittleEndian, &h); err != nil {
		return cw.n, fmt.Errorf("failed to write file header: %w", err)
	}
	if err := binary.Write(cw, binary.LittleEndian, entryCount); err != nil {
		return cw.n, fmt.Errorf("failed to write entry count: %w", err)
	}
	if err := binary.Write(cw, binary.LittleEndian, uint8(l.InputType)); err != nil {
		return cw.n, fmt.Errorf("failed to write input type: %w", err)
	}
	for _, c := range []core.LayerConfiguration{l.Input, l.Output} {
		if err := writeLayerConfiguration(cw, c); err != nil {
			return cw.n, err
		}
	}
	return cw.n, nil
}

func writeLayerConfiguration(w io.Writer, c core.LayerConfiguration) error {
	if err := binary.Write(w, binary.LittleEndian, c.FeatureMapCount); err != nil {
		return fmt.Errorf("failed to write feature map count: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(c.Dimensions))); err != nil {
		return fmt.Errorf("failed to write dimension count: %w", err)
	}
	if len(c.Dimensions) > 0 {
		if err := binary.Write(w, binary.LittleEndian, c.Dimensions); err != nil {
			return fmt.Errorf("failed to write dimensions: %w", err)
		}
	}
	return nil
}

// readHeader is the inverse of writeHeader.
func readHeader(r *bufio.Reader) (core.FileHeader, uint32, Layout, int64, error) {
	var (
		h          core.FileHeader
		entryCount uint32
		inputType  uint8
		layout     Layout
	)
	cr := &countingReader{r: r}
	if err := binary.Read(cr, binary.LittleEndian, &h); err != nil {
		if err == io.EOF {
			return h, 0, layout, cr.n, fmt.Errorf("dataset is empty or truncated at header: %w", io.ErrUnexpectedEOF)
		}
		return h, 0, layout, cr.n, fmt.Errorf("failed to read file header: %w", err)
	}
	if err := h.Check(); err != nil {
		return h, 0, layout, cr.n, err
	}
	if err := binary.Read(cr, binary.LittleEndian, &entryCount); err != nil {
		return h, 0, layout, cr.n, fmt.Errorf("failed to read entry count: %w", err)
	}
	if err := binary.Read(cr, binary.LittleEndian, &inputType); err != nil {
		return h, 0, layout, cr.n, fmt.Errorf("failed to read input type: %w", err)
	}
	layout.InputType = core.InputType(inputType)

	var err error
	if layout.Input, err = readLayerConfiguration(cr); err != nil {
		return h, 0, layout, cr.n, fmt.Errorf("input configuration: %w", err)
	}
	if layout.Output, err = readLayerConfiguration(cr); err != nil {
		return h, 0, layout, cr.n, fmt.Errorf("output configuration: %w", err)
	}
	if err := layout.Validate(); err != nil {
		return h, 0, layout, cr.n, fmt.Errorf("invalid dataset layout: %w", err)
	}
	return h, entryCount, layout, cr.n, nil
}

func readLayerConfiguration(r io.Reader) (core.LayerConfiguration, error) {
	var c core.LayerConfiguration
	var dimCount uint32
	if err := binary.Read(r, binary.LittleEndian, &c.FeatureMapCount); err != nil {
		return c, fmt.Errorf("failed to read feature map count: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &dimCount); err != nil {
		return c, fmt.Errorf("failed to read dimension count: %w", err)
	}
	if dimCount > maxDimensionCount {
		return c, fmt.Errorf("dimension count %d exceeds limit %d", dimCount, maxDimensionCount)
	}
	if dimCount > 0 {
		c.Dimensions = make([]uint32, dimCount)
		if err := binary.Read(r, binary.LittleEndian, c.Dimensions); err != nil {
			return c, fmt.Errorf("failed to read dimensions: %w", err)
		}
	}
	return c, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += int64(n)
	return n, err
}
