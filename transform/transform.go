package transform

import (
	"fmt"

	"github.com/INLOpen/nexusdata/core"
)

// DataTransformer derives one or more training samples from an entry's input.
type DataTransformer interface {
	// Transform writes sample sampleID of src into dst. Both hold one entry
	// input laid out as config with elements of inputType.
	Transform(src, dst []byte, inputType core.InputType, config core.LayerConfiguration, sampleID int) error
	// IsInPlace reports whether src and dst may alias.
	IsInPlace() bool
	// SampleCount is the number of samples produced per entry.
	SampleCount() int
}

// Flip2D produces two samples per entry: the input unchanged, and the input
// mirrored along one dimension of every feature map. Dimension 0 flips
// horizontally (x), dimension 1 vertically (y).
type Flip2D struct {
	Dimension int
}

var _ DataTransformer = (*Flip2D)(nil)

func NewFlip2D(dimension int) (*Flip2D, error) {
	if dimension != 0 && dimension != 1 {
		return nil, &core.ValidationError{Field: "flip_dimension", Value: fmt.Sprint(dimension), Message: "must be 0 (x) or 1 (y)"}
	}
	return &Flip2D{Dimension: dimension}, nil
}

func (f *Flip2D) Transform(src, dst []byte, inputType core.InputType, config core.LayerConfiguration, sampleID int) error {
	if len(config.Dimensions) != 2 {
		return fmt.Errorf("%w: flip needs a 2D input, got %s", core.ErrLayoutMismatch, config)
	}
	elem := inputType.ElementSize()
	if elem == 0 {
		return inputType.Validate()
	}
	size := config.NeuronCount() * elem
	if len(src) < size || len(dst) < size {
		return fmt.Errorf("%w: buffers hold %d and %d bytes, input needs %d", core.ErrLayoutMismatch, len(src), len(dst), size)
	}

	switch sampleID {
	case 0:
		copy(dst[:size], src[:size])
		return nil
	case 1:
	default:
		return fmt.Errorf("sample %d out of range [0, %d)", sampleID, f.SampleCount())
	}

	width := int(config.Dimensions[0])
	height := int(config.Dimensions[1])
	row := width * elem
	plane := height * row
	for fm := 0; fm < int(config.FeatureMapCount); fm++ {
		base := fm * plane
		for y := 0; y < height; y++ {
			srcRow := src[base+y*row : base+(y+1)*row]
			if f.Dimension == 1 {
				dy := height - 1 - y
				copy(dst[base+dy*row:base+(dy+1)*row], srcRow)
				continue
			}
			dstRow := dst[base+y*row : base+(y+1)*row]
			for x := 0; x < width; x++ {
				dx := width - 1 - x
				copy(dstRow[dx*elem:(dx+1)*elem], srcRow[x*elem:(x+1)*elem])
			}
		}
	}
	return nil
}

func (f *Flip2D) IsInPlace() bool  { return false }
func (f *Flip2D) SampleCount() int { return 2 }
