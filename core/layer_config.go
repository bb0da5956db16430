package core

import (
	"fmt"
	"strings"
)

// LayerConfiguration describes the shape of one side (input or output) of an entry:
// a number of feature maps, each spanning the given dimension sizes.
type LayerConfiguration struct {
	FeatureMapCount uint32
	Dimensions      []uint32
}

// NewLayerConfiguration is a convenience constructor.
func NewLayerConfiguration(featureMapCount uint32, dimensions ...uint32) LayerConfiguration {
	return LayerConfiguration{
		FeatureMapCount: featureMapCount,
		Dimensions:      append([]uint32(nil), dimensions...),
	}
}

// MaxLayerNeurons bounds the neuron count of a layer. No record can hold more.
const MaxLayerNeurons = MaxRecordSize

// boundedProduct multiplies n by dims in uint64. Any product above
// MaxLayerNeurons is reported as MaxLayerNeurons+1, so the result never wraps.
func boundedProduct(n uint64, dims []uint32) uint64 {
	const over = MaxLayerNeurons + 1
	for _, d := range dims {
		if n > MaxLayerNeurons {
			n = over
		}
		n *= uint64(d)
	}
	if n > MaxLayerNeurons {
		return over
	}
	return n
}

// NeuronsPerFeatureMap is the product of all dimension sizes (1 for a dimensionless layer).
// Shapes beyond MaxLayerNeurons report MaxLayerNeurons+1.
func (c LayerConfiguration) NeuronsPerFeatureMap() int {
	return int(boundedProduct(1, c.Dimensions))
}

// NeuronCount returns the total number of neurons of the layer. It is exact
// for layers that pass Validate.
func (c LayerConfiguration) NeuronCount() int {
	return int(boundedProduct(uint64(c.FeatureMapCount), c.Dimensions))
}

// Equal reports whether two configurations describe the same shape.
func (c LayerConfiguration) Equal(other LayerConfiguration) bool {
	if c.FeatureMapCount != other.FeatureMapCount || len(c.Dimensions) != len(other.Dimensions) {
		return false
	}
	for i := range c.Dimensions {
		if c.Dimensions[i] != other.Dimensions[i] {
			return false
		}
	}
	return true
}

// Validate rejects empty layers and layers too large for a single record.
func (c LayerConfiguration) Validate(field string) error {
	if c.FeatureMapCount == 0 {
		return &ValidationError{Field: field, Value: c.String(), Message: "feature map count must be positive"}
	}
	for _, d := range c.Dimensions {
		if d == 0 {
			return &ValidationError{Field: field, Value: c.String(), Message: "dimension sizes must be positive"}
		}
	}
	if c.NeuronCount() > MaxLayerNeurons {
		return &ValidationError{Field: field, Value: c.String(), Message: fmt.Sprintf("layer exceeds %d neurons", MaxLayerNeurons)}
	}
	return nil
}

// String renders the configuration as "<fm>x<d0>x<d1>...".
func (c LayerConfiguration) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d", c.FeatureMapCount)
	for _, d := range c.Dimensions {
		fmt.Fprintf(&b, "x%d", d)
	}
	return b.String()
}
