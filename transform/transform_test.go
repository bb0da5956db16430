package transform

import (
	"encoding/binary"
	"io"
	"math"
	"path/filepath"
	"testing"

	"github.com/INLOpen/nexusdata/core"
	"github.com/INLOpen/nexusdata/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFlip2D(t *testing.T) {
	_, err := NewFlip2D(2)
	assert.True(t, core.IsValidationError(err))
	f, err := NewFlip2D(1)
	require.NoError(t, err)
	assert.Equal(t, 2, f.SampleCount())
	assert.False(t, f.IsInPlace())
}

func TestFlip2D_Bytes(t *testing.T) {
	// Two feature maps of 3x2 (width x height).
	config := core.NewLayerConfiguration(2, 3, 2)
	src := []byte{
		1, 2, 3,
		4, 5, 6,

		7, 8, 9,
		10, 11, 12,
	}
	testCases := []struct {
		name      string
		dimension int
		sample    int
		want      []byte
	}{
		{"identity", 0, 0, src},
		{"flip x", 0, 1, []byte{3, 2, 1, 6, 5, 4, 9, 8, 7, 12, 11, 10}},
		{"flip y", 1, 1, []byte{4, 5, 6, 1, 2, 3, 10, 11, 12, 7, 8, 9}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f, err := NewFlip2D(tc.dimension)
			require.NoError(t, err)
			dst := make([]byte, len(src))
			require.NoError(t, f.Transform(src, dst, core.InputTypeByte, config, tc.sample))
			assert.Equal(t, tc.want, dst)
		})
	}
}

func TestFlip2D_FloatKeepsElementsIntact(t *testing.T) {
	config := core.NewLayerConfiguration(1, 2, 1)
	src := make([]byte, 8)
	binary.LittleEndian.PutUint32(src[0:], math.Float32bits(1.5))
	binary.LittleEndian.PutUint32(src[4:], math.Float32bits(-2.25))

	dst := make([]byte, 8)
	require.NoError(t, (&Flip2D{Dimension: 0}).Transform(src, dst, core.InputTypeFloat, config, 1))
	assert.Equal(t, float32(-2.25), math.Float32frombits(binary.LittleEndian.Uint32(dst[0:])))
	assert.Equal(t, float32(1.5), math.Float32frombits(binary.LittleEndian.Uint32(dst[4:])))
}

func TestFlip2D_Errors(t *testing.T) {
	f := &Flip2D{}
	err := f.Transform(make([]byte, 4), make([]byte, 4), core.InputTypeByte, core.NewLayerConfiguration(1, 4), 1)
	assert.ErrorIs(t, err, core.ErrLayoutMismatch)

	err = f.Transform(make([]byte, 3), make([]byte, 4), core.InputTypeByte, core.NewLayerConfiguration(1, 2, 2), 1)
	assert.ErrorIs(t, err, core.ErrLayoutMismatch)

	err = f.Transform(make([]byte, 4), make([]byte, 4), core.InputTypeByte, core.NewLayerConfiguration(1, 2, 2), 2)
	assert.ErrorContains(t, err, "out of range")
}

func TestReader_ExpandsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "images.sds")
	layout := dataset.Layout{
		InputType: core.InputTypeByte,
		Input:     core.NewLayerConfiguration(1, 2, 2),
		Output:    core.NewLayerConfiguration(1, 1),
	}
	w, err := dataset.Create(path, layout, dataset.WriterOptions{Compression: core.CompressionSnappy})
	require.NoError(t, err)
	require.NoError(t, w.Write([]byte{1, 2, 3, 4}, []float32{0.25}))
	require.NoError(t, w.Write([]byte{5, 6, 7, 8}, []float32{0.75}))
	require.NoError(t, w.Commit())

	src, err := dataset.Open(path, dataset.ReaderOptions{})
	require.NoError(t, err)
	defer src.Close()

	r, err := NewReader(src, &Flip2D{Dimension: 0})
	require.NoError(t, err)
	assert.Equal(t, uint32(4), r.EntryCount())
	assert.True(t, r.InputConfiguration().Equal(layout.Input))

	want := []struct {
		input  []byte
		output float32
	}{
		{[]byte{1, 2, 3, 4}, 0.25},
		{[]byte{2, 1, 4, 3}, 0.25},
		{[]byte{5, 6, 7, 8}, 0.75},
		{[]byte{6, 5, 8, 7}, 0.75},
	}
	input := make([]byte, 4)
	output := make([]float32, 1)
	for pass := 0; pass < 2; pass++ {
		for i, w := range want {
			require.NoError(t, r.Read(input, output), "pass %d sample %d", pass, i)
			assert.Equal(t, w.input, input, "pass %d sample %d", pass, i)
			assert.Equal(t, w.output, output[0])
		}
		assert.ErrorIs(t, r.Read(input, output), io.EOF)
		require.NoError(t, r.Reset())
	}

	assert.ErrorIs(t, r.Read(make([]byte, 2), nil), core.ErrLayoutMismatch)
}
