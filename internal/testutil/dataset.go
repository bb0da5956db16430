package testutil

import (
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/INLOpen/nexusdata/core"
	"github.com/INLOpen/nexusdata/dataset"
)

// OneHotLayout is the layout of the synthetic datasets built here: a 4 byte
// input carrying the entry id and a one-hot output over classes.
func OneHotLayout(classes int) dataset.Layout {
	return dataset.Layout{
		InputType: core.InputTypeByte,
		Input:     core.NewLayerConfiguration(1, 4),
		Output:    core.NewLayerConfiguration(1, uint32(classes)),
	}
}

// WriteOneHotDataset writes counts[c] entries of class c, grouped by class in
// ascending order. Entry ids are assigned sequentially from 0.
func WriteOneHotDataset(t testing.TB, path string, counts []int, compression core.CompressionType) dataset.Layout {
	t.Helper()
	layout := OneHotLayout(len(counts))
	w, err := dataset.Create(path, layout, dataset.WriterOptions{Compression: compression})
	if err != nil {
		t.Fatalf("failed to create dataset %s: %v", path, err)
	}

	input := make([]byte, 4)
	output := make([]float32, len(counts))
	var id uint32
	for class, n := range counts {
		clear(output)
		output[class] = 1
		for i := 0; i < n; i++ {
			binary.LittleEndian.PutUint32(input, id)
			if err := w.Write(input, output); err != nil {
				w.Abort()
				t.Fatalf("failed to write entry %d: %v", id, err)
			}
			id++
		}
	}
	if err := w.Commit(); err != nil {
		t.Fatalf("failed to commit dataset %s: %v", path, err)
	}
	return layout
}

// OpenDataset opens path and closes it when the test ends.
func OpenDataset(t testing.TB, path string) *dataset.Reader {
	t.Helper()
	r, err := dataset.Open(path, dataset.ReaderOptions{})
	if err != nil {
		t.Fatalf("failed to open dataset %s: %v", path, err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

// Entry is a decoded synthetic entry.
type Entry struct {
	ID    uint32
	Class int
}

// ReadEntries reads every remaining entry of a synthetic dataset.
func ReadEntries(t testing.TB, r dataset.SupervisedReader) []Entry {
	t.Helper()
	input := make([]byte, r.InputConfiguration().NeuronCount())
	output := make([]float32, r.OutputConfiguration().NeuronCount())
	var entries []Entry
	for {
		err := r.Read(input, output)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return entries
			}
			t.Fatalf("failed to read entry %d: %v", len(entries), err)
		}
		entries = append(entries, Entry{ID: binary.LittleEndian.Uint32(input), Class: argMax(output)})
	}
}

func argMax(v []float32) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}
