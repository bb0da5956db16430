package shuffle

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/INLOpen/nexusdata/core"
	"github.com/INLOpen/nexusdata/dataset"
)

// Source is the positioned, seekable entry stream a rewrite reads from.
// *dataset.Reader implements it.
type Source interface {
	dataset.SupervisedReader
	ReadRecord() ([]byte, error)
	Position() dataset.Cursor
	Seek(c dataset.Cursor) error
	Layout() dataset.Layout
	Compression() core.CompressionType
	Path() string
}

// Sink receives stored records in the layout and codec of the source.
// *dataset.Writer implements it.
type Sink interface {
	WriteRecord(data []byte) error
	Layout() dataset.Layout
	Compression() core.CompressionType
}

var (
	_ Source = (*dataset.Reader)(nil)
	_ Sink   = (*dataset.Writer)(nil)
)

// BucketTable maps class labels to their buckets and remembers where every
// indexed entry starts in the source. It lives for a single rewrite pass.
type BucketTable struct {
	buckets   map[uint32]*ClassBucket
	labels    []uint32
	positions []dataset.Cursor
}

// BuildBucketTable runs the classification pass: every entry's position is
// captured and its id pushed into the bucket of its label. Buckets are created
// on first push. The source is rewound to the first entry afterwards.
func BuildBucketTable(src Source, classify Classifier) (*BucketTable, error) {
	t := &BucketTable{
		buckets:   make(map[uint32]*ClassBucket),
		positions: make([]dataset.Cursor, 0, src.EntryCount()),
	}
	output := make([]float32, src.OutputConfiguration().NeuronCount())

	err := scanPositions(src, func(pos dataset.Cursor) error {
		if err := src.Read(nil, output); err != nil {
			return err
		}
		label := classify(output)
		b, ok := t.buckets[label]
		if !ok {
			b = NewClassBucket()
			t.buckets[label] = b
			t.labels = append(t.labels, label)
		}
		b.Push(uint32(len(t.positions)))
		t.positions = append(t.positions, pos)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(t.labels)
	return t, nil
}

// indexPositions captures the position of every entry without decoding payloads.
func indexPositions(src Source) ([]dataset.Cursor, error) {
	positions := make([]dataset.Cursor, 0, src.EntryCount())
	err := scanPositions(src, func(pos dataset.Cursor) error {
		if _, err := src.ReadRecord(); err != nil {
			return err
		}
		positions = append(positions, pos)
		return nil
	})
	return positions, err
}

// scanPositions calls visit once per entry with the position in front of it.
// visit must consume exactly that entry.
func scanPositions(src Source, visit func(pos dataset.Cursor) error) error {
	if err := src.Reset(); err != nil {
		return fmt.Errorf("failed to reset source before indexing: %w", err)
	}
	var n uint32
	for n < src.EntryCount() {
		if err := visit(src.Position()); err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: entry %d: %w", core.ErrCorruptRecord, n, io.ErrUnexpectedEOF)
			}
			return fmt.Errorf("failed to index entry %d: %w", n, err)
		}
		n++
	}
	if err := src.Reset(); err != nil {
		return fmt.Errorf("failed to reset source after indexing: %w", err)
	}
	return nil
}

// Labels returns the class labels in ascending order.
func (t *BucketTable) Labels() []uint32 { return slices.Clone(t.labels) }

// Bucket returns the bucket of label, or nil if no entry carried it.
func (t *BucketTable) Bucket(label uint32) *ClassBucket { return t.buckets[label] }

// Len is the number of distinct classes.
func (t *BucketTable) Len() int { return len(t.buckets) }

// EntryCount is the number of indexed entries.
func (t *BucketTable) EntryCount() uint32 { return uint32(len(t.positions)) }

// Position returns where entryID starts in the source.
func (t *BucketTable) Position(entryID uint32) (dataset.Cursor, error) {
	if int(entryID) >= len(t.positions) {
		return dataset.Cursor{}, fmt.Errorf("%w: entry %d was never indexed", core.ErrLogicViolation, entryID)
	}
	return t.positions[entryID], nil
}

// ClassCounts returns the number of indexed entries per label.
func (t *BucketTable) ClassCounts() map[uint32]int {
	counts := make(map[uint32]int, len(t.buckets))
	for label, b := range t.buckets {
		counts[label] = b.PushedCount()
	}
	return counts
}
