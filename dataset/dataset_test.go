package dataset

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/INLOpen/nexusdata/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatLayout() Layout {
	return Layout{
		InputType: core.InputTypeFloat,
		Input:     core.NewLayerConfiguration(1, 2, 2),
		Output:    core.NewLayerConfiguration(1, 3),
	}
}

// testEntry builds deterministic entry i for floatLayout.
func testEntry(i int) ([]byte, []float32) {
	input := make([]byte, 16)
	for k := 0; k < 4; k++ {
		binary.LittleEndian.PutUint32(input[4*k:], math.Float32bits(float32(i*10+k)))
	}
	output := []float32{0, 0, 0}
	output[i%3] = 1
	return input, output
}

func writeTestDataset(t *testing.T, path string, n int, ct core.CompressionType) {
	t.Helper()
	w, err := Create(path, floatLayout(), WriterOptions{Compression: ct})
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		in, out := testEntry(i)
		require.NoError(t, w.Write(in, out))
	}
	require.Equal(t, uint32(n), w.EntryCount())
	require.NoError(t, w.Commit())
}

func openTestDataset(t *testing.T, path string) *Reader {
	t.Helper()
	r, err := Open(path, ReaderOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestReaderWriter_RoundTrip(t *testing.T) {
	for _, ct := range []core.CompressionType{core.CompressionNone, core.CompressionSnappy, core.CompressionLZ4, core.CompressionZSTD} {
		t.Run(ct.String(), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "train.sds")
			writeTestDataset(t, path, 25, ct)

			r := openTestDataset(t, path)
			assert.Equal(t, uint32(25), r.EntryCount())
			assert.Equal(t, ct, r.Compression())
			assert.True(t, r.Layout().Equal(floatLayout()))
			assert.Equal(t, core.InputTypeFloat, r.InputType())
			assert.Equal(t, core.DatasetMagicNumber, r.Header().Magic)

			input := make([]byte, 16)
			output := make([]float32, 3)
			for i := 0; i < 25; i++ {
				require.True(t, r.EntryAvailable())
				require.NoError(t, r.Read(input, output))
				wantIn, wantOut := testEntry(i)
				assert.Equal(t, wantIn, input, "entry %d input", i)
				assert.Equal(t, wantOut, output, "entry %d output", i)
			}
			assert.False(t, r.EntryAvailable())
			assert.ErrorIs(t, r.Read(input, output), io.EOF)

			require.NoError(t, r.Reset())
			require.NoError(t, r.Read(input, output))
			wantIn, _ := testEntry(0)
			assert.Equal(t, wantIn, input)
		})
	}
}

func TestWriter_CommitLeavesNoTemporaryFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "train.sds")
	writeTestDataset(t, path, 3, core.CompressionNone)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "train.sds", entries[0].Name())
}

func TestWriter_Abort(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "train.sds")
	w, err := Create(path, floatLayout(), WriterOptions{Compression: core.CompressionLZ4})
	require.NoError(t, err)
	in, out := testEntry(0)
	require.NoError(t, w.Write(in, out))
	require.NoError(t, w.Abort())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.ErrorIs(t, w.Write(in, out), core.ErrWriterClosed)

	// The lock was released, so the same path can be created again.
	w, err = Create(path, floatLayout(), WriterOptions{})
	require.NoError(t, err)
	require.NoError(t, w.Commit())
}

func TestWriter_RejectsLayoutMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.sds")
	w, err := Create(path, floatLayout(), WriterOptions{})
	require.NoError(t, err)
	defer w.Abort()

	err = w.Write(make([]byte, 15), make([]float32, 3))
	assert.ErrorIs(t, err, core.ErrLayoutMismatch)
	err = w.Write(make([]byte, 16), make([]float32, 2))
	assert.ErrorIs(t, err, core.ErrLayoutMismatch)
	assert.Equal(t, uint32(0), w.EntryCount())
}

func TestCreate_InvalidLayout(t *testing.T) {
	dir := t.TempDir()
	layout := floatLayout()
	layout.InputType = core.InputType(9)
	_, err := Create(filepath.Join(dir, "bad.sds"), layout, WriterOptions{})
	require.Error(t, err)
	assert.True(t, core.IsValidationError(err))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReader_EmptyDataset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.sds")
	writeTestDataset(t, path, 0, core.CompressionZSTD)

	r := openTestDataset(t, path)
	assert.Equal(t, uint32(0), r.EntryCount())
	assert.False(t, r.EntryAvailable())
	assert.ErrorIs(t, r.Read(nil, nil), io.EOF)
	require.NoError(t, r.Rewind(0))
}

func TestReader_BufferTooSmall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.sds")
	writeTestDataset(t, path, 2, core.CompressionNone)
	r := openTestDataset(t, path)

	assert.ErrorIs(t, r.Read(make([]byte, 8), nil), core.ErrLayoutMismatch)
	assert.ErrorIs(t, r.Read(nil, make([]float32, 1)), core.ErrLayoutMismatch)
	// A rejected read does not consume the entry.
	assert.Equal(t, uint32(0), r.Position().EntryID)

	output := make([]float32, 3)
	require.NoError(t, r.Read(nil, output))
	_, wantOut := testEntry(0)
	assert.Equal(t, wantOut, output)
}

func TestReader_SeekAndRewind(t *testing.T) {
	for _, ct := range []core.CompressionType{core.CompressionNone, core.CompressionSnappy} {
		t.Run(ct.String(), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "train.sds")
			writeTestDataset(t, path, 10, ct)
			r := openTestDataset(t, path)

			input := make([]byte, 16)
			cursors := make([]Cursor, 10)
			for i := 0; i < 10; i++ {
				cursors[i] = r.Position()
				require.NoError(t, r.Read(input, nil))
			}

			for _, i := range []int{7, 0, 9, 3} {
				require.NoError(t, r.Seek(cursors[i]))
				require.NoError(t, r.Read(input, nil))
				want, _ := testEntry(i)
				assert.Equal(t, want, input, "seek to entry %d", i)

				require.NoError(t, r.Rewind(uint32(i)))
				assert.Equal(t, cursors[i], r.Position())
			}

			require.NoError(t, r.Rewind(10))
			assert.ErrorIs(t, r.Read(input, nil), io.EOF)

			err := r.Rewind(11)
			assert.True(t, core.IsLogicViolation(err))
			err = r.Seek(Cursor{Offset: 0})
			assert.True(t, core.IsLogicViolation(err))
		})
	}
}

func TestCreateLike_CopiesRecordsVerbatim(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src.sds")
	writeTestDataset(t, srcPath, 6, core.CompressionZSTD)
	src := openTestDataset(t, srcPath)

	dstPath := filepath.Join(dir, "dst.sds")
	w, err := CreateLike(dstPath, src, WriterOptions{Compression: core.CompressionNone})
	require.NoError(t, err)
	assert.Equal(t, core.CompressionZSTD, w.Compression())

	for i := 5; i >= 0; i-- {
		require.NoError(t, src.Rewind(uint32(i)))
		data, err := src.ReadRecord()
		require.NoError(t, err)
		require.NoError(t, w.WriteRecord(data))
	}
	require.NoError(t, w.Commit())

	dst := openTestDataset(t, dstPath)
	require.Equal(t, uint32(6), dst.EntryCount())
	input := make([]byte, 16)
	output := make([]float32, 3)
	for i := 5; i >= 0; i-- {
		require.NoError(t, dst.Read(input, output))
		wantIn, wantOut := testEntry(i)
		assert.Equal(t, wantIn, input)
		assert.Equal(t, wantOut, output)
	}
}

func TestReader_Corruption(t *testing.T) {
	t.Run("checksum mismatch", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "train.sds")
		writeTestDataset(t, path, 3, core.CompressionNone)
		r := openTestDataset(t, path)
		dataStart := r.dataStart
		require.NoError(t, r.Close())

		f, err := os.OpenFile(path, os.O_RDWR, 0644)
		require.NoError(t, err)
		_, err = f.WriteAt([]byte{0xFF, 0xFF}, dataStart+core.RecordLengthSize)
		require.NoError(t, err)
		require.NoError(t, f.Close())

		r = openTestDataset(t, path)
		err = r.Read(make([]byte, 16), make([]float32, 3))
		require.Error(t, err)
		assert.ErrorIs(t, err, core.ErrChecksumMismatch)
		assert.True(t, core.IsCorruption(err))

		var ce *core.CorruptionError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, uint32(0), ce.EntryID)
		assert.Equal(t, dataStart, ce.Offset)
		assert.Equal(t, path, ce.Path)
	})

	t.Run("truncated", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "train.sds")
		writeTestDataset(t, path, 3, core.CompressionSnappy)
		info, err := os.Stat(path)
		require.NoError(t, err)
		require.NoError(t, os.Truncate(path, info.Size()-3))

		r := openTestDataset(t, path)
		input := make([]byte, 16)
		require.NoError(t, r.Read(input, nil))
		require.NoError(t, r.Read(input, nil))
		err = r.Read(input, nil)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
		assert.True(t, core.IsCorruption(err))
	})

	t.Run("record length beyond limit", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "train.sds")
		writeTestDataset(t, path, 3, core.CompressionSnappy)
		r := openTestDataset(t, path)
		dataStart := r.dataStart
		require.NoError(t, r.Close())

		f, err := os.OpenFile(path, os.O_RDWR, 0644)
		require.NoError(t, err)
		_, err = f.WriteAt([]byte{0xFF, 0xFF, 0xFF, 0xFF}, dataStart)
		require.NoError(t, err)
		require.NoError(t, f.Close())

		r = openTestDataset(t, path)
		readErr := r.Read(nil, nil)
		require.NoError(t, r.Reset())
		rewindErr := r.Rewind(2)
		for _, err := range []error{readErr, rewindErr} {
			assert.ErrorIs(t, err, core.ErrCorruptRecord)
			assert.ErrorContains(t, err, "exceeds limit")
			assert.True(t, core.IsCorruption(err))
		}
	})

	t.Run("oversized layout", func(t *testing.T) {
		layouts := map[string]Layout{
			"neuron count overflows int64": {
				InputType: core.InputTypeByte,
				Input:     core.NewLayerConfiguration(1, 4),
				Output:    core.NewLayerConfiguration(4, 65536, 65536, 65536, 32768),
			},
			"neuron count wraps to zero": {
				InputType: core.InputTypeByte,
				Input:     core.NewLayerConfiguration(1, 4),
				Output:    core.NewLayerConfiguration(4, 65536, 65536, 65536, 65536),
			},
			"payload beyond record limit": {
				InputType: core.InputTypeFloat,
				Input:     core.NewLayerConfiguration(1, 1<<26),
				Output:    core.NewLayerConfiguration(1, 2),
			},
		}
		for name, layout := range layouts {
			t.Run(name, func(t *testing.T) {
				var buf bytes.Buffer
				_, err := writeHeader(&buf, core.NewFileHeader(core.DatasetMagicNumber, core.CompressionNone), 1, layout)
				require.NoError(t, err)

				_, err = NewReader(bytes.NewReader(buf.Bytes()), ReaderOptions{})
				require.Error(t, err)
				assert.True(t, core.IsValidationError(err), "got %v", err)

				_, err = NewWriter(&seekBuffer{}, layout, WriterOptions{})
				assert.True(t, core.IsValidationError(err), "got %v", err)
			})
		}
	})

	t.Run("bad magic", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bogus.sds")
		require.NoError(t, os.WriteFile(path, make([]byte, 64), 0644))
		_, err := Open(path, ReaderOptions{})
		assert.ErrorContains(t, err, "invalid magic number")
	})

	t.Run("empty file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "zero.sds")
		require.NoError(t, os.WriteFile(path, nil, 0644))
		_, err := Open(path, ReaderOptions{})
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})
}

func TestNewWriter_PatchesEntryCount(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "stream.sds"))
	require.NoError(t, err)
	defer f.Close()

	w, err := NewWriter(f, floatLayout(), WriterOptions{Compression: core.CompressionLZ4})
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		in, out := testEntry(i)
		require.NoError(t, w.Write(in, out))
	}
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	r, err := NewReader(f, ReaderOptions{})
	require.NoError(t, err)
	assert.Equal(t, uint32(4), r.EntryCount())
	assert.Equal(t, "", r.Path())
	assert.Equal(t, w.Size(), r.dataStart+int64(4*core.RecordOverhead)+sumRecordBytes(t, r))
}

func sumRecordBytes(t *testing.T, r *Reader) int64 {
	t.Helper()
	var total int64
	for r.EntryAvailable() {
		data, err := r.ReadRecord()
		require.NoError(t, err)
		total += int64(len(data))
	}
	return total
}

func TestSummarize_IgnoresOrderAndCodec(t *testing.T) {
	dir := t.TempDir()
	fwdPath := filepath.Join(dir, "fwd.sds")
	writeTestDataset(t, fwdPath, 8, core.CompressionNone)

	revPath := filepath.Join(dir, "rev.sds")
	w, err := Create(revPath, floatLayout(), WriterOptions{Compression: core.CompressionZSTD})
	require.NoError(t, err)
	for i := 7; i >= 0; i-- {
		in, out := testEntry(i)
		require.NoError(t, w.Write(in, out))
	}
	require.NoError(t, w.Commit())

	fwd := openTestDataset(t, fwdPath)
	rev := openTestDataset(t, revPath)
	a, err := Summarize(fwd)
	require.NoError(t, err)
	b, err := Summarize(rev)
	require.NoError(t, err)

	assert.Equal(t, uint32(8), a.Entries)
	assert.Equal(t, a.ContentDigest, b.ContentDigest)
	assert.Equal(t, int64(8*floatLayout().RawSize()), a.RawBytes)
	assert.Equal(t, a.RawBytes+8*core.RecordOverhead, a.StoredBytes)
	assert.True(t, fwd.EntryAvailable(), "reader is rewound after summarizing")

	// A dataset missing one entry differs.
	shortPath := filepath.Join(dir, "short.sds")
	writeTestDataset(t, shortPath, 7, core.CompressionNone)
	c, err := Summarize(openTestDataset(t, shortPath))
	require.NoError(t, err)
	assert.NotEqual(t, a.ContentDigest, c.ContentDigest)
}

// seekBuffer is an in-memory io.WriteSeeker.
type seekBuffer struct {
	data []byte
	pos  int
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	if end := b.pos + len(p); end > len(b.data) {
		b.data = append(b.data, make([]byte, end-len(b.data))...)
	}
	n := copy(b.data[b.pos:], p)
	b.pos += n
	return n, nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		b.pos = int(offset)
	case io.SeekCurrent:
		b.pos += int(offset)
	case io.SeekEnd:
		b.pos = len(b.data) + int(offset)
	}
	return int64(b.pos), nil
}
