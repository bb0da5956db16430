package dataset

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Summary fingerprints the entries of a dataset independently of their
// order and of the codec they are stored with. A shuffled copy has the same
// Summary as its source.
type Summary struct {
	Entries       uint32
	ContentDigest uint64 // wrapping sum of the xxhash64 of every decoded payload
	RawBytes      int64
	StoredBytes   int64
}

// Summarize decodes and checksums every entry of r. The reader is rewound to
// the first entry before and after the scan.
func Summarize(r *Reader) (Summary, error) {
	var s Summary
	if err := r.Reset(); err != nil {
		return s, err
	}
	for r.EntryAvailable() {
		start := r.offset
		if err := r.Read(nil, nil); err != nil {
			return s, fmt.Errorf("failed to summarize entry %d: %w", s.Entries, err)
		}
		s.Entries++
		s.ContentDigest += xxhash.Sum64(r.rawBuf)
		s.RawBytes += int64(len(r.rawBuf))
		s.StoredBytes += r.offset - start
	}
	return s, r.Reset()
}
