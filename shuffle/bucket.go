package shuffle

import (
	"cmp"

	"github.com/INLOpen/nexusdata/core"
)

// ClassBucket holds the not yet emitted entry ids of one class and tracks the
// fraction of its indexed entries that remain.
//
// Order within a bucket is never observable: PeekRandom removes by swapping
// with the last element.
type ClassBucket struct {
	entryIDs    []uint32
	pushedCount int
	ratio       float64
}

func NewClassBucket() *ClassBucket {
	return &ClassBucket{}
}

// Push adds an entry id. Callers never push the same id twice.
func (b *ClassBucket) Push(entryID uint32) {
	b.entryIDs = append(b.entryIDs, entryID)
	b.pushedCount++
	b.updateRatio()
}

// PeekRandom removes and returns a uniformly chosen remaining entry id.
// It returns core.ErrEmptyBucket when nothing remains.
func (b *ClassBucket) PeekRandom(rnd Rand) (uint32, error) {
	n := len(b.entryIDs)
	if n == 0 {
		return 0, core.ErrEmptyBucket
	}
	i := rnd.IntN(n)
	id := b.entryIDs[i]
	b.entryIDs[i] = b.entryIDs[n-1]
	b.entryIDs = b.entryIDs[:n-1]
	b.updateRatio()
	return id, nil
}

// Ratio is Len() / PushedCount(), or 0 for a bucket that never received an entry.
func (b *ClassBucket) Ratio() float64 { return b.ratio }

func (b *ClassBucket) IsEmpty() bool    { return len(b.entryIDs) == 0 }
func (b *ClassBucket) Len() int         { return len(b.entryIDs) }
func (b *ClassBucket) PushedCount() int { return b.pushedCount }

func (b *ClassBucket) updateRatio() {
	if b.pushedCount == 0 {
		b.ratio = 0
		return
	}
	b.ratio = float64(len(b.entryIDs)) / float64(b.pushedCount)
}

// compareRatio compares remaining ratios exactly, without float rounding.
func (b *ClassBucket) compareRatio(other *ClassBucket) int {
	return cmp.Compare(uint64(len(b.entryIDs))*uint64(other.pushedCount), uint64(len(other.entryIDs))*uint64(b.pushedCount))
}
