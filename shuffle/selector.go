package shuffle

// BalancedSelector drains a BucketTable so that every class is depleted at the
// same pace. Each step draws from the non-empty bucket with the strictly
// largest remaining ratio. Equal ratios go to the class with fewer indexed
// entries, then to the lowest label, so a small class is never held back
// behind larger ones at the start of the stream.
//
// For any two buckets i and j the selector keeps ratio(j) - ratio(i) <= 1/pushed(i)
// after every step, so every output prefix stays close to the full class
// distribution. It is a greedy scheduler without lookahead.
type BalancedSelector struct {
	table     *BucketTable
	remaining int
}

func NewBalancedSelector(table *BucketTable) *BalancedSelector {
	remaining := 0
	for _, b := range table.buckets {
		remaining += b.Len()
	}
	return &BalancedSelector{table: table, remaining: remaining}
}

// Next draws the next entry. ok is false once every bucket is empty.
func (s *BalancedSelector) Next(rnd Rand) (entryID uint32, label uint32, ok bool, err error) {
	var best *ClassBucket
	for _, l := range s.table.labels {
		b := s.table.buckets[l]
		if b.IsEmpty() {
			continue
		}
		if best == nil || preferred(b, best) {
			best, label = b, l
		}
	}
	if best == nil {
		return 0, 0, false, nil
	}
	entryID, err = best.PeekRandom(rnd)
	if err != nil {
		return 0, label, false, err
	}
	s.remaining--
	return entryID, label, true, nil
}

// preferred reports whether b is drawn before current. Labels are visited in
// ascending order, so a full tie keeps current.
func preferred(b, current *ClassBucket) bool {
	switch b.compareRatio(current) {
	case 1:
		return true
	case 0:
		return b.pushedCount < current.pushedCount
	default:
		return false
	}
}

// Remaining is the number of entries not yet drawn.
func (s *BalancedSelector) Remaining() int { return s.remaining }
