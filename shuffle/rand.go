package shuffle

import "math/rand/v2"

// Rand is the random source shared by one rewrite pass. For a fixed seed the
// sequence of draws fully determines the output order.
type Rand interface {
	// IntN returns a uniform value in [0, n). It panics if n <= 0.
	IntN(n int) int
}

var _ Rand = (*rand.Rand)(nil)

// NewRand returns a seeded PCG generator.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// permute shuffles ids in place with Fisher-Yates.
func permute(ids []uint32, rnd Rand) {
	for i := len(ids) - 1; i > 0; i-- {
		j := rnd.IntN(i + 1)
		ids[i], ids[j] = ids[j], ids[i]
	}
}
