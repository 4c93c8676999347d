package pricing

import (
	"math/bits"
	"math/rand/v2"
)

// Sobol generates the first dimension of the Sobol sequence in Gray-code
// order. A non-zero seed applies a random digital shift (XOR scramble) that
// keeps the low-discrepancy structure while making the points random.
type Sobol struct {
	index uint32
	shift uint32
}

// NewSobol creates a generator; seed 0 yields the unscrambled sequence
func NewSobol(seed uint64) *Sobol {
	return &Sobol{shift: scrambleShift(seed)}
}

func scrambleShift(seed uint64) uint32 {
	if seed == 0 {
		return 0
	}
	return rand.New(rand.NewPCG(seed, 0x5851f42d4c957f2d)).Uint32()
}

// Next returns the next point in (0, 1)
func (s *Sobol) Next() float64 {
	u := sobolPoint(s.index, s.shift)
	s.index++
	return u
}

// sobolPoint computes the i-th point directly: the direction numbers of the
// first dimension are powers of two, so the point is the bit-reversed Gray
// code of i. The half-ulp offset keeps 0 out of the range.
func sobolPoint(i, shift uint32) float64 {
	x := bits.Reverse32(i^(i>>1)) ^ shift
	return (float64(x) + 0.5) / (1 << 32)
}
