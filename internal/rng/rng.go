// internal/rng/rng.go
package rng

import (
	"hash/fnv"

	"github.com/MichaelTJones/pcg"
)

// defaultSeq is the PCG stream used by a root generator. Split streams
// derive theirs from a label hash so subsystems sharing one session seed
// still draw from independent sequences.
const defaultSeq = 0xda3e39cb94b95bdb

// Rand is a deterministic, seedable generator. Sessions create one root
// generator from the session seed and hand each subsystem its own Split
// so that, say, an extra sway sample can never shift which delivery point
// the zone picker draws next.
type Rand struct {
	r    *pcg.PCG32
	seed uint64
}

// New returns a root generator for seed.
func New(seed uint64) *Rand {
	g := pcg.NewPCG32()
	g.Seed(seed, defaultSeq)
	return &Rand{r: g, seed: seed}
}

// Split derives an independent stream for label from the same seed.
// Equal (seed, label) pairs always yield the same sequence.
func (r *Rand) Split(label string) *Rand {
	h := fnv.New64a()
	h.Write([]byte(label))
	g := pcg.NewPCG32()
	g.Seed(r.seed, h.Sum64())
	return &Rand{r: g, seed: r.seed}
}

// Uint32 returns the next raw draw.
func (r *Rand) Uint32() uint32 {
	return r.r.Random()
}

// Float64 returns a uniform draw from [0,1) with 53 bits of precision.
func (r *Rand) Float64() float64 {
	hi := uint64(r.r.Random())
	lo := uint64(r.r.Random())
	return float64((hi<<32|lo)>>11) / (1 << 53)
}

// Range returns a uniform draw from [lo,hi). Degenerate bounds return lo.
func (r *Rand) Range(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + (hi-lo)*r.Float64()
}

// Intn returns a uniform draw from [0,n). n <= 0 returns 0.
func (r *Rand) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(r.r.Bounded(uint32(n)))
}
