package sim

import "math/rand/v2"

// Random is the source of firing-time draws.
type Random interface {
	// ExpFloat64 returns an exponentially distributed value with rate 1.
	ExpFloat64() float64
}

// NewRandom returns a PCG source. Equal seeds give identical runs.
func NewRandom(seed uint64) Random {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
