package warming

import (
	"crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"time"
)

// newRand returns a PRNG seeded independently of any other call, per the
// rate-limit contract's requirement that every timing/probability draw
// be seeded independently (§4.5) rather than sharing one process-wide
// stream across devices and sessions.
func newRand() *rand.Rand {
	var seed [32]byte
	_, _ = rand.Read(seed[:])
	return rand.New(rand.NewChaCha8(seed))
}

// uniformSeconds draws from uniform(min, max) and returns the result as
// a Duration.
func uniformSeconds(r *rand.Rand, min, max float64) time.Duration {
	if max <= min {
		return time.Duration(min * float64(time.Second))
	}
	v := min + r.Float64()*(max-min)
	return time.Duration(v * float64(time.Second))
}

// uniformInt draws a uniform integer in [min, max], inclusive.
func uniformInt(r *rand.Rand, min, max int) int {
	if max <= min {
		return min
	}
	return min + r.IntN(max-min+1)
}

// chance reports true with probability p (0..1).
func chance(r *rand.Rand, p float64) bool {
	return r.Float64() < p
}
