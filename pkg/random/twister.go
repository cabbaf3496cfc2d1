package random

import (
	"context"
	"math/bits"
)

const (
	stateSize = 624
	shiftSize = 397
	matrixA   = 0x9908b0df
	upperMask = 0x80000000
	lowerMask = 0x7fffffff
)

// Twister is a 32-bit MT19937 generator matching Ruby's Random bit for bit.
// For a fixed seed the output sequence is identical across runs and across
// reimplementations; that reproducibility is the contract, so the unsigned
// 32-bit arithmetic below must not be "improved".
type Twister struct {
	state [stateSize]uint32
	index int
}

// NewTwister seeds a generator. The seeding recurrence is the reference
// init_genrand: state[i] = 1812433253*(state[i-1]^(state[i-1]>>30)) + i.
func NewTwister(seed uint32) *Twister {
	t := &Twister{index: stateSize}
	t.state[0] = seed
	for i := 1; i < stateSize; i++ {
		prev := t.state[i-1]
		t.state[i] = 1812433253*(prev^(prev>>30)) + uint32(i)
	}
	return t
}

// NextWord returns the next tempered 32-bit word, regenerating the whole
// state block via the twist recurrence when the cursor runs off the end.
func (t *Twister) NextWord() uint32 {
	if t.index >= stateSize {
		for k := 0; k < stateSize; k++ {
			y := (t.state[k] & upperMask) | (t.state[(k+1)%stateSize] & lowerMask)
			next := t.state[(k+shiftSize)%stateSize] ^ (y >> 1)
			if y&1 == 1 {
				next ^= matrixA
			}
			t.state[k] = next
		}
		t.index = 0
	}

	y := t.state[t.index]
	t.index++

	y ^= y >> 11
	y ^= (y << 7) & 0x9d2c5680
	y ^= (y << 15) & 0xefc60000
	y ^= y >> 18
	return y
}

// Uniform combines two successive words into a 53-bit double in [0,1).
func (t *Twister) Uniform() float64 {
	a := t.NextWord() >> 5
	b := t.NextWord() >> 6
	return (float64(a)*67108864.0 + float64(b)) / 9007199254740992.0
}

// BoundedInt returns a uniform integer in [0,limit] by rejection sampling:
// build the smallest all-ones mask covering limit, OR together enough words
// to cover the mask width, and redraw while the masked value exceeds limit.
func (t *Twister) BoundedInt(limit uint32) uint32 {
	mask := makeMask(limit)
	chunks := (bits.Len32(mask) + 31) / 32
	for {
		var v uint32
		for i := 0; i < chunks; i++ {
			v |= t.NextWord() << (32 * i)
		}
		v &= mask
		if v <= limit {
			return v
		}
	}
}

// Rand mirrors Ruby's rand(n): a uniform integer in [0,n).
func (t *Twister) Rand(n uint32) uint32 {
	if n == 0 {
		return 0
	}
	return t.BoundedInt(n - 1)
}

func makeMask(limit uint32) uint32 {
	width := bits.Len32(limit)
	if width == 0 {
		width = 1
	}
	return uint32(uint64(1)<<width - 1)
}

// Seeded is the deterministic Source: a Twister keyed by the game clock.
// Draws are stateful, so callers must draw sequentially.
type Seeded struct {
	t *Twister
}

// NewSeeded derives the seed from the game clock value, truncated to seconds
// so every draw within the same game-time second shares a seed.
func NewSeeded(gameTimeMs int64) *Seeded {
	return &Seeded{t: NewTwister(uint32(gameTimeMs / 1000))}
}

// Draw returns the next value in [0,1) with two-digit granularity.
func (s *Seeded) Draw(_ context.Context) (float64, error) {
	return float64(s.t.Rand(100)) / 100, nil
}
