package random

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
)

// Word returns a uniform 32-bit word from the platform CSPRNG.
func Word() (uint32, error) {
	var buf [4]byte
	if _, err := crand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("read crypto rand: %w", err)
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// Crypto is the non-deterministic Source, used directly in the real-time room
// and as the substitute once a quantum queue runs dry.
type Crypto struct{}

// Draw returns a value in [0,1) with two-digit granularity, matching the
// scale of the other sources.
func (Crypto) Draw(_ context.Context) (float64, error) {
	w, err := Word()
	if err != nil {
		return 0, err
	}
	return float64(w%100) / 100, nil
}
