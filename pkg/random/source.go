// Package random provides the interchangeable randomness sources behind dice
// resolution: a deterministic generator seeded by the game clock, a finite
// pre-fetched quantum pool, and a crypto-backed fallback.
package random

import "context"

// Source produces uniform draws in [0,1). Draws may require I/O, so every
// draw takes a context.
type Source interface {
	Draw(ctx context.Context) (float64, error)
}

// Queue dispenses pre-fetched quantum numbers for a session. The second
// return value is false once the pool is exhausted. Each number is dispensed
// exactly once; implementations must make the read-and-mark step atomic.
type Queue interface {
	ConsumeQuantum(ctx context.Context, sessionID string) (int, bool, error)
}
