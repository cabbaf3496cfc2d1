package random

import "context"

// Quantum draws from a session's pre-fetched pool of externally sourced
// numbers. Once the pool is exhausted it silently substitutes crypto draws;
// exhaustion is never surfaced as an error.
type Quantum struct {
	queue     Queue
	sessionID string
	fallback  Crypto
}

// NewQuantum binds a quantum source to one session's queue.
func NewQuantum(queue Queue, sessionID string) *Quantum {
	return &Quantum{queue: queue, sessionID: sessionID}
}

// Draw consumes the lowest unconsumed number, scaled to [0,1). Storage
// failures abort the draw; an empty queue falls back to crypto.
func (q *Quantum) Draw(ctx context.Context) (float64, error) {
	v, ok, err := q.queue.ConsumeQuantum(ctx, q.sessionID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return q.fallback.Draw(ctx)
	}
	return float64(v%100) / 100, nil
}
