// Package store defines the durable storage contract consumed by the core
// and its SQLite implementation.
package store

import (
	"context"
	"errors"

	"github.com/trpgtools/dice-server/pkg/clock"
)

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("not found")

// Session is the validated shape of a session row.
type Session struct {
	ID        string
	Password  string
	Mode      string
	Clock     clock.State
	CreatedAt int64
	UpdatedAt int64
}

// Message is one entry of a session's append-only chat/roll log.
type Message struct {
	ID           string
	SessionID    string
	SpeakerName  string
	RawText      string
	RenderedText string
	ResultJSON   string // empty for plain chat
	Type         string // "chat" or "dice"
	CreatedAt    int64
}

// Store is the durable key-value contract: session clock rows, the quantum
// FIFO with atomic consume, the chat log, and room snapshots plus an
// append-only roll log (both stored as opaque JSON, last-writer-wins).
type Store interface {
	CreateSession(ctx context.Context, session Session) error
	GetSession(ctx context.Context, id string) (Session, error)
	UpdateClock(ctx context.Context, id string, state clock.State, now int64) error
	UpdateMode(ctx context.Context, id, mode string, now int64) error

	InsertQuantumBatch(ctx context.Context, sessionID string, values []int) error
	ConsumeQuantum(ctx context.Context, sessionID string) (int, bool, error)

	AppendMessage(ctx context.Context, msg Message) error

	GetRoomState(ctx context.Context, roomID string) ([]byte, bool, error)
	UpsertRoomState(ctx context.Context, roomID string, stateJSON []byte, updatedAt int64) error
	AppendRoll(ctx context.Context, id, roomID string, payload []byte, createdAt int64) error

	Close() error
}
