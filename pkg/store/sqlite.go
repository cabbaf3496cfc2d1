package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/trpgtools/dice-server/pkg/clock"
)

// SQLiteStore implements Store on a single SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite allows one writer at a time; funnel everything through a
	// single connection so concurrent draws queue instead of failing
	// with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	// WAL mode for better concurrency between the room actors and the
	// session handlers.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all tables if they do not exist yet.
func (s *SQLiteStore) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			password TEXT NOT NULL,
			mode TEXT NOT NULL DEFAULT 'system',
			game_time_elapsed INTEGER NOT NULL DEFAULT 0,
			last_resumed_at INTEGER,
			created_at INTEGER NOT NULL,
			last_updated INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS quantum_numbers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			value INTEGER NOT NULL,
			consumed INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_quantum_session
			ON quantum_numbers (session_id, consumed, id)`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			speaker_name TEXT NOT NULL,
			raw_text TEXT NOT NULL,
			rendered_text TEXT NOT NULL,
			result_json TEXT,
			type TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS room_state (
			room_id TEXT PRIMARY KEY,
			state_json TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS room_rolls (
			id TEXT PRIMARY KEY,
			room_id TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("run migration: %w", err)
		}
	}
	return nil
}

// CreateSession inserts a new session row.
func (s *SQLiteStore) CreateSession(ctx context.Context, session Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, password, mode, game_time_elapsed, last_resumed_at, created_at, last_updated)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.Password, session.Mode,
		session.Clock.ElapsedMs, nullableMillis(session.Clock.RunningSince),
		session.CreatedAt, session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession loads and normalizes a session row.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, password, mode, game_time_elapsed, last_resumed_at, created_at, last_updated
		 FROM sessions WHERE id = ?`, id)

	var session Session
	var resumedAt sql.NullInt64
	err := row.Scan(&session.ID, &session.Password, &session.Mode,
		&session.Clock.ElapsedMs, &resumedAt, &session.CreatedAt, &session.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("query session: %w", err)
	}
	if resumedAt.Valid {
		session.Clock.RunningSince = &resumedAt.Int64
	}
	return session, nil
}

// UpdateClock writes the clock fields of a session row. Concurrent writers
// race last-writer-wins; that is the accepted consistency level here.
func (s *SQLiteStore) UpdateClock(ctx context.Context, id string, state clock.State, now int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET game_time_elapsed = ?, last_resumed_at = ?, last_updated = ? WHERE id = ?`,
		state.ElapsedMs, nullableMillis(state.RunningSince), now, id)
	if err != nil {
		return fmt.Errorf("update clock: %w", err)
	}
	return requireRow(res)
}

// UpdateMode sets the randomness mode of a session row.
func (s *SQLiteStore) UpdateMode(ctx context.Context, id, mode string, now int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET mode = ?, last_updated = ? WHERE id = ?`, mode, now, id)
	if err != nil {
		return fmt.Errorf("update mode: %w", err)
	}
	return requireRow(res)
}

// InsertQuantumBatch stores a session's quantum numbers in one batch. Row
// insertion order defines consumption order.
func (s *SQLiteStore) InsertQuantumBatch(ctx context.Context, sessionID string, values []int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin quantum batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO quantum_numbers (session_id, value, consumed) VALUES (?, ?, 0)`)
	if err != nil {
		return fmt.Errorf("prepare quantum insert: %w", err)
	}
	defer stmt.Close()

	for _, v := range values {
		if _, err := stmt.ExecContext(ctx, sessionID, v); err != nil {
			return fmt.Errorf("insert quantum number: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit quantum batch: %w", err)
	}
	return nil
}

// ConsumeQuantum atomically marks the lowest unconsumed number as consumed
// and returns it. The single UPDATE..RETURNING statement is what prevents
// the same number being dispensed twice under concurrent draws.
func (s *SQLiteStore) ConsumeQuantum(ctx context.Context, sessionID string) (int, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`UPDATE quantum_numbers SET consumed = 1
		 WHERE id = (
			SELECT id FROM quantum_numbers
			WHERE session_id = ? AND consumed = 0
			ORDER BY id LIMIT 1
		 )
		 RETURNING value`, sessionID)

	var value int
	err := row.Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("consume quantum number: %w", err)
	}
	return value, true, nil
}

// AppendMessage appends one entry to the session message log.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg Message) error {
	var resultJSON any
	if msg.ResultJSON != "" {
		resultJSON = msg.ResultJSON
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_messages (id, session_id, speaker_name, raw_text, rendered_text, result_json, type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, msg.SpeakerName, msg.RawText, msg.RenderedText,
		resultJSON, msg.Type, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// GetRoomState returns the persisted snapshot blob for a room.
func (s *SQLiteStore) GetRoomState(ctx context.Context, roomID string) ([]byte, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT state_json FROM room_state WHERE room_id = ?`, roomID)

	var stateJSON []byte
	err := row.Scan(&stateJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query room state: %w", err)
	}
	return stateJSON, true, nil
}

// UpsertRoomState writes the snapshot blob for a room, last-writer-wins.
func (s *SQLiteStore) UpsertRoomState(ctx context.Context, roomID string, stateJSON []byte, updatedAt int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO room_state (room_id, state_json, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(room_id) DO UPDATE SET state_json = excluded.state_json, updated_at = excluded.updated_at`,
		roomID, stateJSON, updatedAt)
	if err != nil {
		return fmt.Errorf("upsert room state: %w", err)
	}
	return nil
}

// AppendRoll appends one event to the room's audit log.
func (s *SQLiteStore) AppendRoll(ctx context.Context, id, roomID string, payload []byte, createdAt int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO room_rolls (id, room_id, payload, created_at) VALUES (?, ?, ?, ?)`,
		id, roomID, payload, createdAt)
	if err != nil {
		return fmt.Errorf("insert roll: %w", err)
	}
	return nil
}

func nullableMillis(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
