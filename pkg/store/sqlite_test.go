package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trpgtools/dice-server/pkg/clock"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	resumedAt := int64(1000)
	session := Session{
		ID:        "s1",
		Password:  "hush",
		Mode:      "system",
		Clock:     clock.State{ElapsedMs: 500, RunningSince: &resumedAt},
		CreatedAt: 900,
		UpdatedAt: 1000,
	}
	require.NoError(t, s.CreateSession(ctx, session))

	got, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, session.Password, got.Password)
	assert.Equal(t, session.Mode, got.Mode)
	assert.Equal(t, int64(500), got.Clock.ElapsedMs)
	require.NotNil(t, got.Clock.RunningSince)
	assert.Equal(t, int64(1000), *got.Clock.RunningSince)
}

func TestGetSessionMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetSession(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateClock(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.CreateSession(ctx, Session{ID: "s1", Password: "x", Mode: "system"}))

	require.NoError(t, s.UpdateClock(ctx, "s1", clock.State{ElapsedMs: 9000}, 42))

	got, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(9000), got.Clock.ElapsedMs)
	assert.Nil(t, got.Clock.RunningSince)
	assert.Equal(t, int64(42), got.UpdatedAt)
}

func TestUpdateClockMissingSession(t *testing.T) {
	s := newTestStore(t)

	err := s.UpdateClock(context.Background(), "nope", clock.State{}, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateMode(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.CreateSession(ctx, Session{ID: "s1", Password: "x", Mode: "system"}))
	require.NoError(t, s.UpdateMode(ctx, "s1", "quantum", 7))

	got, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "quantum", got.Mode)
}

func TestConsumeQuantumInOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.InsertQuantumBatch(ctx, "s1", []int{7, 42, 99}))

	for _, want := range []int{7, 42, 99} {
		v, ok, err := s.ConsumeQuantum(ctx, "s1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, want, v)
	}

	_, ok, err := s.ConsumeQuantum(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConsumeQuantumIsolatedPerSession(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.InsertQuantumBatch(ctx, "a", []int{1}))
	require.NoError(t, s.InsertQuantumBatch(ctx, "b", []int{2}))

	v, ok, err := s.ConsumeQuantum(ctx, "b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, v)

	_, ok, err = s.ConsumeQuantum(ctx, "b")
	require.NoError(t, err)
	assert.False(t, ok)
}

// Concurrent consumers must each receive a distinct number exactly once.
func TestConsumeQuantumConcurrent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	const n = 50
	values := make([]int, n)
	for i := range values {
		values[i] = i + 1
	}
	require.NoError(t, s.InsertQuantumBatch(ctx, "s1", values))

	var mu sync.Mutex
	seen := make(map[int]int)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, ok, err := s.ConsumeQuantum(ctx, "s1")
			assert.NoError(t, err)
			assert.True(t, ok)
			mu.Lock()
			seen[v]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, seen, n)
	for v, count := range seen {
		assert.Equal(t, 1, count, "value %d dispensed %d times", v, count)
	}
}

func TestAppendMessage(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.AppendMessage(ctx, Message{
		ID:           "m1",
		SessionID:    "s1",
		SpeakerName:  "keeper",
		RawText:      "CC<=50",
		RenderedText: "CC<=50 (37) SUCCESS",
		ResultJSON:   `{"value":37}`,
		Type:         "dice",
		CreatedAt:    100,
	}))

	// Plain chat has no result payload.
	require.NoError(t, s.AppendMessage(ctx, Message{
		ID:          "m2",
		SessionID:   "s1",
		SpeakerName: "keeper",
		RawText:     "hello",
		Type:        "chat",
		CreatedAt:   101,
	}))
}

func TestRoomStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, ok, err := s.GetRoomState(ctx, "r1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.UpsertRoomState(ctx, "r1", []byte(`{"v":1}`), 10))
	require.NoError(t, s.UpsertRoomState(ctx, "r1", []byte(`{"v":2}`), 20))

	blob, ok, err := s.GetRoomState(ctx, "r1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"v":2}`, string(blob))
}

func TestAppendRoll(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.AppendRoll(ctx, "roll-1", "r1", []byte(`{"result":4}`), 50))
	require.NoError(t, s.AppendRoll(ctx, "roll-2", "r1", []byte(`{"result":6}`), 51))

	// Duplicate IDs violate the primary key.
	assert.Error(t, s.AppendRoll(ctx, "roll-1", "r1", []byte(`{}`), 52))
}
