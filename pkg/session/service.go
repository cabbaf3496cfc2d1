// Package session implements the session-scoped operations: the pausable
// game clock, keeper controls, quantum queue provisioning, and the chat/dice
// message pipeline.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trpgtools/dice-server/pkg/clock"
	"github.com/trpgtools/dice-server/pkg/dice"
	"github.com/trpgtools/dice-server/pkg/events"
	"github.com/trpgtools/dice-server/pkg/random"
	"github.com/trpgtools/dice-server/pkg/store"
)

// ErrForbidden indicates a keeper password mismatch.
var ErrForbidden = errors.New("forbidden")

// ErrQuantumConfirm indicates quantum mode was requested without the
// explicit confirmation flag.
var ErrQuantumConfirm = errors.New("quantum mode requires confirmation")

// ModeSystem seeds rolls from the game clock; ModeQuantum consumes the
// pre-fetched pool.
const (
	ModeSystem  = "system"
	ModeQuantum = "quantum"
)

// AnonymousSpeaker is the sentinel name for messages without an actor name.
const AnonymousSpeaker = "anonymous"

// Service coordinates session state. Clock and mode updates are ordinary
// reads and writes with last-writer-wins semantics on concurrent keepers;
// only quantum consumption is atomic.
type Service struct {
	store     store.Store
	fetcher   *random.Fetcher
	publisher *events.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewService wires the session service.
func NewService(st store.Store, fetcher *random.Fetcher, publisher *events.Publisher, logger *zap.Logger) *Service {
	return &Service{
		store:     st,
		fetcher:   fetcher,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// View is the externally visible clock state of a session.
type View struct {
	Mode         string `json:"mode"`
	ElapsedMs    int64  `json:"game_time_elapsed"`
	RunningSince *int64 `json:"last_resumed_at"`
	GameTime     int64  `json:"gameTime"`
	Running      bool   `json:"running"`
}

func viewOf(session store.Session, now int64) View {
	return View{
		Mode:         session.Mode,
		ElapsedMs:    session.Clock.ElapsedMs,
		RunningSince: session.Clock.RunningSince,
		GameTime:     session.Clock.Elapsed(now),
		Running:      session.Clock.Running(),
	}
}

// Create inserts a new session with a running clock and provisions its
// quantum queue.
func (s *Service) Create(ctx context.Context, password string) (store.Session, error) {
	now := clock.Millis(s.now())
	session := store.Session{
		ID:        uuid.NewString(),
		Password:  password,
		Mode:      ModeSystem,
		Clock:     clock.Started(now),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return store.Session{}, fmt.Errorf("create session: %w", err)
	}
	if err := s.ProvisionQueue(ctx, session.ID); err != nil {
		return store.Session{}, err
	}
	return session, nil
}

// ProvisionQueue fills the session's quantum pool: one batch of externally
// sourced integers, locally substituted on any fetch failure.
func (s *Service) ProvisionQueue(ctx context.Context, sessionID string) error {
	numbers := s.fetcher.FetchNumbers(ctx)
	if err := s.store.InsertQuantumBatch(ctx, sessionID, numbers); err != nil {
		return fmt.Errorf("provision queue: %w", err)
	}
	s.publisher.Publish(events.Event{
		Type:    events.EventQueueProvisioned,
		Payload: map[string]any{"session_id": sessionID, "count": len(numbers)},
	})
	return nil
}

// Info returns the SHA-256 password digest and the current clock view.
func (s *Service) Info(ctx context.Context, sessionID string) (string, View, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return "", View{}, err
	}
	digest := sha256.Sum256([]byte(session.Password))
	return hex.EncodeToString(digest[:]), viewOf(session, clock.Millis(s.now())), nil
}

// KeeperRequest is a keeper control command: optional mode switch, time
// jump, and pause/resume action, applied in that order.
type KeeperRequest struct {
	Password       string
	Mode           string
	SetTime        *int64
	Action         string // "", "pause" or "resume"
	ConfirmQuantum bool
}

// Keeper applies keeper controls after checking the session password.
// Switching into quantum mode requires explicit confirmation.
func (s *Service) Keeper(ctx context.Context, sessionID string, req KeeperRequest) (View, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return View{}, err
	}
	if session.Password != req.Password {
		return View{}, ErrForbidden
	}
	if req.Mode == ModeQuantum && !req.ConfirmQuantum {
		return View{}, ErrQuantumConfirm
	}

	now := clock.Millis(s.now())
	state := session.Clock

	if req.SetTime != nil {
		state = state.Set(*req.SetTime)
	}
	switch req.Action {
	case "pause":
		state = state.Pause(now)
	case "resume":
		state = state.Resume(now)
	}
	if err := s.store.UpdateClock(ctx, sessionID, state, now); err != nil {
		return View{}, err
	}

	mode := session.Mode
	if req.Mode != "" {
		mode = req.Mode
	}
	if err := s.store.UpdateMode(ctx, sessionID, mode, now); err != nil {
		return View{}, err
	}

	session, err = s.store.GetSession(ctx, sessionID)
	if err != nil {
		return View{}, err
	}
	return viewOf(session, now), nil
}

// HandleMessage resolves one chat message: parse the leading token, draw
// from the session's randomness source if it is a dice command, and append
// the outcome to the message log.
func (s *Service) HandleMessage(ctx context.Context, sessionID, speakerName, text string) (store.Message, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return store.Message{}, err
	}

	now := clock.Millis(s.now())
	gameTime := session.Clock.Elapsed(now)
	src := s.sourceFor(session.Mode, sessionID, gameTime)
	cmd := dice.Parse(text)

	rendered := text
	resultJSON := ""
	msgType := "chat"

	switch cmd.Kind {
	case dice.KindCheck:
		result, err := dice.RollCheck(ctx, src, cmd.Bonus, cmd.Target)
		if err != nil {
			return store.Message{}, fmt.Errorf("resolve check: %w", err)
		}
		rendered = result.Render()
		resultJSON = mustJSON(result)
		msgType = "dice"
	case dice.KindDie:
		result, err := dice.RollDie(ctx, src, cmd.Faces)
		if err != nil {
			return store.Message{}, fmt.Errorf("resolve die: %w", err)
		}
		rendered = dice.RenderDie(cmd.Faces, result)
		resultJSON = mustJSON(map[string][]int{"rolls": {result}})
		msgType = "dice"
	}

	if speakerName == "" {
		speakerName = AnonymousSpeaker
	}

	msg := store.Message{
		ID:           uuid.NewString(),
		SessionID:    sessionID,
		SpeakerName:  speakerName,
		RawText:      text,
		RenderedText: rendered,
		ResultJSON:   resultJSON,
		Type:         msgType,
		CreatedAt:    now,
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return store.Message{}, fmt.Errorf("append message: %w", err)
	}

	s.publisher.Publish(events.Event{
		Type:    events.EventSessionMessage,
		Payload: map[string]string{"session_id": sessionID, "type": msgType},
	})
	return msg, nil
}

// sourceFor picks the randomness source: the quantum pool in quantum mode,
// otherwise a generator seeded by the game clock.
func (s *Service) sourceFor(mode, sessionID string, gameTimeMs int64) random.Source {
	if mode == ModeQuantum {
		return random.NewQuantum(s.store, sessionID)
	}
	return random.NewSeeded(gameTimeMs)
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		// All result payloads are plain structs and maps; this cannot fail.
		return "{}"
	}
	return string(data)
}
