// Package room implements the real-time dice room: a single-owner actor per
// room id that authenticates members, serializes their commands, persists
// snapshots, and fans out identical events to every connected client.
package room

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trpgtools/dice-server/internal/messages"
	"github.com/trpgtools/dice-server/pkg/clock"
	"github.com/trpgtools/dice-server/pkg/events"
	"github.com/trpgtools/dice-server/pkg/random"
	"github.com/trpgtools/dice-server/pkg/store"
)

// command pairs an inbound message with its sender. valid is false when the
// client sent unparseable JSON.
type command struct {
	client  *Connection
	inbound messages.Inbound
	valid   bool
}

// Room owns the shared timer, the last roll, and the membership map of one
// room. All mutation happens on the Run goroutine, so commands from the same
// room are never applied concurrently.
type Room struct {
	ID string

	timer    clock.State
	lastRoll *messages.RollEvent
	members  map[string]*Connection // keyed by userId

	register   chan *Connection
	unregister chan *Connection
	inbound    chan command
	snapshots  chan chan messages.RoomSnapshot

	store     store.Store
	publisher *events.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func newRoom(id string, st store.Store, publisher *events.Publisher, logger *zap.Logger) *Room {
	return &Room{
		ID:         id,
		members:    make(map[string]*Connection),
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		inbound:    make(chan command),
		snapshots:  make(chan chan messages.RoomSnapshot),
		store:      st,
		publisher:  publisher,
		logger:     logger,
		now:        time.Now,
	}
}

// load rehydrates the persisted snapshot. It runs once, before the room
// serves any command.
func (r *Room) load(ctx context.Context) error {
	data, ok, err := r.store.GetRoomState(ctx, r.ID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	var snap messages.RoomSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		r.logger.Warn("failed to restore room state", zap.String("room_id", r.ID), zap.Error(err))
		return nil
	}
	r.timer = clock.State{ElapsedMs: snap.Timer.Elapsed, RunningSince: snap.Timer.StartedAt}
	r.lastRoll = snap.LastRoll
	return nil
}

// Run is the main execution loop of the room actor.
func (r *Room) Run() {
	for {
		select {
		case conn := <-r.register:
			r.addMember(conn)
		case conn := <-r.unregister:
			r.removeMember(conn)
		case cmd := <-r.inbound:
			r.handleCommand(cmd)
		case reply := <-r.snapshots:
			reply <- r.snapshot(clock.Millis(r.now()))
		}
	}
}

// Attach registers a verified connection with the room.
func (r *Room) Attach(conn *Connection) {
	r.register <- conn
}

// Detach removes a connection; called by the read pump on disconnect.
func (r *Room) Detach(conn *Connection) {
	r.unregister <- conn
}

// CurrentSnapshot returns the room state as seen by the actor goroutine.
func (r *Room) CurrentSnapshot() messages.RoomSnapshot {
	reply := make(chan messages.RoomSnapshot, 1)
	r.snapshots <- reply
	return <-reply
}

func (r *Room) addMember(conn *Connection) {
	// A reconnect under the same user id replaces the previous entry; the
	// stale socket is left to die on its own read pump.
	r.members[conn.identity.UserID] = conn
	conn.SendJSON(messages.StateEnvelope(r.snapshot(clock.Millis(r.now()))))

	r.publisher.Publish(events.Event{
		Type:   events.EventMemberJoined,
		RoomID: r.ID,
		Payload: map[string]string{
			"user_id":   conn.identity.UserID,
			"user_name": conn.identity.UserName,
		},
	})
}

func (r *Room) removeMember(conn *Connection) {
	if current, ok := r.members[conn.identity.UserID]; ok && current == conn {
		delete(r.members, conn.identity.UserID)
	}
	conn.closeSend()

	r.publisher.Publish(events.Event{
		Type:    events.EventConnectionClosed,
		RoomID:  r.ID,
		Payload: map[string]string{"user_id": conn.identity.UserID},
	})
}

func (r *Room) handleCommand(cmd command) {
	if !cmd.valid {
		cmd.client.SendJSON(messages.ErrorEnvelope("invalid_json"))
		return
	}

	switch cmd.inbound.Type {
	case messages.TypeRoll:
		r.handleRoll(cmd)
	case messages.TypeTimerResume:
		r.handleTimerResume()
	case messages.TypeTimerPause:
		r.handleTimerPause()
	case messages.TypeTimerStop:
		r.handleTimerStop()
	case messages.TypeState:
		cmd.client.SendJSON(messages.StateEnvelope(r.snapshot(clock.Millis(r.now()))))
	default:
		cmd.client.SendJSON(messages.ErrorEnvelope("unknown_command"))
	}
}

func (r *Room) handleRoll(cmd command) {
	sides := 6
	if s := cmd.inbound.Sides; s != nil && !math.IsNaN(*s) && !math.IsInf(*s, 0) && *s > 0 {
		sides = int(math.Floor(*s))
	}
	upper := sides
	if upper < 2 {
		upper = 2
	}
	if upper > 1000 {
		upper = 1000
	}

	word, err := random.Word()
	if err != nil {
		r.logger.Error("roll draw failed", zap.Error(err))
		cmd.client.SendJSON(messages.ErrorEnvelope("roll_failed"))
		return
	}

	at := clock.Millis(r.now())
	event := messages.RollEvent{
		Kind:     "roll",
		ID:       uuid.NewString(),
		UserID:   cmd.client.identity.UserID,
		UserName: cmd.client.identity.UserName,
		Sides:    sides,
		Result:   int(word%uint32(upper)) + 1,
		At:       at,
	}
	r.lastRoll = &event

	ctx := context.Background()
	payload, _ := json.Marshal(event)
	if err := r.store.AppendRoll(ctx, event.ID, r.ID, payload, event.At); err != nil {
		r.logger.Error("append roll failed", zap.String("room_id", r.ID), zap.Error(err))
		cmd.client.SendJSON(messages.ErrorEnvelope("storage_failure"))
		return
	}
	if err := r.persist(ctx, at); err != nil {
		// The roll is already logged; the snapshot write is not rolled back.
		r.logger.Error("persist snapshot failed", zap.String("room_id", r.ID), zap.Error(err))
		cmd.client.SendJSON(messages.ErrorEnvelope("storage_failure"))
		return
	}

	r.broadcast(messages.RollEnvelope(event, r.snapshot(at)))
	r.publisher.Publish(events.Event{Type: events.EventRollResolved, RoomID: r.ID, Payload: event})
}

func (r *Room) handleTimerResume() {
	if !r.timer.Running() {
		now := clock.Millis(r.now())
		r.timer = r.timer.Resume(now)
		r.persistLogged(now)
	}
	r.broadcastTimer(nil)
}

func (r *Room) handleTimerPause() {
	if r.timer.Running() {
		now := clock.Millis(r.now())
		r.timer = r.timer.Pause(now)
		r.persistLogged(now)
	}
	r.broadcastTimer(nil)
}

func (r *Room) handleTimerStop() {
	// A single server-computed stop timestamp, shared by every member.
	now := clock.Millis(r.now())
	r.timer = r.timer.Pause(now)
	r.persistLogged(now)
	r.broadcastTimer(&now)
}

func (r *Room) broadcastTimer(stoppedAt *int64) {
	now := clock.Millis(r.now())
	if stoppedAt != nil {
		now = *stoppedAt
	}
	r.broadcast(messages.TimerEnvelope(r.snapshot(now), stoppedAt))
	r.publisher.Publish(events.Event{Type: events.EventTimerChanged, RoomID: r.ID})
}

func (r *Room) snapshot(now int64) messages.RoomSnapshot {
	return messages.RoomSnapshot{
		RoomID: r.ID,
		Timer: messages.TimerView{
			Running:   r.timer.Running(),
			Elapsed:   r.timer.Elapsed(now),
			StartedAt: r.timer.RunningSince,
		},
		LastRoll: r.lastRoll,
	}
}

func (r *Room) persist(ctx context.Context, now int64) error {
	stateJSON, err := json.Marshal(r.snapshot(now))
	if err != nil {
		return err
	}
	return r.store.UpsertRoomState(ctx, r.ID, stateJSON, now)
}

func (r *Room) persistLogged(now int64) {
	if err := r.persist(context.Background(), now); err != nil {
		r.logger.Error("persist snapshot failed", zap.String("room_id", r.ID), zap.Error(err))
	}
}

// broadcast serializes the envelope once and sends it to every member whose
// socket is still ready, pruning the rest.
func (r *Room) broadcast(envelope messages.Envelope) {
	data, err := json.Marshal(envelope)
	if err != nil {
		r.logger.Error("marshal broadcast envelope", zap.Error(err))
		return
	}
	for userID, conn := range r.members {
		if !conn.trySend(data) {
			delete(r.members, userID)
			conn.closeSend()
		}
	}
}
