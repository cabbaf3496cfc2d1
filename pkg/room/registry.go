package room

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/trpgtools/dice-server/pkg/events"
	"github.com/trpgtools/dice-server/pkg/store"
)

// Registry hands out the single live actor per room id. The first caller
// for an id pays the cold start: the persisted snapshot is rehydrated under
// the registry lock, so no command reaches a room before it is ready.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room

	store     store.Store
	publisher *events.Publisher
	logger    *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(st store.Store, publisher *events.Publisher, logger *zap.Logger) *Registry {
	return &Registry{
		rooms:     make(map[string]*Room),
		store:     st,
		publisher: publisher,
		logger:    logger,
	}
}

// Get returns the live room for id, instantiating and rehydrating it on
// first use.
func (g *Registry) Get(ctx context.Context, id string) (*Room, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if room, ok := g.rooms[id]; ok {
		return room, nil
	}

	room := newRoom(id, g.store, g.publisher, g.logger)
	if err := room.load(ctx); err != nil {
		return nil, fmt.Errorf("load room %s: %w", id, err)
	}
	g.rooms[id] = room
	go room.Run()

	g.logger.Info("room instantiated", zap.String("room_id", id))
	return room, nil
}
