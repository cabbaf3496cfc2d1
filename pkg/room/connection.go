package room

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/trpgtools/dice-server/internal/auth"
	"github.com/trpgtools/dice-server/internal/messages"
)

// Connection is one authenticated socket inside a room.
type Connection struct {
	identity auth.Identity
	ws       *websocket.Conn // The underlying websocket connection
	room     *Room
	send     chan []byte // Buffered channel of outbound messages.

	closeOnce sync.Once
	closed    atomic.Bool

	logger *zap.Logger
}

// NewConnection binds a verified identity to an upgraded socket.
func NewConnection(ws *websocket.Conn, room *Room, identity auth.Identity, logger *zap.Logger) *Connection {
	return &Connection{
		identity: identity,
		ws:       ws,
		room:     room,
		send:     make(chan []byte, 256), // buffered for outgoing messages
		logger:   logger,
	}
}

// Identity returns the verified user bound to this socket.
func (c *Connection) Identity() auth.Identity {
	return c.identity
}

// ReadPump handles inbound messages from the client
func (c *Connection) ReadPump() {
	defer func() {
		c.room.Detach(c)
		c.ws.Close()
	}()

	for {
		msgType, msg, err := c.ws.ReadMessage()
		if err != nil {
			c.logger.Debug("read error", zap.Error(err))
			break
		}

		// We only handle text
		if msgType != websocket.TextMessage {
			continue
		}

		var inbound messages.Inbound
		if err := json.Unmarshal(msg, &inbound); err != nil {
			c.room.inbound <- command{client: c}
			continue
		}
		c.room.inbound <- command{client: c, inbound: inbound, valid: true}
	}
}

// WritePump handles outbound messages to the client
func (c *Connection) WritePump() {
	defer func() {
		c.closed.Store(true)
		c.ws.Close()
	}()

	for message := range c.send {
		if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
			c.logger.Debug("write error", zap.Error(err))
			return
		}
	}
}

// trySend queues data without blocking the room loop. It reports false when
// the socket is closed or its buffer is full; the room prunes such members.
func (c *Connection) trySend(data []byte) bool {
	if c.closed.Load() {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// SendJSON is a helper for requester-only responses.
func (c *Connection) SendJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("marshal outbound message", zap.Error(err))
		return
	}
	c.trySend(data)
}

func (c *Connection) closeSend() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}
