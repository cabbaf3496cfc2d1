// Package main is the entry point of the application
package main

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/trpgtools/dice-server/internal/auth"
	"github.com/trpgtools/dice-server/pkg/room"
)

// handleRoomSocket upgrades an authenticated request into a room connection.
// The credential may arrive as a query parameter, the websocket subprotocol,
// or the authorization header; verification failure refuses the upgrade with
// no state change.
func (app *application) handleRoomSocket(w http.ResponseWriter, r *http.Request) {
	token := auth.TokenFromRequest(r)
	identity, err := app.Verifier.Verify(r.Context(), token)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	roomID := r.PathValue("roomId")
	rm, err := app.Rooms.Get(r.Context(), roomID)
	if err != nil {
		app.Logger.Error("room bootstrap failed", zap.String("room_id", roomID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "room_unavailable"})
		return
	}

	// When the credential rides the subprotocol header the handshake must
	// echo it back, or browsers drop the connection.
	var responseHeader http.Header
	if protocol := r.Header.Get("Sec-WebSocket-Protocol"); protocol != "" {
		responseHeader = http.Header{"Sec-WebSocket-Protocol": []string{protocol}}
	}

	ws, err := upgrader.Upgrade(w, r, responseHeader)
	if err != nil {
		app.Logger.Error("Failed to upgrade to WebSocket", zap.Error(err))
		return
	}

	conn := room.NewConnection(ws, rm, identity, app.Logger)
	rm.Attach(conn)

	app.Logger.Info("WebSocket connection established",
		zap.String("room_id", roomID),
		zap.String("user_id", identity.UserID),
		zap.String("remote_addr", r.RemoteAddr))

	// Start connection read/write goroutines
	go conn.WritePump()
	go conn.ReadPump()
}

// handleRoomState returns the current snapshot of a room.
func (app *application) handleRoomState(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("roomId")
	rm, err := app.Rooms.Get(r.Context(), roomID)
	if err != nil {
		app.Logger.Error("room bootstrap failed", zap.String("room_id", roomID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "room_unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, rm.CurrentSnapshot())
}
