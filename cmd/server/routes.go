// Package main is the entry point of the application
package main

import (
	"net/http"
)

func (app *application) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", app.handleHealth)

	mux.HandleFunc("GET /api/rooms/{roomId}/websocket", app.handleRoomSocket)
	mux.HandleFunc("GET /api/rooms/{roomId}/state", app.authenticate(app.handleRoomState))

	mux.HandleFunc("POST /api/sessions", app.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}/info", app.handleSessionInfo)
	mux.HandleFunc("POST /api/sessions/{id}/messages", app.authenticate(app.handleSessionMessage))
	mux.HandleFunc("POST /api/sessions/{id}/kp", app.authenticate(app.handleKeeper))

	return mux
}
