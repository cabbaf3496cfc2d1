// Package main is the entry point of the application
package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/trpgtools/dice-server/pkg/session"
	"github.com/trpgtools/dice-server/pkg/store"
)

type createSessionRequest struct {
	Password string `json:"password"`
}

type messageRequest struct {
	SpeakerName string `json:"speakerName"`
	Text        string `json:"text"`
}

type keeperRequest struct {
	Password       string `json:"password"`
	Mode           string `json:"mode"`
	SetTime        *int64 `json:"setTime"`
	Action         string `json:"action"`
	ConfirmQuantum bool   `json:"confirmQuantum"`
}

// handleCreateSession creates a session row and provisions its quantum queue.
func (app *application) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "password is required"})
		return
	}

	created, err := app.Sessions.Create(r.Context(), req.Password)
	if err != nil {
		app.Logger.Error("create session failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create session"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session": map[string]any{"id": created.ID, "mode": created.Mode},
	})
}

// handleSessionInfo returns the password digest and clock state.
func (app *application) handleSessionInfo(w http.ResponseWriter, r *http.Request) {
	passwordHash, view, err := app.Sessions.Info(r.Context(), r.PathValue("id"))
	if err != nil {
		app.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"passwordHash": passwordHash,
		"state":        view,
	})
}

// handleSessionMessage resolves a chat/dice message for a session.
func (app *application) handleSessionMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text is required"})
		return
	}

	speaker := req.SpeakerName
	if speaker == "" {
		if identity, ok := identityFromContext(r.Context()); ok {
			speaker = identity.UserName
		}
	}

	msg, err := app.Sessions.HandleMessage(r.Context(), r.PathValue("id"), speaker, req.Text)
	if err != nil {
		app.writeSessionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": map[string]any{
			"id":            msg.ID,
			"speaker_name":  msg.SpeakerName,
			"raw_text":      msg.RawText,
			"rendered_text": msg.RenderedText,
			"created_at":    msg.CreatedAt,
		},
	})
}

// handleKeeper applies keeper controls: mode switch, time jump, pause/resume.
func (app *application) handleKeeper(w http.ResponseWriter, r *http.Request) {
	var req keeperRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "password is required"})
		return
	}

	view, err := app.Sessions.Keeper(r.Context(), r.PathValue("id"), session.KeeperRequest{
		Password:       req.Password,
		Mode:           req.Mode,
		SetTime:        req.SetTime,
		Action:         req.Action,
		ConfirmQuantum: req.ConfirmQuantum,
	})
	if err != nil {
		app.writeSessionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "state": view})
}

func (app *application) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Session not found"})
	case errors.Is(err, session.ErrForbidden):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "Forbidden"})
	case errors.Is(err, session.ErrQuantumConfirm):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Quantum mode requires confirmation"})
	default:
		app.Logger.Error("session operation failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
