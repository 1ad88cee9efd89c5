// Package chat exposes session lifecycle endpoints: create, inspect,
// reset and tear down.
package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sparklearn/sparkbot/internal/engine"
	"github.com/sparklearn/sparkbot/internal/model/chat"
	"github.com/sparklearn/sparkbot/internal/model/persona"
	"github.com/sparklearn/sparkbot/pkg/utils"
)

// Handler serves the chat session lifecycle.
type Handler struct {
	sessions *engine.Manager
}

// New creates the chat handler.
func New(sessions *engine.Manager) *Handler {
	return &Handler{sessions: sessions}
}

// RegisterRoutes mounts session routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Get("/session/{sessionID}/turns", h.handleTurns)
	r.Post("/session/{sessionID}/reset", h.handleReset)
	r.Delete("/session/{sessionID}", h.handleDelete)
}

type sessionResponse struct {
	ID        string     `json:"id"`
	PersonaID persona.ID `json:"personaId"`
	Epoch     uint64     `json:"epoch"`
	InFlight  bool       `json:"inFlight"`
	CreatedAt time.Time  `json:"createdAt"`
}

func describe(s *engine.Session) sessionResponse {
	return sessionResponse{
		ID:        s.ID(),
		PersonaID: s.Persona().ID,
		Epoch:     s.Epoch(),
		InFlight:  s.InFlight(),
		CreatedAt: s.CreatedAt(),
	}
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PersonaID persona.ID `json:"personaId"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if payload.PersonaID == "" {
		utils.RespondError(w, http.StatusBadRequest, "personaId is required")
		return
	}

	session, err := h.sessions.Create(payload.PersonaID)
	if err != nil {
		if errors.Is(err, engine.ErrPersonaNotFound) {
			utils.RespondError(w, http.StatusBadRequest, "persona not found")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusCreated, describe(session))
}

// handleTurns returns the turn snapshot. Completed assistant turns carry
// the immutable text and persona the save/share collaborators need.
func (h *Handler) handleTurns(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}

	p := session.Persona()
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"personaId": p.ID,
		"shareable": p.Shareable,
		"turns":     describeTurns(session.Turns()),
	})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}

	epoch := session.Reset()
	utils.RespondJSON(w, http.StatusOK, map[string]uint64{"epoch": epoch})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	h.sessions.Remove(sessionID)
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*engine.Session, bool) {
	sessionID := chi.URLParam(r, "sessionID")
	session, err := h.sessions.Get(sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return session, true
}

func describeTurns(turns []chat.Turn) []chat.Turn {
	if turns == nil {
		return []chat.Turn{}
	}
	return turns
}
