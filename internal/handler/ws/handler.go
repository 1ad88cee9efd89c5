// Package ws serves the chat session over a websocket: inbound send and
// reset frames, outbound whole-conversation snapshots after every
// mutation.
package ws

import (
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/sparklearn/sparkbot/internal/engine"
	"github.com/sparklearn/sparkbot/internal/engine/conversation"
	"github.com/sparklearn/sparkbot/internal/model/chat"
)

// Handler upgrades chat sessions onto websockets.
type Handler struct {
	sessions *engine.Manager
	upgrader websocket.Upgrader
}

// New creates the websocket handler.
func New(sessions *engine.Manager) *Handler {
	return &Handler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the websocket route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundFrame struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type outboundFrame struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Turns     []chat.Turn `json:"turns,omitempty"`
	Epoch     uint64      `json:"epoch,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	session, err := h.sessions.Get(sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// gorilla/websocket permits one concurrent writer; snapshot pushes
	// and error replies share this lock.
	var writeMu sync.Mutex
	write := func(frame outboundFrame) {
		frame.SessionID = sessionID
		frame.Timestamp = time.Now().UnixMilli()
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(frame); err != nil {
			log.Printf("[ws] write failed session=%s: %v", sessionID, err)
		}
	}

	unsubscribe := session.Subscribe(func(turns []chat.Turn) {
		write(outboundFrame{Type: "turns", Turns: turns, Epoch: session.Epoch()})
	})
	defer unsubscribe()

	// Initial snapshot so a reconnecting client catches up.
	write(outboundFrame{Type: "turns", Turns: session.Turns(), Epoch: session.Epoch()})

	for {
		var frame inboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[ws] read failed session=%s: %v", sessionID, err)
			}
			return
		}

		switch frame.Type {
		case "send":
			if err := session.Send(r.Context(), frame.Text); err != nil {
				write(outboundFrame{Type: "error", Error: sendErrorMessage(err)})
			}
		case "reset":
			session.Reset()
		default:
			write(outboundFrame{Type: "error", Error: "unknown frame type"})
		}
	}
}

func sendErrorMessage(err error) string {
	switch {
	case errors.Is(err, conversation.ErrEmptyMessage):
		return "message must not be empty"
	case errors.Is(err, engine.ErrBusy):
		return "a response is already in flight"
	default:
		return "send failed"
	}
}
