// Package stream serves chat sends over Server-Sent Events: it submits
// the user message to the session engine and relays turn updates as
// delta events until the assistant turn settles.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/sparklearn/sparkbot/internal/engine"
	"github.com/sparklearn/sparkbot/internal/engine/conversation"
	"github.com/sparklearn/sparkbot/internal/model/chat"
	"github.com/sparklearn/sparkbot/pkg/utils"
)

// Handler manages streaming chat responses via Server-Sent Events.
type Handler struct {
	sessions *engine.Manager
}

// New creates the stream handler.
func New(sessions *engine.Manager) *Handler {
	return &Handler{sessions: sessions}
}

// StreamEvent is one SSE frame of a streamed response.
type StreamEvent struct {
	Event     string `json:"event"`
	SessionID string `json:"sessionId,omitempty"`
	TurnID    string `json:"turnId,omitempty"`
	Content   string `json:"content,omitempty"`
	Status    string `json:"status,omitempty"`
	Finished  bool   `json:"finished,omitempty"`
	Error     string `json:"error,omitempty"`
}

// HandleStreamRequest submits one user message and streams the
// assistant's reply. The connection closes after the end event; history
// stays on the session for the next send.
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, sessionID, userMessage string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return fmt.Errorf("streaming unsupported")
	}

	session, err := h.sessions.Get(sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return err
	}

	// Subscribe before sending so no update is missed. Snapshots are
	// whole-conversation state, so coalescing to the latest is lossless.
	updates := make(chan []chat.Turn, 1)
	unsubscribe := session.Subscribe(func(turns []chat.Turn) {
		for {
			select {
			case updates <- turns:
				return
			default:
				select {
				case <-updates:
				default:
				}
			}
		}
	})
	defer unsubscribe()

	if err := session.Send(ctx, userMessage); err != nil {
		switch {
		case errors.Is(err, conversation.ErrEmptyMessage):
			utils.RespondError(w, http.StatusBadRequest, "message must not be empty")
		case errors.Is(err, engine.ErrBusy):
			utils.RespondError(w, http.StatusConflict, "a response is already in flight")
		default:
			utils.RespondError(w, http.StatusInternalServerError, err.Error())
		}
		return err
	}

	utils.SetupSSEHeaders(w)
	h.sendSSE(w, flusher, StreamEvent{
		Event:     "start",
		SessionID: sessionID,
		Content:   session.Persona().Name,
	})

	return h.relay(ctx, w, flusher, sessionID, updates)
}

// relay forwards turn updates until the assistant turn settles, the
// session is reset, or the client goes away.
func (h *Handler) relay(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, sessionID string, updates <-chan []chat.Turn) error {
	var (
		turnID string
		sent   int
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case turns := <-updates:
			trailing, ok := trailingAssistant(turns)
			if !ok {
				if len(turns) == 0 {
					// Reset mid-stream; the superseded request's output
					// is dropped by the engine.
					h.sendSSE(w, flusher, StreamEvent{Event: "end", SessionID: sessionID, Finished: true})
					return nil
				}
				continue
			}

			if trailing.ID != turnID {
				turnID = trailing.ID
				sent = 0
			}

			if delta := trailing.Text[min(sent, len(trailing.Text)):]; delta != "" && trailing.Status != chat.StatusFailed {
				h.sendSSE(w, flusher, StreamEvent{
					Event:     "delta",
					SessionID: sessionID,
					TurnID:    trailing.ID,
					Content:   delta,
				})
				sent = len(trailing.Text)
			}

			if trailing.Final() {
				h.sendSSE(w, flusher, StreamEvent{
					Event:     "message",
					SessionID: sessionID,
					TurnID:    trailing.ID,
					Content:   trailing.Text,
					Status:    string(trailing.Status),
				})
				h.sendSSE(w, flusher, StreamEvent{Event: "end", SessionID: sessionID, Finished: true})
				log.Printf("[stream] turn settled session=%s turn=%s status=%s", sessionID, trailing.ID, trailing.Status)
				return nil
			}
		}
	}
}

func trailingAssistant(turns []chat.Turn) (chat.Turn, bool) {
	if n := len(turns); n > 0 && turns[n-1].Role == chat.RoleAssistant {
		return turns[n-1], true
	}
	return chat.Turn{}, false
}

func (h *Handler) sendSSE(w http.ResponseWriter, flusher http.Flusher, event StreamEvent) {
	utils.SendSSEChunk(w, flusher, event)
}
