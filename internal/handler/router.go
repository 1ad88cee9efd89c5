package handler

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sparklearn/sparkbot/internal/engine"
	chathandler "github.com/sparklearn/sparkbot/internal/handler/chat"
	personahandler "github.com/sparklearn/sparkbot/internal/handler/persona"
	streamhandler "github.com/sparklearn/sparkbot/internal/handler/stream"
	wshandler "github.com/sparklearn/sparkbot/internal/handler/ws"
	middlewarePkg "github.com/sparklearn/sparkbot/internal/middleware"
	personaModel "github.com/sparklearn/sparkbot/internal/model/persona"
	"github.com/sparklearn/sparkbot/pkg/utils"
)

// NewRouter wires HTTP routes to the session engine.
func NewRouter(personas personaModel.Store, sessions *engine.Manager) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	personaHandler := personahandler.New(personas)
	chatHandler := chathandler.New(sessions)
	streamHandler := streamhandler.New(sessions)
	wsHandler := wshandler.New(sessions)

	r.Route("/api", func(api chi.Router) {
		personaHandler.RegisterRoutes(api)
		chatHandler.RegisterRoutes(api)
		wsHandler.RegisterRoutes(api)

		api.Get("/stream/{sessionID}", func(w http.ResponseWriter, r *http.Request) {
			sessionID := chi.URLParam(r, "sessionID")
			userMessage := r.URL.Query().Get("message")

			if userMessage == "" {
				utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
				return
			}

			if err := streamHandler.HandleStreamRequest(r.Context(), w, sessionID, userMessage); err != nil {
				log.Printf("[stream] error handling request: %v", err)
			}
		})
	})

	return r
}
