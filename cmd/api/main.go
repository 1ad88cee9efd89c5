package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sparklearn/sparkbot/internal/config"
	"github.com/sparklearn/sparkbot/internal/engine"
	"github.com/sparklearn/sparkbot/internal/handler"
	"github.com/sparklearn/sparkbot/internal/model/persona"
	"github.com/sparklearn/sparkbot/internal/service/ai"
	"github.com/sparklearn/sparkbot/internal/service/profile"
	"github.com/sparklearn/sparkbot/internal/service/usage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	personaStore := persona.NewMemoryStore(persona.Seed())
	backend := newBackend(cfg.AI)
	profiles := newProfileProvider(cfg.Upstream)
	recorder := newUsageRecorder(cfg.Upstream)

	sessions := engine.NewManager(personaStore, backend, profiles, recorder)
	router := handler.NewRouter(personaStore, sessions)

	startServer(ctx, cfg.Server, router)
}

// newBackend picks the model backend: Ark when credentials are present,
// then any configured OpenAI-compatible endpoint, else the local echo
// backend so the service stays usable without credentials.
func newBackend(cfg config.AIConfig) engine.Backend {
	if cfg.ArkEnabled() {
		backend, err := ai.NewArkBackend(cfg)
		if err != nil {
			log.Fatalf("failed to initialize ark backend: %v", err)
		}
		log.Println("Ark model backend initialized")
		return backend
	}

	if cfg.OpenAIEnabled() {
		log.Printf("OpenAI-compatible model backend initialized for %s", cfg.OpenAIBaseURL)
		return ai.NewOpenAICompatBackend(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey)
	}

	log.Println("no model credentials configured, using echo backend")
	return &ai.EchoBackend{Delay: 30 * time.Millisecond}
}

func newProfileProvider(cfg config.UpstreamConfig) engine.ProfileProvider {
	if cfg.Enabled() {
		log.Println("profile provider: upstream API")
		return profile.NewHTTPProvider(cfg)
	}
	log.Println("profile provider: static configuration")
	return profile.NewStaticProvider(cfg)
}

func newUsageRecorder(cfg config.UpstreamConfig) engine.UsageRecorder {
	if cfg.Enabled() {
		log.Println("usage recorder: upstream API")
		return usage.NewHTTPRecorder(cfg)
	}
	log.Println("usage recorder: disabled")
	return usage.NoopRecorder{}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("sparkbot backend listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
