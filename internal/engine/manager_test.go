package engine_test

import (
	"errors"
	"testing"

	"github.com/sparklearn/sparkbot/internal/engine"
	"github.com/sparklearn/sparkbot/internal/model/persona"
)

func newTestManager() *engine.Manager {
	store := persona.NewMemoryStore(persona.Seed())
	return engine.NewManager(store, &fakeBackend{}, profileStub{}, &fakeRecorder{})
}

func TestManagerCreateAndGet(t *testing.T) {
	manager := newTestManager()

	session, err := manager.Create(persona.Code)
	if err != nil {
		t.Fatalf("Create err: %v", err)
	}
	if session.Persona().ID != persona.Code {
		t.Fatalf("unexpected persona: %s", session.Persona().ID)
	}

	got, err := manager.Get(session.ID())
	if err != nil {
		t.Fatalf("Get err: %v", err)
	}
	if got != session {
		t.Fatal("Get returned a different session")
	}
}

func TestManagerCreateUnknownPersona(t *testing.T) {
	manager := newTestManager()

	if _, err := manager.Create("wizard"); !errors.Is(err, engine.ErrPersonaNotFound) {
		t.Fatalf("expected ErrPersonaNotFound, got %v", err)
	}
}

func TestManagerRemove(t *testing.T) {
	manager := newTestManager()

	session, err := manager.Create(persona.General)
	if err != nil {
		t.Fatalf("Create err: %v", err)
	}

	manager.Remove(session.ID())
	if _, err := manager.Get(session.ID()); !errors.Is(err, engine.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	// Removing twice is harmless.
	manager.Remove(session.ID())
}

func TestManagerSessionsIndependent(t *testing.T) {
	manager := newTestManager()

	first, _ := manager.Create(persona.General)
	second, _ := manager.Create(persona.Companion)

	if first.ID() == second.ID() {
		t.Fatal("session ids must be distinct")
	}

	first.Reset()
	if second.Epoch() != 0 {
		t.Fatal("reset must not leak across sessions")
	}
}
