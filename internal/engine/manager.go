package engine

import (
	"errors"
	"sync"

	"github.com/sparklearn/sparkbot/internal/model/persona"
)

var (
	ErrPersonaNotFound = errors.New("persona not found")
	ErrSessionNotFound = errors.New("session not found")
)

// Manager owns the live sessions, one per opened persona view. Sessions
// are independent: each carries its own lock and epoch space, so
// concurrent conversations never contend.
type Manager struct {
	personas persona.Store
	backend  Backend
	profiles ProfileProvider
	usage    UsageRecorder

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager wires the shared collaborators used by every session.
func NewManager(personas persona.Store, backend Backend, profiles ProfileProvider, usage UsageRecorder) *Manager {
	return &Manager{
		personas: personas,
		backend:  backend,
		profiles: profiles,
		usage:    usage,
		sessions: make(map[string]*Session),
	}
}

// Create provisions a session bound to a persona.
func (m *Manager) Create(personaID persona.ID) (*Session, error) {
	p, ok := m.personas.FindByID(personaID)
	if !ok {
		return nil, ErrPersonaNotFound
	}

	session := NewSession(p, m.backend, m.profiles, m.usage)

	m.mu.Lock()
	m.sessions[session.ID()] = session
	m.mu.Unlock()

	return session, nil
}

// Get retrieves a session by identifier.
func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Remove tears down a session when its view is discarded. Unknown ids
// are a no-op.
func (m *Manager) Remove(sessionID string) {
	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	if ok {
		session.Close()
	}
}
