package persona

// Store exposes persona retrieval for the engine and HTTP handlers.
type Store interface {
	List() []Persona
	FindByID(id ID) (Persona, bool)
}

// MemoryStore implements Store with an in-memory slice; the persona table
// is fixed at build time so nothing fancier is needed.
type MemoryStore struct {
	items []Persona
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied personas.
func NewMemoryStore(items []Persona) *MemoryStore {
	return &MemoryStore{items: append([]Persona(nil), items...)}
}

// List returns the predefined persona list.
func (s *MemoryStore) List() []Persona {
	return append([]Persona(nil), s.items...)
}

// FindByID looks up a persona by identifier.
func (s *MemoryStore) FindByID(id ID) (Persona, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Persona{}, false
}
