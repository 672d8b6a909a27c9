package persona

// Store exposes persona retrieval for HTTP handlers and the orchestrator.
type Store interface {
	List() []Persona
	FindByID(id string) (Persona, bool)
}

// MemoryStore keeps the fixed child roster in memory.
type MemoryStore struct {
	items []Persona
	index map[string]int
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied personas.
func NewMemoryStore(items []Persona) *MemoryStore {
	s := &MemoryStore{
		items: append([]Persona(nil), items...),
		index: make(map[string]int, len(items)),
	}
	for i, item := range s.items {
		s.index[item.ID] = i
	}
	return s
}

// List returns the roster in declaration order.
func (s *MemoryStore) List() []Persona {
	return append([]Persona(nil), s.items...)
}

// FindByID looks up a persona by identifier.
func (s *MemoryStore) FindByID(id string) (Persona, bool) {
	i, ok := s.index[id]
	if !ok {
		return Persona{}, false
	}
	return s.items[i], true
}

// Selectable reports whether p may be chosen given the household unlock state.
func Selectable(p Persona, unlocked bool) bool {
	return !p.RequiresUnlock || unlocked
}
