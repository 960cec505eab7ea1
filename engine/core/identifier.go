package core

import "sync"

// InvalidID is never handed out by an Interner.
const InvalidID uint32 = 0

// Interner maps stable names to small dense integer identifiers. Names stay the
// external key; the IDs are used for hot lookups. ID 0 is reserved as invalid.
type Interner struct {
	mu    sync.RWMutex
	ids   map[string]uint32
	names []string
}

func NewInterner() *Interner {
	return &Interner{
		ids: make(map[string]uint32),
		// slot 0 is InvalidID
		names: []string{""},
	}
}

// Intern returns the identifier of name, assigning a new one on first use.
func (in *Interner) Intern(name string) uint32 {
	in.mu.RLock()
	id, ok := in.ids[name]
	in.mu.RUnlock()
	if ok {
		return id
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if id, ok := in.ids[name]; ok {
		return id
	}
	id = uint32(len(in.names))
	in.names = append(in.names, name)
	in.ids[name] = id
	return id
}

// Lookup returns the identifier of an already interned name.
func (in *Interner) Lookup(name string) (uint32, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	id, ok := in.ids[name]
	return id, ok
}

// Name returns the name behind id, or "" when id was never handed out.
func (in *Interner) Name(id uint32) string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if id == InvalidID || int(id) >= len(in.names) {
		return ""
	}
	return in.names[id]
}

func (in *Interner) Len() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return len(in.names) - 1
}
