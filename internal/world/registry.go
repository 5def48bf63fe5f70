package world

import (
	"sort"
	"sync"
)

// Registry is the set of characters currently in-world, keyed by name.
// The guild loader consults it to prefer live levels over stored ones.
type Registry struct {
	mu      sync.RWMutex
	players map[string]*Player
}

func NewRegistry() *Registry {
	return &Registry{players: make(map[string]*Player)}
}

// Add registers p, replacing any previous entry with the same name.
func (r *Registry) Add(p *Player) {
	r.mu.Lock()
	r.players[p.Name] = p
	r.mu.Unlock()
}

// Remove unregisters a player and returns it, or nil if absent.
func (r *Registry) Remove(name string) *Player {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.players[name]
	delete(r.players, name)
	return p
}

func (r *Registry) Get(name string) (*Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.players[name]
	return p, ok
}

// All returns a snapshot of online players sorted by name.
func (r *Registry) All() []*Player {
	r.mu.RLock()
	result := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		result = append(result, p)
	}
	r.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}
