package container

import (
	"sync"
)

// Registry is an ordered, concurrency-safe table of explicitly registered
// entries. Overwriting an entry keeps its original position.
type Registry struct {
	entries map[Specifier]any
	order   []Specifier
	mu      sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[Specifier]any),
	}
}

// Register stores value under spec, replacing any previous value.
func (r *Registry) Register(spec Specifier, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[spec]; !exists {
		r.order = append(r.order, spec)
	}
	r.entries[spec] = value
}

// Unregister removes spec. It reports whether an entry was removed.
func (r *Registry) Unregister(spec Specifier) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[spec]; !exists {
		return false
	}
	delete(r.entries, spec)
	for i, s := range r.order {
		if s == spec {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns the value registered under spec.
func (r *Registry) Get(spec Specifier) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.entries[spec]
	return v, ok
}

// Has returns true if an entry is registered under spec.
func (r *Registry) Has(spec Specifier) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.entries[spec]
	return exists
}

// Names returns the names registered for typ, in registration order.
func (r *Registry) Names(typ string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for _, s := range r.order {
		if s.Type == typ {
			names = append(names, s.Name)
		}
	}
	return names
}

// Specifiers returns every registered specifier in registration order.
func (r *Registry) Specifiers() []Specifier {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Specifier{}, r.order...)
}
