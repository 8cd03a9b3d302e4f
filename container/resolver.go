package container

import (
	"sync"
)

// Resolver maps a Specifier to a concrete value.
type Resolver interface {
	Name() string
	Retrieve(spec Specifier) (any, bool)
	Register(spec Specifier, value any)
	AvailableForType(typ string) []string
}

// TypeHook overrides resolution for one entry type. Retrieve replaces the
// source chain lookup for that type, Available replaces name discovery.
// Either may be nil to keep the default. Hooks can fall back explicitly
// through RetrieveFromSources and NamesFromSources.
type TypeHook struct {
	Retrieve  func(r *SourceResolver, name string) (any, bool)
	Available func(r *SourceResolver) []string
}

// SourceResolver resolves, in order: explicitly registered entries, then
// a type hook if one is installed for the type, then the source chain
// (first match wins).
type SourceResolver struct {
	name     string
	registry *Registry
	hooks    map[string]TypeHook
	sources  []Source
	mu       sync.RWMutex
}

// NewResolver creates a resolver over sources, highest priority first.
func NewResolver(name string, sources ...Source) *SourceResolver {
	return &SourceResolver{
		name:     name,
		registry: NewRegistry(),
		hooks:    make(map[string]TypeHook),
		sources:  append([]Source{}, sources...),
	}
}

func (r *SourceResolver) Name() string { return r.name }

// Registry exposes the explicit registrations.
func (r *SourceResolver) Registry() *Registry { return r.registry }

// Handle installs hook for typ, replacing any previous hook.
func (r *SourceResolver) Handle(typ string, hook TypeHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[typ] = hook
}

// AddSource appends src at the lowest priority. Registered entries keep
// winning over anything it provides.
func (r *SourceResolver) AddSource(src Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = append(r.sources, src)
}

// Sources returns the chain, highest priority first.
func (r *SourceResolver) Sources() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Source{}, r.sources...)
}

func (r *SourceResolver) Register(spec Specifier, value any) {
	r.registry.Register(spec, value)
}

// Unregister drops an explicit registration; discovered entries for the
// same specifier become visible again.
func (r *SourceResolver) Unregister(spec Specifier) bool {
	return r.registry.Unregister(spec)
}

func (r *SourceResolver) Retrieve(spec Specifier) (any, bool) {
	if v, ok := r.registry.Get(spec); ok {
		return v, true
	}
	if hook, ok := r.hook(spec.Type); ok && hook.Retrieve != nil {
		return hook.Retrieve(r, spec.Name)
	}
	return r.RetrieveFromSources(spec)
}

// RetrieveFromSources walks the source chain only.
func (r *SourceResolver) RetrieveFromSources(spec Specifier) (any, bool) {
	for _, src := range r.Sources() {
		if v, ok := src.TryResolve(spec); ok {
			return v, true
		}
	}
	return nil, false
}

func (r *SourceResolver) AvailableForType(typ string) []string {
	var discovered []string
	if hook, ok := r.hook(typ); ok && hook.Available != nil {
		discovered = hook.Available(r)
	} else {
		discovered = r.NamesFromSources(typ)
	}
	return uniqueNames(r.registry.Names(typ), discovered)
}

// NamesFromSources aggregates names across the chain, first seen wins.
func (r *SourceResolver) NamesFromSources(typ string) []string {
	var lists [][]string
	for _, src := range r.Sources() {
		lists = append(lists, src.Names(typ))
	}
	return uniqueNames(lists...)
}

func (r *SourceResolver) hook(typ string) (TypeHook, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.hooks[typ]
	return h, ok
}

func uniqueNames(lists ...[]string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, list := range lists {
		for _, name := range list {
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	return out
}

// Ensure SourceResolver implements Resolver.
var _ Resolver = (*SourceResolver)(nil)
