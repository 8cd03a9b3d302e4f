package container

import (
	"reflect"
	"sync"

	apperrors "github.com/leeforge/strata/errors"
)

// Meta is the per-container metadata record attached to one object.
type Meta struct {
	mu        sync.RWMutex
	specifier Specifier
	values    map[string]any
}

// Specifier returns the entry the object was first looked up under, or the
// zero Specifier if it never was.
func (m *Meta) Specifier() Specifier {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.specifier
}

// Get returns an arbitrary metadata value.
func (m *Meta) Get(key string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

// Set stores an arbitrary metadata value.
func (m *Meta) Set(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}

func (m *Meta) claim(spec Specifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.specifier.IsZero() {
		m.specifier = spec
	}
}

// MetaFor returns the metadata record for obj, creating it on first use.
// Records are keyed by identity, so obj must be a pointer or channel;
// anything else is a programmer error and panics.
func (c *Container) MetaFor(obj any) *Meta {
	if !hasIdentity(obj) {
		panic(apperrors.NewAssertion("metaFor requires a pointer or channel, got %T", obj))
	}

	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meta[obj]
	if !ok {
		m = &Meta{values: make(map[string]any)}
		s.meta[obj] = m
	}
	return m
}

func hasIdentity(obj any) bool {
	if obj == nil {
		return false
	}
	switch reflect.TypeOf(obj).Kind() {
	case reflect.Pointer, reflect.Chan, reflect.UnsafePointer:
		return !reflect.ValueOf(obj).IsNil()
	default:
		return false
	}
}
