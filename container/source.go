package container

// Source is one link of a resolver's discovery chain: the application's own
// entries, or one addon's. Sources are consulted in priority order and the
// first that resolves a specifier wins.
type Source interface {
	// Name identifies the source in diagnostics.
	Name() string
	// TryResolve returns the value for spec, if this source provides one.
	TryResolve(spec Specifier) (any, bool)
	// Names lists the entry names this source provides for typ.
	Names(typ string) []string
}

// MapSource is an in-code Source: an ordered table of entries an
// application or addon declares up front.
type MapSource struct {
	name    string
	entries *Registry
}

// NewMapSource creates an empty MapSource.
func NewMapSource(name string) *MapSource {
	return &MapSource{name: name, entries: NewRegistry()}
}

// Set adds an entry and returns the source for chaining. It panics on a
// malformed specifier, like MustParse.
func (m *MapSource) Set(spec string, value any) *MapSource {
	m.entries.Register(MustParse(spec), value)
	return m
}

func (m *MapSource) Name() string { return m.name }

func (m *MapSource) TryResolve(spec Specifier) (any, bool) {
	return m.entries.Get(spec)
}

func (m *MapSource) Names(typ string) []string {
	return m.entries.Names(typ)
}

// Ensure MapSource implements Source.
var _ Source = (*MapSource)(nil)
