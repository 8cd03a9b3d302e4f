package addon

import (
	"context"

	"github.com/leeforge/strata/container"
	"github.com/leeforge/strata/runtime/migration"
)

// Addon is the minimal interface every addon must implement. Its Source
// contributes entries to the application's resolver. Sources are searched
// in boot order, so an addon's dependencies answer first.
type Addon interface {
	Name() string
	Version() string
	Dependencies() []string
	Source() container.Source
}

// --- Optional Capability Interfaces ---
// Runtime detects these via type assertion: if a, ok := addon.(Initializer); ok { ... }

// Installable -- first-time setup (schema, seed data).
type Installable interface {
	Install(ctx context.Context, app *AppContext) error
}

// Initializer -- runs once the container is assembled; may register
// entries and look up others.
type Initializer interface {
	Init(ctx context.Context, app *AppContext) error
}

// Disableable -- cleanup on shutdown (release resources, flush buffers).
type Disableable interface {
	Disable(ctx context.Context, app *AppContext) error
}

// MigrationProvider -- storage migrations run during bootstrap.
type MigrationProvider interface {
	Migrations() []migration.Strategy
}

// EventSubscriber -- subscribe to runtime/addon events.
type EventSubscriber interface {
	SubscribeEvents(bus EventBus)
}

// HealthReporter -- provide custom health checks.
type HealthReporter interface {
	HealthCheck(ctx context.Context) error
}

// Configurable -- declare addon options (optional flag, description).
type Configurable interface {
	AddonOptions() Options
}

// Options holds declarative metadata about an addon.
type Options struct {
	Optional    bool   // If true, failure does not abort bootstrap.
	Description string // Human-readable description.
}

// Base is a ready-made Addon around a MapSource.
type Base struct {
	AddonName    string
	AddonVersion string
	Requires     []string
	Entries      *container.MapSource
}

// New creates a Base addon with an empty entry table.
func New(name, version string, requires ...string) *Base {
	return &Base{
		AddonName:    name,
		AddonVersion: version,
		Requires:     requires,
		Entries:      container.NewMapSource(name),
	}
}

// Provide adds an entry to the addon's source.
func (b *Base) Provide(spec string, value any) *Base {
	b.Entries.Set(spec, value)
	return b
}

func (b *Base) Name() string           { return b.AddonName }
func (b *Base) Version() string        { return b.AddonVersion }
func (b *Base) Dependencies() []string { return b.Requires }

func (b *Base) Source() container.Source {
	if b.Entries == nil {
		b.Entries = container.NewMapSource(b.AddonName)
	}
	return b.Entries
}
