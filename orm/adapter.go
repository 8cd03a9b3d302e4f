package orm

import (
	"context"
)

// Options carries per-call adapter options. The "query" key narrows
// GetRelated results in adapters that support it.
type Options map[string]any

// Adapter is a pluggable storage engine for one or more model types.
// Operations that touch storage take a context and may block; operations
// on an in-hand record are synchronous.
//
// Record values are opaque to the orm package: whatever BuildRecord, Find
// and the query methods return is handed back to the adapter through the
// Model wrapping it.
type Adapter interface {
	// Find returns the record of typ with the given id, or nil.
	Find(ctx context.Context, typ string, id any, opts Options) (any, error)
	// QueryOne returns the first record of typ matching query, or nil.
	QueryOne(ctx context.Context, typ string, query any, opts Options) (any, error)
	// Query returns every record of typ matching query.
	Query(ctx context.Context, typ string, query any, opts Options) ([]any, error)
	// All returns every record of typ.
	All(ctx context.Context, typ string, opts Options) ([]any, error)

	// BuildRecord creates an unsaved record of typ holding data.
	BuildRecord(typ string, data map[string]any, opts Options) (any, error)
	IDFor(m *Model) any
	SetID(m *Model, id any) error
	GetAttribute(m *Model, name string) any
	SetAttribute(m *Model, name string, value any) error
	DeleteAttribute(m *Model, name string) error

	// GetRelated returns a single record (or nil) for hasOne and a slice
	// of records for hasMany.
	GetRelated(ctx context.Context, m *Model, name string, desc *Descriptor, opts Options) (any, error)
	// SetRelated replaces the relationship. related is a *Model or nil for
	// hasOne and a []*Model for hasMany.
	SetRelated(ctx context.Context, m *Model, name string, desc *Descriptor, related any, opts Options) error
	AddRelated(ctx context.Context, m *Model, name string, desc *Descriptor, related *Model, opts Options) error
	RemoveRelated(ctx context.Context, m *Model, name string, desc *Descriptor, related *Model, opts Options) error

	SaveRecord(ctx context.Context, m *Model, opts Options) error
	DeleteRecord(ctx context.Context, m *Model, opts Options) error
}
