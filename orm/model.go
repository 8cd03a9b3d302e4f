package orm

import (
	"context"
	"reflect"

	"github.com/go-openapi/inflect"

	apperrors "github.com/leeforge/strata/errors"
)

// Model is a storage-agnostic record wrapper. Attribute access,
// relationship traversal and persistence are delegated to the adapter of
// the model's type.
type Model struct {
	class  *ModelClass
	record any
}

func (m *Model) Class() *ModelClass { return m.class }

// Record is the adapter's opaque record.
func (m *Model) Record() any { return m.record }

func (m *Model) Type() string { return m.class.Type() }

func (m *Model) Adapter() (Adapter, error) { return m.class.Adapter() }

// Attributes lists the attribute names of the model's class.
func (m *Model) Attributes() []string { return m.class.Attributes() }

// Methods lists the relationship accessors callable through Call.
func (m *Model) Methods() []string { return m.class.Methods() }

func (m *Model) ID() (any, error) {
	a, err := m.Adapter()
	if err != nil {
		return nil, err
	}
	return a.IDFor(m), nil
}

func (m *Model) SetID(id any) error {
	a, err := m.Adapter()
	if err != nil {
		return err
	}
	return a.SetID(m, id)
}

// Get reads an attribute through the adapter. A declared "default" option
// is returned when the record holds no value.
func (m *Model) Get(name string) (any, error) {
	d, err := m.attribute(name)
	if err != nil {
		return nil, err
	}
	a, err := m.Adapter()
	if err != nil {
		return nil, err
	}
	v := a.GetAttribute(m, name)
	if v == nil {
		if def, ok := d.Option("default"); ok {
			return def, nil
		}
	}
	return v, nil
}

// Set writes an attribute through the adapter.
func (m *Model) Set(name string, value any) error {
	if _, err := m.attribute(name); err != nil {
		return err
	}
	a, err := m.Adapter()
	if err != nil {
		return err
	}
	return a.SetAttribute(m, name, value)
}

func (m *Model) DeleteAttribute(name string) error {
	if _, err := m.attribute(name); err != nil {
		return err
	}
	a, err := m.Adapter()
	if err != nil {
		return err
	}
	return a.DeleteAttribute(m, name)
}

// Save persists the record and returns the model.
func (m *Model) Save(ctx context.Context, opts Options) (*Model, error) {
	a, err := m.Adapter()
	if err != nil {
		return nil, err
	}
	if err := a.SaveRecord(ctx, m, opts); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Model) Delete(ctx context.Context, opts Options) error {
	a, err := m.Adapter()
	if err != nil {
		return err
	}
	return a.DeleteRecord(ctx, m, opts)
}

// GetRelated returns a *Model (or nil) for hasOne relationships and a
// []*Model, never nil, for hasMany.
func (m *Model) GetRelated(ctx context.Context, name string, opts Options) (any, error) {
	d, err := m.class.relationship(name)
	if err != nil {
		return nil, err
	}
	a, err := m.Adapter()
	if err != nil {
		return nil, err
	}
	result, err := a.GetRelated(ctx, m, name, d, opts)
	if err != nil {
		return nil, err
	}

	related, err := ClassFor(m.class.owner(), d.LogicalType())
	if err != nil {
		return nil, err
	}

	if d.Kind() == KindHasOne {
		if result == nil {
			return (*Model)(nil), nil
		}
		if isSlice(result) {
			return nil, apperrors.NewAssertion(
				"adapter returned %T for hasOne relationship %q of %q", result, name, m.Type())
		}
		return related.Wrap(result), nil
	}

	if result == nil {
		return []*Model{}, nil
	}
	if !isSlice(result) {
		return nil, apperrors.NewAssertion(
			"adapter returned %T for hasMany relationship %q of %q", result, name, m.Type())
	}
	rv := reflect.ValueOf(result)
	out := make([]*Model, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out = append(out, related.Wrap(rv.Index(i).Interface()))
	}
	return out, nil
}

// GetOne is GetRelated for a hasOne relationship.
func (m *Model) GetOne(ctx context.Context, name string, opts Options) (*Model, error) {
	if err := m.expectKind(name, KindHasOne); err != nil {
		return nil, err
	}
	v, err := m.GetRelated(ctx, name, opts)
	if err != nil {
		return nil, err
	}
	return v.(*Model), nil
}

// GetMany is GetRelated for a hasMany relationship.
func (m *Model) GetMany(ctx context.Context, name string, opts Options) ([]*Model, error) {
	if err := m.expectKind(name, KindHasMany); err != nil {
		return nil, err
	}
	v, err := m.GetRelated(ctx, name, opts)
	if err != nil {
		return nil, err
	}
	return v.([]*Model), nil
}

// SetRelated replaces a relationship. A []*Model is only accepted for
// hasMany, a *Model or nil only for hasOne.
func (m *Model) SetRelated(ctx context.Context, name string, related any, opts Options) error {
	d, err := m.class.relationship(name)
	if err != nil {
		return err
	}
	switch v := related.(type) {
	case []*Model:
		if d.Kind() != KindHasMany {
			return apperrors.NewAssertion("cannot set a list on hasOne relationship %q of %q", name, m.Type())
		}
	case *Model, nil:
		if d.Kind() != KindHasOne {
			return apperrors.NewAssertion("hasMany relationship %q of %q must be set with a list", name, m.Type())
		}
		if v == nil {
			related = (*Model)(nil)
		}
	default:
		return apperrors.NewAssertion("cannot relate %T through %q of %q", related, name, m.Type())
	}

	a, err := m.Adapter()
	if err != nil {
		return err
	}
	return a.SetRelated(ctx, m, name, d, related, opts)
}

// AddRelated appends to a hasMany relationship. name may be the singular
// form ("comment" for "comments").
func (m *Model) AddRelated(ctx context.Context, name string, related *Model, opts Options) error {
	rel, d, err := m.hasMany(name)
	if err != nil {
		return err
	}
	a, err := m.Adapter()
	if err != nil {
		return err
	}
	return a.AddRelated(ctx, m, rel, d, related, opts)
}

// RemoveRelated removes from a hasMany relationship. name may be the
// singular form.
func (m *Model) RemoveRelated(ctx context.Context, name string, related *Model, opts Options) error {
	rel, d, err := m.hasMany(name)
	if err != nil {
		return err
	}
	a, err := m.Adapter()
	if err != nil {
		return err
	}
	return a.RemoveRelated(ctx, m, rel, d, related, opts)
}

// Call dispatches a synthesised accessor such as "getComments" or
// "addComment". The last argument may be Options.
func (m *Model) Call(ctx context.Context, method string, args ...any) (any, error) {
	m.class.synthesize()
	acc, ok := m.class.methods[method]
	if !ok {
		return nil, apperrors.NewAssertion("model %q has no method %q", m.Type(), method)
	}

	var opts Options
	if n := len(args); n > 0 {
		if o, ok := args[n-1].(Options); ok {
			opts = o
			args = args[:n-1]
		}
	}

	switch acc.op {
	case OpGetRelated:
		return m.GetRelated(ctx, acc.relationship, opts)
	case OpSetRelated:
		if len(args) != 1 {
			return nil, apperrors.NewAssertion("%s expects one argument, got %d", method, len(args))
		}
		return nil, m.SetRelated(ctx, acc.relationship, args[0], opts)
	default:
		if len(args) != 1 {
			return nil, apperrors.NewAssertion("%s expects one argument, got %d", method, len(args))
		}
		related, ok := args[0].(*Model)
		if !ok || related == nil {
			return nil, apperrors.NewAssertion("%s expects a *Model, got %T", method, args[0])
		}
		if acc.op == OpAddRelated {
			return nil, m.AddRelated(ctx, acc.relationship, related, opts)
		}
		return nil, m.RemoveRelated(ctx, acc.relationship, related, opts)
	}
}

func (m *Model) attribute(name string) (*Descriptor, error) {
	if err := m.class.checkConcrete(); err != nil {
		return nil, err
	}
	m.class.synthesize()
	d, ok := m.class.attributes[name]
	if !ok {
		return nil, apperrors.NewAssertion("model %q has no attribute %q", m.Type(), name)
	}
	return d, nil
}

func (m *Model) hasMany(name string) (string, *Descriptor, error) {
	if d, ok := m.class.schema.Descriptor(name); ok && d.Kind() == KindHasMany {
		return name, d, nil
	}
	plural := inflect.Pluralize(name)
	d, err := m.class.relationship(plural)
	if err != nil {
		return "", nil, err
	}
	if d.Kind() != KindHasMany {
		return "", nil, apperrors.NewAssertion("%q on model %q is not a hasMany relationship", plural, m.Type())
	}
	return plural, d, nil
}

func (m *Model) expectKind(name string, kind Kind) error {
	d, err := m.class.relationship(name)
	if err != nil {
		return err
	}
	if d.Kind() != kind {
		return apperrors.NewAssertion("%q on model %q is %s, not %s", name, m.Type(), d.Kind(), kind)
	}
	return nil
}

func isSlice(v any) bool {
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}
