package orm

import (
	"sort"
)

// Kind distinguishes attributes from the two relationship modes.
type Kind int

const (
	KindAttribute Kind = iota
	KindHasOne
	KindHasMany
)

func (k Kind) String() string {
	switch k {
	case KindAttribute:
		return "attribute"
	case KindHasOne:
		return "hasOne"
	case KindHasMany:
		return "hasMany"
	default:
		return "unknown"
	}
}

// Descriptor declares one field of a model schema. Descriptors are
// immutable once built.
type Descriptor struct {
	kind        Kind
	logicalType string
	options     map[string]any
}

// Attr declares a plain attribute of the given logical type ("text",
// "number", "date", ...). A "default" option is returned by Model.Get when
// the record holds no value.
func Attr(logicalType string, options ...map[string]any) *Descriptor {
	return newDescriptor(KindAttribute, logicalType, options)
}

// HasOne declares a to-one relationship to the model type relatedType.
func HasOne(relatedType string, options ...map[string]any) *Descriptor {
	return newDescriptor(KindHasOne, relatedType, options)
}

// HasMany declares a to-many relationship to the model type relatedType.
func HasMany(relatedType string, options ...map[string]any) *Descriptor {
	return newDescriptor(KindHasMany, relatedType, options)
}

func newDescriptor(kind Kind, logicalType string, options []map[string]any) *Descriptor {
	merged := make(map[string]any)
	for _, opts := range options {
		for k, v := range opts {
			merged[k] = v
		}
	}
	return &Descriptor{kind: kind, logicalType: logicalType, options: merged}
}

func (d *Descriptor) Kind() Kind { return d.kind }

// LogicalType is the attribute's value type, or the related model type.
func (d *Descriptor) LogicalType() string { return d.logicalType }

// Options returns a copy of the declaration options.
func (d *Descriptor) Options() map[string]any {
	out := make(map[string]any, len(d.options))
	for k, v := range d.options {
		out[k] = v
	}
	return out
}

// Option returns a single declaration option.
func (d *Descriptor) Option(key string) (any, bool) {
	v, ok := d.options[key]
	return v, ok
}

func (d *Descriptor) IsRelationship() bool {
	return d.kind == KindHasOne || d.kind == KindHasMany
}

// Fields is the declarative input to DefineSchema.
type Fields map[string]*Descriptor

// Schema is the explicit, immutable field table of a model class.
type Schema struct {
	fields map[string]*Descriptor
	names  []string
}

// DefineSchema freezes fields into a Schema. Nil descriptors are ignored.
func DefineSchema(fields Fields) *Schema {
	s := &Schema{fields: make(map[string]*Descriptor, len(fields))}
	for name, d := range fields {
		if d == nil {
			continue
		}
		s.fields[name] = d
		s.names = append(s.names, name)
	}
	sort.Strings(s.names)
	return s
}

// Descriptor returns the declaration for name.
func (s *Schema) Descriptor(name string) (*Descriptor, bool) {
	if s == nil {
		return nil, false
	}
	d, ok := s.fields[name]
	return d, ok
}

// Names returns every field name, sorted.
func (s *Schema) Names() []string {
	if s == nil {
		return nil
	}
	return append([]string{}, s.names...)
}

// Attributes returns the attribute names, sorted.
func (s *Schema) Attributes() []string {
	return s.filter(func(d *Descriptor) bool { return d.kind == KindAttribute })
}

// Relationships returns the relationship names, sorted.
func (s *Schema) Relationships() []string {
	return s.filter((*Descriptor).IsRelationship)
}

func (s *Schema) filter(keep func(*Descriptor) bool) []string {
	out := []string{}
	if s == nil {
		return out
	}
	for _, name := range s.names {
		if keep(s.fields[name]) {
			out = append(out, name)
		}
	}
	return out
}

// extend returns a schema holding parent's fields overridden by s.
func (s *Schema) extend(parent *Schema) *Schema {
	if parent == nil {
		return s
	}
	merged := Fields{}
	for name, d := range parent.fields {
		merged[name] = d
	}
	if s != nil {
		for name, d := range s.fields {
			merged[name] = d
		}
	}
	return DefineSchema(merged)
}
