package orm

import (
	"sort"
	"sync"

	"github.com/go-openapi/inflect"

	"github.com/leeforge/strata/container"
	apperrors "github.com/leeforge/strata/errors"
	"github.com/leeforge/strata/utils"
)

// Operation names an accessor synthesised for a relationship.
type Operation int

const (
	OpGetRelated Operation = iota
	OpSetRelated
	OpAddRelated
	OpRemoveRelated
)

type accessor struct {
	op           Operation
	relationship string
}

// ModelClass is a model type: a schema plus the accessor table synthesised
// from it. Classes are registered as "model:<type>" and learn their type
// name from the container metadata recorded on lookup.
type ModelClass struct {
	Container *container.Container `inject:"container:main,loose"`
	bindMu    sync.RWMutex

	schema   *Schema
	abstract bool

	once       sync.Once
	attributes map[string]*Descriptor
	methods    map[string]accessor
}

// ClassOption configures NewModelClass.
type ClassOption func(*ModelClass)

// Abstract marks a class that only exists to be extended. Abstract classes
// get no accessors and cannot build instances.
func Abstract() ClassOption {
	return func(c *ModelClass) { c.abstract = true }
}

// Extends inherits parent's fields; fields of the new schema win.
func Extends(parent *ModelClass) ClassOption {
	return func(c *ModelClass) {
		if parent != nil {
			c.schema = c.schema.extend(parent.schema)
		}
	}
}

// NewModelClass creates a class for schema.
func NewModelClass(schema *Schema, opts ...ClassOption) *ModelClass {
	if schema == nil {
		schema = DefineSchema(nil)
	}
	c := &ModelClass{schema: schema}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// owner is the container the class resolves adapters and relations through.
func (c *ModelClass) owner() *container.Container {
	c.bindMu.RLock()
	defer c.bindMu.RUnlock()
	return c.Container
}

// bind attaches ctr unless injection already gave the class a container.
func (c *ModelClass) bind(ctr *container.Container) {
	c.bindMu.Lock()
	defer c.bindMu.Unlock()
	if c.Container == nil {
		c.Container = ctr
	}
}

func (c *ModelClass) Schema() *Schema { return c.schema }

func (c *ModelClass) IsAbstract() bool { return c.abstract }

// Type is the name the class was looked up under ("post" for
// "model:post"), or "" if it never was.
func (c *ModelClass) Type() string {
	ctr := c.owner()
	if ctr == nil {
		return ""
	}
	return ctr.MetaFor(c).Specifier().Name
}

// Methods lists the synthesised relationship accessors, sorted.
func (c *ModelClass) Methods() []string {
	c.synthesize()
	out := make([]string, 0, len(c.methods))
	for name := range c.methods {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Attributes lists the attribute accessors, sorted.
func (c *ModelClass) Attributes() []string {
	c.synthesize()
	out := make([]string, 0, len(c.attributes))
	for name := range c.attributes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// synthesize builds the accessor table once per concrete class.
func (c *ModelClass) synthesize() {
	c.once.Do(func() {
		c.attributes = make(map[string]*Descriptor)
		c.methods = make(map[string]accessor)
		if c.abstract {
			return
		}
		for _, name := range c.schema.Names() {
			d, _ := c.schema.Descriptor(name)
			switch d.Kind() {
			case KindAttribute:
				c.attributes[name] = d
			case KindHasOne, KindHasMany:
				upper := utils.UpperCamelCase(name)
				c.methods["get"+upper] = accessor{op: OpGetRelated, relationship: name}
				c.methods["set"+upper] = accessor{op: OpSetRelated, relationship: name}
				if d.Kind() == KindHasMany {
					singular := utils.UpperCamelCase(inflect.Singularize(name))
					c.methods["add"+singular] = accessor{op: OpAddRelated, relationship: name}
					c.methods["remove"+singular] = accessor{op: OpRemoveRelated, relationship: name}
				}
			}
		}
	})
}

// Build creates an unsaved instance holding data.
func (c *ModelClass) Build(data map[string]any, opts Options) (*Model, error) {
	if err := c.checkConcrete(); err != nil {
		return nil, err
	}
	adapter, err := c.Adapter()
	if err != nil {
		return nil, err
	}
	record, err := adapter.BuildRecord(c.Type(), data, opts)
	if err != nil {
		return nil, err
	}
	return c.Wrap(record), nil
}

// Wrap returns an instance around an existing adapter record.
func (c *ModelClass) Wrap(record any) *Model {
	return &Model{class: c, record: record}
}

// Adapter resolves "orm-adapter:<type>", falling back to
// "orm-adapter:application". It is looked up on every call so adapters can
// be swapped in the container.
func (c *ModelClass) Adapter() (Adapter, error) {
	typ := c.Type()
	if typ == "" {
		return nil, apperrors.NewAssertion("model class was not looked up through a container")
	}
	ctr := c.owner()
	v, err := ctr.Lookup("orm-adapter:"+typ, container.Loose())
	if err != nil {
		return nil, err
	}
	if v == nil {
		if v, err = ctr.Lookup("orm-adapter:application"); err != nil {
			return nil, err
		}
	}
	adapter, ok := v.(Adapter)
	if !ok {
		return nil, apperrors.NewAssertion("adapter for %q is %T, which does not implement orm.Adapter", typ, v)
	}
	return adapter, nil
}

// ClassFor resolves the class registered as "model:<typ>".
func ClassFor(ctr *container.Container, typ string) (*ModelClass, error) {
	cls, err := container.Resolve[*ModelClass](ctr, "model:"+typ)
	if err != nil {
		return nil, err
	}
	cls.bind(ctr)
	return cls, nil
}

func (c *ModelClass) checkConcrete() error {
	if c.abstract {
		return apperrors.NewAssertion("model class %q is abstract", c.Type())
	}
	return nil
}

func (c *ModelClass) relationship(name string) (*Descriptor, error) {
	d, ok := c.schema.Descriptor(name)
	if !ok {
		return nil, apperrors.NewAssertion("model %q has no relationship %q", c.Type(), name)
	}
	if !d.IsRelationship() {
		return nil, apperrors.NewAssertion("%q on model %q is an attribute, not a relationship", name, c.Type())
	}
	return d, nil
}
