package adapter

import (
	"context"
	"fmt"
	"io"
	"reflect"

	"github.com/go-openapi/inflect"
	"go.uber.org/zap"

	apperrors "github.com/leeforge/strata/errors"
	"github.com/leeforge/strata/orm"
)

// IDField is the document key holding the record id.
const IDField = "id"

// Document is the record representation shared by every Store.
type Document = map[string]any

// Predicate is a query that selects documents programmatically.
type Predicate func(doc Document) bool

// Store persists documents grouped by model type.
type Store interface {
	// Load returns a copy of the stored document.
	Load(ctx context.Context, typ, id string) (Document, bool, error)
	// Scan returns copies of every document of typ, in id order.
	Scan(ctx context.Context, typ string) ([]Document, error)
	Save(ctx context.Context, typ, id string, doc Document) error
	Remove(ctx context.Context, typ, id string) error
	// NextID allocates an id for a record being saved for the first time.
	NextID(ctx context.Context, typ string) (any, error)
}

// DocumentAdapter implements orm.Adapter over a Store. Relationships are
// kept on the owning document: "<name>_id" for hasOne and
// "<singular>_ids" for hasMany.
type DocumentAdapter struct {
	store  Store
	logger *zap.Logger
}

// Option configures a DocumentAdapter.
type Option func(*DocumentAdapter)

// WithLogger traces storage operations at debug level.
func WithLogger(logger *zap.Logger) Option {
	return func(a *DocumentAdapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New creates an adapter backed by store.
func New(store Store, opts ...Option) *DocumentAdapter {
	a := &DocumentAdapter{store: store, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Store returns the backing store.
func (a *DocumentAdapter) Store() Store { return a.store }

// Teardown closes the store when it holds a connection.
func (a *DocumentAdapter) Teardown() error {
	if c, ok := a.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (a *DocumentAdapter) Find(ctx context.Context, typ string, id any, _ orm.Options) (any, error) {
	if id == nil {
		return nil, nil
	}
	doc, ok, err := a.store.Load(ctx, typ, Key(id))
	if err != nil || !ok {
		return nil, err
	}
	return doc, nil
}

func (a *DocumentAdapter) QueryOne(ctx context.Context, typ string, query any, opts orm.Options) (any, error) {
	docs, err := a.Query(ctx, typ, query, opts)
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

func (a *DocumentAdapter) Query(ctx context.Context, typ string, query any, _ orm.Options) ([]any, error) {
	match, err := compileQuery(query)
	if err != nil {
		return nil, err
	}
	docs, err := a.store.Scan(ctx, typ)
	if err != nil {
		return nil, err
	}
	out := []any{}
	for _, doc := range docs {
		if match(doc) {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (a *DocumentAdapter) All(ctx context.Context, typ string, opts orm.Options) ([]any, error) {
	return a.Query(ctx, typ, nil, opts)
}

func (a *DocumentAdapter) BuildRecord(_ string, data map[string]any, _ orm.Options) (any, error) {
	doc := Clone(data)
	if doc == nil {
		doc = Document{}
	}
	return doc, nil
}

func (a *DocumentAdapter) IDFor(m *orm.Model) any {
	doc, ok := m.Record().(Document)
	if !ok {
		return nil
	}
	return doc[IDField]
}

func (a *DocumentAdapter) SetID(m *orm.Model, id any) error {
	doc, err := document(m)
	if err != nil {
		return err
	}
	doc[IDField] = id
	return nil
}

func (a *DocumentAdapter) GetAttribute(m *orm.Model, name string) any {
	doc, ok := m.Record().(Document)
	if !ok {
		return nil
	}
	return doc[name]
}

func (a *DocumentAdapter) SetAttribute(m *orm.Model, name string, value any) error {
	doc, err := document(m)
	if err != nil {
		return err
	}
	doc[name] = value
	return nil
}

func (a *DocumentAdapter) DeleteAttribute(m *orm.Model, name string) error {
	doc, err := document(m)
	if err != nil {
		return err
	}
	delete(doc, name)
	return nil
}

func (a *DocumentAdapter) GetRelated(ctx context.Context, m *orm.Model, name string, desc *orm.Descriptor, opts orm.Options) (any, error) {
	doc, err := document(m)
	if err != nil {
		return nil, err
	}

	if desc.Kind() == orm.KindHasOne {
		id := doc[ForeignKey(name, desc)]
		if id == nil {
			return nil, nil
		}
		related, ok, err := a.store.Load(ctx, desc.LogicalType(), Key(id))
		if err != nil || !ok {
			return nil, err
		}
		return related, nil
	}

	match, err := compileQuery(opts["query"])
	if err != nil {
		return nil, err
	}
	out := []any{}
	for _, id := range idList(doc[ForeignKey(name, desc)]) {
		related, ok, err := a.store.Load(ctx, desc.LogicalType(), Key(id))
		if err != nil {
			return nil, err
		}
		if ok && match(related) {
			out = append(out, related)
		}
	}
	return out, nil
}

func (a *DocumentAdapter) SetRelated(_ context.Context, m *orm.Model, name string, desc *orm.Descriptor, related any, _ orm.Options) error {
	doc, err := document(m)
	if err != nil {
		return err
	}
	key := ForeignKey(name, desc)

	if desc.Kind() == orm.KindHasOne {
		rm, _ := related.(*orm.Model)
		if rm == nil {
			delete(doc, key)
			return nil
		}
		id, err := relatedID(rm, name)
		if err != nil {
			return err
		}
		doc[key] = id
		return nil
	}

	models, ok := related.([]*orm.Model)
	if !ok {
		return apperrors.NewAssertion("hasMany relationship %q needs []*orm.Model, got %T", name, related)
	}
	ids := make([]any, 0, len(models))
	for _, rm := range models {
		id, err := relatedID(rm, name)
		if err != nil {
			return err
		}
		ids = appendUnique(ids, id)
	}
	doc[key] = ids
	return nil
}

func (a *DocumentAdapter) AddRelated(_ context.Context, m *orm.Model, name string, desc *orm.Descriptor, related *orm.Model, _ orm.Options) error {
	doc, err := document(m)
	if err != nil {
		return err
	}
	id, err := relatedID(related, name)
	if err != nil {
		return err
	}
	key := ForeignKey(name, desc)
	doc[key] = appendUnique(idList(doc[key]), id)
	return nil
}

func (a *DocumentAdapter) RemoveRelated(_ context.Context, m *orm.Model, name string, desc *orm.Descriptor, related *orm.Model, _ orm.Options) error {
	doc, err := document(m)
	if err != nil {
		return err
	}
	id, err := relatedID(related, name)
	if err != nil {
		return err
	}
	key := ForeignKey(name, desc)
	kept := []any{}
	for _, existing := range idList(doc[key]) {
		if Key(existing) != Key(id) {
			kept = append(kept, existing)
		}
	}
	doc[key] = kept
	return nil
}

func (a *DocumentAdapter) SaveRecord(ctx context.Context, m *orm.Model, _ orm.Options) error {
	doc, err := document(m)
	if err != nil {
		return err
	}
	typ := m.Type()
	if doc[IDField] == nil {
		id, err := a.store.NextID(ctx, typ)
		if err != nil {
			return fmt.Errorf("allocate id for %s: %w", typ, err)
		}
		doc[IDField] = id
	}
	id := Key(doc[IDField])
	if err := a.store.Save(ctx, typ, id, Clone(doc)); err != nil {
		return err
	}
	a.logger.Debug("record saved", zap.String("type", typ), zap.String("id", id))
	return nil
}

func (a *DocumentAdapter) DeleteRecord(ctx context.Context, m *orm.Model, _ orm.Options) error {
	doc, err := document(m)
	if err != nil {
		return err
	}
	if doc[IDField] == nil {
		return nil
	}
	typ := m.Type()
	id := Key(doc[IDField])
	if err := a.store.Remove(ctx, typ, id); err != nil {
		return err
	}
	a.logger.Debug("record deleted", zap.String("type", typ), zap.String("id", id))
	return nil
}

// ForeignKey is the document field holding a relationship's ids.
func ForeignKey(name string, desc *orm.Descriptor) string {
	if desc.Kind() == orm.KindHasMany {
		return inflect.Singularize(name) + "_ids"
	}
	return name + "_id"
}

// Key is the canonical string form of an id. Numeric ids decoded from JSON
// as float64 map to the same key as their integer form.
func Key(id any) string {
	switch v := id.(type) {
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprint(int64(v))
		}
	case float32:
		if v == float32(int64(v)) {
			return fmt.Sprint(int64(v))
		}
	}
	return fmt.Sprint(id)
}

// Clone copies doc; nested slices and maps are copied one level deep.
func Clone(doc map[string]any) Document {
	if doc == nil {
		return nil
	}
	out := make(Document, len(doc))
	for k, v := range doc {
		switch vv := v.(type) {
		case []any:
			out[k] = append([]any{}, vv...)
		case map[string]any:
			inner := make(map[string]any, len(vv))
			for ik, iv := range vv {
				inner[ik] = iv
			}
			out[k] = inner
		default:
			out[k] = v
		}
	}
	return out
}

func document(m *orm.Model) (Document, error) {
	doc, ok := m.Record().(Document)
	if !ok || doc == nil {
		return nil, apperrors.NewAssertion("record of %q is %T, not a document", m.Type(), m.Record())
	}
	return doc, nil
}

func relatedID(related *orm.Model, name string) (any, error) {
	if related == nil {
		return nil, apperrors.NewAssertion("cannot relate a nil model through %q", name)
	}
	id, err := related.ID()
	if err != nil {
		return nil, err
	}
	if id == nil {
		return nil, apperrors.NewAssertion("related %q must be saved before it is added to %q", related.Type(), name)
	}
	return id, nil
}

func idList(v any) []any {
	if v == nil {
		return []any{}
	}
	if ids, ok := v.([]any); ok {
		return append([]any{}, ids...)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{v}
	}
	out := make([]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out = append(out, rv.Index(i).Interface())
	}
	return out
}

func appendUnique(ids []any, id any) []any {
	for _, existing := range ids {
		if Key(existing) == Key(id) {
			return ids
		}
	}
	return append(ids, id)
}

func compileQuery(query any) (Predicate, error) {
	switch q := query.(type) {
	case nil:
		return func(Document) bool { return true }, nil
	case Predicate:
		return q, nil
	case func(Document) bool:
		return q, nil
	case map[string]any:
		return func(doc Document) bool {
			for k, want := range q {
				if !equalValues(doc[k], want) {
					return false
				}
			}
			return true
		}, nil
	default:
		return nil, apperrors.NewAssertion("unsupported query %T: use map[string]any or adapter.Predicate", query)
	}
}

func equalValues(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if isScalar(a) && isScalar(b) {
		return Key(a) == Key(b)
	}
	return false
}

func isScalar(v any) bool {
	switch reflect.TypeOf(v).Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

// Ensure DocumentAdapter implements orm.Adapter.
var _ orm.Adapter = (*DocumentAdapter)(nil)
