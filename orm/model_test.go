package orm_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leeforge/strata/adapter"
	"github.com/leeforge/strata/adapter/memory"
	"github.com/leeforge/strata/container"
	apperrors "github.com/leeforge/strata/errors"
	"github.com/leeforge/strata/orm"
)

func newBlog(t *testing.T) *container.Container {
	t.Helper()
	c := container.New()
	c.MustRegister("container:main", c)
	c.MustRegister("orm-adapter:application", container.Factory(func(*container.Container) (any, error) {
		return memory.New(), nil
	}))
	c.MustRegister("model:post", orm.NewModelClass(orm.DefineSchema(orm.Fields{
		"title":    orm.Attr("text"),
		"status":   orm.Attr("text", map[string]any{"default": "draft"}),
		"comments": orm.HasMany("comment"),
		"author":   orm.HasOne("user"),
	})))
	c.MustRegister("model:comment", orm.NewModelClass(orm.DefineSchema(orm.Fields{
		"body": orm.Attr("text"),
	})))
	c.MustRegister("model:user", orm.NewModelClass(orm.DefineSchema(orm.Fields{
		"name": orm.Attr("text"),
	})))
	return c
}

func build(t *testing.T, c *container.Container, typ string, data map[string]any) *orm.Model {
	t.Helper()
	cls, err := orm.ClassFor(c, typ)
	require.NoError(t, err)
	m, err := cls.Build(data, nil)
	require.NoError(t, err)
	return m
}

func save(t *testing.T, m *orm.Model) *orm.Model {
	t.Helper()
	saved, err := m.Save(context.Background(), nil)
	require.NoError(t, err)
	return saved
}

func ids(t *testing.T, models []*orm.Model) []string {
	t.Helper()
	out := []string{}
	for _, m := range models {
		id, err := m.ID()
		require.NoError(t, err)
		out = append(out, adapter.Key(id))
	}
	return out
}

func TestModel_AttributeRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newBlog(t)
	post := build(t, c, "post", nil)

	require.NoError(t, post.Set("title", "x"))
	save(t, post)

	id, err := post.ID()
	require.NoError(t, err)
	require.NotNil(t, id)

	a, err := post.Adapter()
	require.NoError(t, err)
	record, err := a.Find(ctx, "post", id, nil)
	require.NoError(t, err)
	require.NotNil(t, record)

	reloaded := post.Class().Wrap(record)
	title, err := reloaded.Get("title")
	require.NoError(t, err)
	assert.Equal(t, "x", title)
}

func TestModel_AttributeDefault(t *testing.T) {
	c := newBlog(t)
	post := build(t, c, "post", nil)

	status, err := post.Get("status")
	require.NoError(t, err)
	assert.Equal(t, "draft", status)

	require.NoError(t, post.Set("status", "published"))
	status, err = post.Get("status")
	require.NoError(t, err)
	assert.Equal(t, "published", status)

	require.NoError(t, post.DeleteAttribute("status"))
	status, err = post.Get("status")
	require.NoError(t, err)
	assert.Equal(t, "draft", status)
}

func TestModel_UnknownAttribute(t *testing.T) {
	c := newBlog(t)
	post := build(t, c, "post", nil)

	_, err := post.Get("missing")
	require.Error(t, err)
	assert.True(t, apperrors.IsAssertion(err))

	err = post.Set("comments", "nope")
	require.Error(t, err)
	assert.True(t, apperrors.IsAssertion(err))
}

func TestModel_TypeComesFromContainer(t *testing.T) {
	c := newBlog(t)
	post := build(t, c, "post", nil)
	assert.Equal(t, "post", post.Type())
}

func TestModel_SynthesizedAccessors(t *testing.T) {
	c := newBlog(t)
	post := build(t, c, "post", nil)

	assert.Equal(t, []string{
		"addComment", "getAuthor", "getComments", "removeComment", "setAuthor", "setComments",
	}, post.Methods())
	assert.Equal(t, []string{"status", "title"}, post.Attributes())
}

func TestModel_HasManyEmptyIsEmptySlice(t *testing.T) {
	ctx := context.Background()
	c := newBlog(t)
	post := save(t, build(t, c, "post", nil))

	comments, err := post.Call(ctx, "getComments")
	require.NoError(t, err)
	require.NotNil(t, comments)
	assert.Equal(t, []*orm.Model{}, comments)
}

func TestModel_HasManyAddRemove(t *testing.T) {
	ctx := context.Background()
	c := newBlog(t)
	post := save(t, build(t, c, "post", nil))
	first := save(t, build(t, c, "comment", map[string]any{"body": "first"}))
	second := save(t, build(t, c, "comment", map[string]any{"body": "second"}))

	_, err := post.Call(ctx, "addComment", first)
	require.NoError(t, err)
	require.NoError(t, post.AddRelated(ctx, "comment", second, nil))

	comments, err := post.GetMany(ctx, "comments", nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, ids(t, []*orm.Model{first, second}), ids(t, comments))
	assert.Equal(t, "comment", comments[0].Type())

	_, err = post.Call(ctx, "removeComment", first)
	require.NoError(t, err)

	comments, err = post.GetMany(ctx, "comments", nil)
	require.NoError(t, err)
	assert.Equal(t, ids(t, []*orm.Model{second}), ids(t, comments))
}

func TestModel_HasManyQueryOption(t *testing.T) {
	ctx := context.Background()
	c := newBlog(t)
	post := save(t, build(t, c, "post", nil))
	keep := save(t, build(t, c, "comment", map[string]any{"body": "keep"}))
	drop := save(t, build(t, c, "comment", map[string]any{"body": "drop"}))
	require.NoError(t, post.SetRelated(ctx, "comments", []*orm.Model{keep, drop}, nil))

	comments, err := post.GetMany(ctx, "comments", orm.Options{"query": map[string]any{"body": "keep"}})
	require.NoError(t, err)
	assert.Equal(t, ids(t, []*orm.Model{keep}), ids(t, comments))
}

func TestModel_AddUnsavedRelatedFails(t *testing.T) {
	ctx := context.Background()
	c := newBlog(t)
	post := save(t, build(t, c, "post", nil))
	unsaved := build(t, c, "comment", nil)

	err := post.AddRelated(ctx, "comments", unsaved, nil)
	require.Error(t, err)
}

func TestModel_HasOne(t *testing.T) {
	ctx := context.Background()
	c := newBlog(t)
	post := save(t, build(t, c, "post", nil))

	author, err := post.GetOne(ctx, "author", nil)
	require.NoError(t, err)
	assert.Nil(t, author)

	user := save(t, build(t, c, "user", map[string]any{"name": "ann"}))
	_, err = post.Call(ctx, "setAuthor", user)
	require.NoError(t, err)

	author, err = post.GetOne(ctx, "author", nil)
	require.NoError(t, err)
	require.NotNil(t, author)
	name, err := author.Get("name")
	require.NoError(t, err)
	assert.Equal(t, "ann", name)

	require.NoError(t, post.SetRelated(ctx, "author", nil, nil))
	author, err = post.GetOne(ctx, "author", nil)
	require.NoError(t, err)
	assert.Nil(t, author)
}

func TestModel_RelationshipModeMismatch(t *testing.T) {
	ctx := context.Background()
	c := newBlog(t)
	post := save(t, build(t, c, "post", nil))
	user := save(t, build(t, c, "user", nil))

	err := post.SetRelated(ctx, "author", []*orm.Model{user}, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsAssertion(err))

	err = post.SetRelated(ctx, "comments", user, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsAssertion(err))

	_, err = post.GetRelated(ctx, "title", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsAssertion(err))

	_, err = post.GetRelated(ctx, "missing", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsAssertion(err))

	_, err = post.Call(ctx, "getNothing")
	require.Error(t, err)
	assert.True(t, apperrors.IsAssertion(err))
}

// sliceForHasOne breaks the adapter contract by returning a list for
// every relationship.
type sliceForHasOne struct {
	*adapter.DocumentAdapter
}

func (s sliceForHasOne) GetRelated(context.Context, *orm.Model, string, *orm.Descriptor, orm.Options) (any, error) {
	return []any{adapter.Document{"id": 1}}, nil
}

// recordForHasMany returns a single record for every relationship.
type recordForHasMany struct {
	*adapter.DocumentAdapter
}

func (r recordForHasMany) GetRelated(context.Context, *orm.Model, string, *orm.Descriptor, orm.Options) (any, error) {
	return adapter.Document{"id": 1}, nil
}

func TestModel_AdapterContractViolations(t *testing.T) {
	ctx := context.Background()

	c := newBlog(t)
	c.MustRegister("orm-adapter:post", container.Factory(func(*container.Container) (any, error) {
		return sliceForHasOne{memory.New()}, nil
	}))
	post := build(t, c, "post", nil)
	_, err := post.GetRelated(ctx, "author", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsAssertion(err))

	c = newBlog(t)
	c.MustRegister("orm-adapter:post", container.Factory(func(*container.Container) (any, error) {
		return recordForHasMany{memory.New()}, nil
	}))
	post = build(t, c, "post", nil)
	_, err = post.GetRelated(ctx, "comments", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsAssertion(err))
}

func TestModel_PerTypeAdapterWins(t *testing.T) {
	c := newBlog(t)
	own := memory.New()
	c.MustRegister("orm-adapter:comment", container.Factory(func(*container.Container) (any, error) {
		return own, nil
	}))

	comment := build(t, c, "comment", nil)
	a, err := comment.Adapter()
	require.NoError(t, err)
	assert.Same(t, own, a)

	post := build(t, c, "post", nil)
	a, err = post.Adapter()
	require.NoError(t, err)
	assert.NotSame(t, own, a)
}

func TestModel_AdapterMustImplementContract(t *testing.T) {
	c := newBlog(t)
	c.MustRegister("orm-adapter:user", container.Factory(func(*container.Container) (any, error) {
		return "not an adapter", nil
	}))

	cls, err := orm.ClassFor(c, "user")
	require.NoError(t, err)
	_, err = cls.Build(nil, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsAssertion(err))
}

func TestModel_DeleteRemovesRecord(t *testing.T) {
	ctx := context.Background()
	c := newBlog(t)
	post := save(t, build(t, c, "post", map[string]any{"title": "gone"}))
	id, err := post.ID()
	require.NoError(t, err)

	require.NoError(t, post.Delete(ctx, nil))

	a, err := post.Adapter()
	require.NoError(t, err)
	record, err := a.Find(ctx, "post", id, nil)
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestModelClass_AbstractAndExtends(t *testing.T) {
	base := orm.NewModelClass(orm.DefineSchema(orm.Fields{
		"createdAt": orm.Attr("date"),
		"title":     orm.Attr("number"),
	}), orm.Abstract())
	article := orm.NewModelClass(orm.DefineSchema(orm.Fields{
		"title": orm.Attr("text"),
	}), orm.Extends(base))

	c := newBlog(t)
	c.MustRegister("model:base", base)
	c.MustRegister("model:article", article)

	baseCls, err := orm.ClassFor(c, "base")
	require.NoError(t, err)
	assert.Empty(t, baseCls.Methods())
	_, err = baseCls.Build(nil, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsAssertion(err))

	m := build(t, c, "article", nil)
	assert.Equal(t, []string{"createdAt", "title"}, m.Attributes())
	d, ok := m.Class().Schema().Descriptor("title")
	require.True(t, ok)
	assert.Equal(t, "text", d.LogicalType())
}

func TestModel_UnregisteredClassHasNoAdapter(t *testing.T) {
	cls := orm.NewModelClass(orm.DefineSchema(orm.Fields{"title": orm.Attr("text")}))
	_, err := cls.Build(nil, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsAssertion(err))
}

func TestModel_ClassForBindsUnderConcurrentUse(t *testing.T) {
	c := container.New()
	c.MustRegister("orm-adapter:application", container.Factory(func(*container.Container) (any, error) {
		return memory.New(), nil
	}))
	c.MustRegister("model:post", orm.NewModelClass(orm.DefineSchema(orm.Fields{
		"title": orm.Attr("text"),
	})))

	var wg sync.WaitGroup
	classes := make([]*orm.ModelClass, 16)
	errs := make([]error, len(classes))
	for i := range classes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cls, err := orm.ClassFor(c, "post")
			if err == nil {
				_, err = cls.Adapter()
			}
			classes[i], errs[i] = cls, err
		}(i)
	}
	wg.Wait()

	for i, cls := range classes {
		require.NoError(t, errs[i])
		assert.Same(t, classes[0], cls)
		assert.Equal(t, "post", cls.Type())
	}
}
