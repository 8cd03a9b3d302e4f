package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leeforge/strata/container"
	apperrors "github.com/leeforge/strata/errors"
	"github.com/leeforge/strata/json"
	"github.com/leeforge/strata/orm"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// newProject lays out a config dir and an application root and returns
// the config dir. extra is appended to config.yaml.
func newProject(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "app")

	writeFile(t, filepath.Join(root, "fixtures", "users.yaml"), "admin:\n  name: Ada\n")
	writeFile(t, filepath.Join(root, "fixtures", "blog", "posts.json"), `{"count": 2}`)
	writeFile(t, filepath.Join(root, "configs", "site.toml"), "title = \"Strata\"\n")

	writeFile(t, filepath.Join(dir, "config", "config.yaml"),
		"root: "+filepath.ToSlash(root)+"\nlogging:\n  quiet: true\n"+extra)
	return filepath.Join(dir, "config")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestList_Types(t *testing.T) {
	cfg := newProject(t, "")

	out, err := run(t, "--config", cfg, "list")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.NotEmpty(t, lines)
	assert.Equal(t, []string{"TYPE", "ENTRIES"}, strings.Fields(lines[0]))

	counts := map[string]string{}
	for _, line := range lines[1:] {
		fields := strings.Fields(line)
		require.Len(t, fields, 2, line)
		counts[fields[0]] = fields[1]
	}
	assert.Equal(t, map[string]string{
		"config":      "1",
		"container":   "1",
		"fixture":     "2",
		"orm-adapter": "1",
		"service":     "2",
	}, counts)
}

func TestList_NamesAsJSON(t *testing.T) {
	cfg := newProject(t, "")

	out, err := run(t, "--config", cfg, "list", "fixture", "--json")
	require.NoError(t, err)

	var names []string
	require.NoError(t, json.Unmarshal([]byte(out), &names))
	assert.Equal(t, []string{"blog/posts", "users"}, names)
}

func TestList_NamesTable(t *testing.T) {
	cfg := newProject(t, "")

	out, err := run(t, "--config", cfg, "list", "service")
	require.NoError(t, err)
	assert.Contains(t, out, "service:db")
	assert.Contains(t, out, "service:metrics")
}

func TestList_RootFlagOverridesConfig(t *testing.T) {
	cfg := newProject(t, "")
	other := t.TempDir()
	writeFile(t, filepath.Join(other, "fixtures", "only.json"), `{}`)

	out, err := run(t, "--config", cfg, "--root", other, "list", "fixture", "--json")
	require.NoError(t, err)

	var names []string
	require.NoError(t, json.Unmarshal([]byte(out), &names))
	assert.Equal(t, []string{"only"}, names)
}

func TestShow_DataEntry(t *testing.T) {
	cfg := newProject(t, "")

	out, err := run(t, "--config", cfg, "show", "fixture:users")
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "Ada", doc["admin"].(map[string]any)["name"])
}

func TestShow_Service(t *testing.T) {
	cfg := newProject(t, "")

	out, err := run(t, "--config", cfg, "show", "service:db")
	require.NoError(t, err)

	var desc opaqueDescription
	require.NoError(t, json.Unmarshal([]byte(out), &desc))
	assert.Equal(t, "service:db", desc.Specifier)
	assert.Equal(t, "*database.Service", desc.GoType)
}

func TestShow_Errors(t *testing.T) {
	cfg := newProject(t, "")

	_, err := run(t, "--config", cfg, "show", "fixture:missing")
	require.Error(t, err)
	assert.True(t, apperrors.IsLookup(err))

	_, err = run(t, "--config", cfg, "show", "nocolon")
	require.Error(t, err)
	assert.True(t, apperrors.IsAssertion(err))

	_, err = run(t, "--config", cfg, "show")
	assert.Error(t, err)
}

func TestBoot_InvalidStoreOverride(t *testing.T) {
	cfg := newProject(t, "")

	_, err := run(t, "--config", cfg, "--store", "sql", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sql.dsn")

	_, err = run(t, "--config", cfg, "--store", "cassandra", "list")
	assert.Error(t, err)
}

func TestBoot_RedisStore(t *testing.T) {
	server := miniredis.RunT(t)
	host, port, err := net.SplitHostPort(server.Addr())
	require.NoError(t, err)

	cfg := newProject(t, "store:\n  driver: redis\nredis:\n  host: "+host+"\n  port: \""+port+"\"\n  prefix: clitest\n")

	out, err := run(t, "--config", cfg, "show", "orm-adapter:application")
	require.NoError(t, err)
	assert.Contains(t, out, "*adapter.DocumentAdapter")
}

func TestBoot_RedisUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	require.NoError(t, ln.Close())

	cfg := newProject(t, "store:\n  driver: redis\nredis:\n  host: "+host+"\n  port: \""+port+"\"\n  dial_timeout: 200ms\n")

	_, err = run(t, "--config", cfg, "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect redis")
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "strata "), out)
}

func TestDescribe_ModelClass(t *testing.T) {
	post := orm.NewModelClass(orm.DefineSchema(orm.Fields{
		"title":    orm.Attr("string"),
		"author":   orm.HasOne("user"),
		"comments": orm.HasMany("comment"),
	}))
	spec := container.MustParse("model:post")

	desc, ok := describe(spec, post).(classDescription)
	require.True(t, ok)
	assert.Equal(t, "model:post", desc.Specifier)
	assert.False(t, desc.Abstract)
	assert.Equal(t, []fieldDescription{
		{Name: "author", Kind: "hasOne", Type: "user"},
		{Name: "comments", Kind: "hasMany", Type: "comment"},
		{Name: "title", Kind: "attribute", Type: "string"},
	}, desc.Fields)
	assert.Contains(t, desc.Methods, "getComments")
	assert.Contains(t, desc.Methods, "addComment")

	base := orm.NewModelClass(orm.DefineSchema(orm.Fields{"id": orm.Attr("string")}), orm.Abstract())
	abstract := describe(container.MustParse("model:base"), base).(classDescription)
	assert.True(t, abstract.Abstract)
	assert.Empty(t, abstract.Methods)
}

func TestDescribe_PlainAndOpaque(t *testing.T) {
	spec := container.MustParse("config:site")

	data := map[string]any{"title": "Strata"}
	assert.Equal(t, data, describe(spec, data))
	assert.Equal(t, "plain", describe(spec, "plain"))
	assert.Nil(t, describe(spec, nil))

	type service struct{}
	assert.Equal(t, opaqueDescription{Specifier: "config:site", GoType: "*main.service"}, describe(spec, &service{}))
}
