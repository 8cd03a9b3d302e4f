package container

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-openapi/inflect"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/leeforge/strata/utils"
)

// dataExtensions are tried in order; the first existing file wins.
var dataExtensions = []string{"json", "yaml", "yml", "toml"}

// PathStrategy maps an entry type to the directory, relative to the source
// root, that holds its entries.
type PathStrategy func(typ string) string

// PluralDirs places each type under its pluralised name ("config" ->
// "configs", "fixture" -> "fixtures").
func PluralDirs(typ string) string {
	return inflect.Pluralize(typ)
}

// DirSource discovers data entries on disk. "fixture:blog/posts" resolves to
// <root>/fixtures/blog/posts.{json,yaml,yml,toml}, decoded with viper into a
// map[string]any. Keys are lower-cased, as viper does for all settings.
type DirSource struct {
	name     string
	root     string
	strategy PathStrategy
	typeDirs map[string]string
	logger   *zap.Logger
}

// DirOption configures a DirSource.
type DirOption func(*DirSource)

// WithTypeDir pins typ to dir, bypassing the path strategy.
func WithTypeDir(typ, dir string) DirOption {
	return func(d *DirSource) { d.typeDirs[typ] = dir }
}

// WithPathStrategy replaces PluralDirs.
func WithPathStrategy(strategy PathStrategy) DirOption {
	return func(d *DirSource) { d.strategy = strategy }
}

// WithSourceName overrides the default name (the root directory).
func WithSourceName(name string) DirOption {
	return func(d *DirSource) { d.name = name }
}

// WithDirLogger reports unreadable entry files.
func WithDirLogger(logger *zap.Logger) DirOption {
	return func(d *DirSource) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDirSource creates a DirSource rooted at root.
func NewDirSource(root string, opts ...DirOption) *DirSource {
	d := &DirSource{
		name:     root,
		root:     root,
		strategy: PluralDirs,
		typeDirs: make(map[string]string),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *DirSource) Name() string { return d.name }

// Root returns the directory the source searches.
func (d *DirSource) Root() string { return d.root }

func (d *DirSource) dirFor(typ string) string {
	if dir, ok := d.typeDirs[typ]; ok {
		return dir
	}
	return d.strategy(typ)
}

func (d *DirSource) TryResolve(spec Specifier) (any, bool) {
	rel := filepath.Clean(filepath.FromSlash(spec.Name))
	if rel == "." || filepath.IsAbs(rel) || strings.HasPrefix(rel, "..") {
		return nil, false
	}

	base := filepath.Join(d.root, d.dirFor(spec.Type), rel)
	for _, ext := range dataExtensions {
		path := base + "." + ext
		isDir, exists, _ := utils.Exists(path)
		if !exists || isDir {
			continue
		}
		value, err := readDataFile(path)
		if err != nil {
			d.logger.Warn("unreadable entry file",
				zap.String("source", d.name),
				zap.String("specifier", spec.String()),
				zap.String("path", path),
				zap.Error(err))
			return nil, false
		}
		return value, true
	}
	return nil, false
}

func (d *DirSource) Names(typ string) []string {
	dir := filepath.Join(d.root, d.dirFor(typ))
	if isDir, exists, _ := utils.Exists(dir); !exists || !isDir {
		return nil
	}

	var names []string
	seen := make(map[string]struct{})
	_ = filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return nil
		}
		ext := strings.TrimPrefix(filepath.Ext(path), ".")
		if !isDataExtension(ext) {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return nil
		}
		name := filepath.ToSlash(strings.TrimSuffix(rel, filepath.Ext(rel)))
		if _, dup := seen[name]; dup {
			return nil
		}
		seen[name] = struct{}{}
		names = append(names, name)
		return nil
	})
	return names
}

// Types lists the entry types that have a directory under the root, in
// directory order. A directory maps back to a type through the pinned type
// dirs or, failing that, its singular form under the path strategy.
func (d *DirSource) Types() []string {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil
	}

	pinned := make(map[string]string, len(d.typeDirs))
	for typ, dir := range d.typeDirs {
		pinned[filepath.Clean(dir)] = typ
	}

	var types []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := entry.Name()
		if typ, ok := pinned[dir]; ok {
			types = append(types, typ)
			continue
		}
		if singular := inflect.Singularize(dir); d.strategy(singular) == dir {
			types = append(types, singular)
		} else if d.strategy(dir) == dir {
			types = append(types, dir)
		}
	}
	return types
}

func isDataExtension(ext string) bool {
	for _, e := range dataExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

func readDataFile(path string) (map[string]any, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	return v.AllSettings(), nil
}

// Ensure DirSource implements Source.
var _ Source = (*DirSource)(nil)
