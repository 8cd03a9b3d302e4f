package container

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	apperrors "github.com/leeforge/strata/errors"
	"github.com/leeforge/strata/metrics"
)

// Factory builds the value for an entry registered with instantiate: true.
// The container passed in resolves dependencies on behalf of the entry
// being built.
type Factory func(c *Container) (any, error)

// Teardowner is implemented by singletons that release resources when the
// container is torn down.
type Teardowner interface {
	Teardown() error
}

// state is shared by a container and the resolution views handed to
// factories.
type state struct {
	mu          sync.Mutex
	buildMu     sync.Mutex
	resolvers   []Resolver
	typeOptions map[string]map[OptionKey]bool
	specOptions map[Specifier]map[OptionKey]bool
	cache       map[Specifier]any
	cacheOrder  []Specifier
	injected    map[any]struct{}
	meta        map[any]*Meta
	logger      *zap.Logger
	metrics     *metrics.Collector
}

// Container owns entry lifecycles: option policy, the lazy instance cache,
// dependency injection and the metadata side-table. Containers are safe
// for concurrent use. Shared entries (singletons and plain values) are
// built and injected one at a time under a build lock, so a factory must
// not wait on another goroutine that looks up an unbuilt shared entry.
// Per-lookup instances are built concurrently.
type Container struct {
	s *state
	// path is the chain of entries being constructed, used to report
	// resolution cycles instead of recursing forever.
	path []Specifier
	// hold is set on views running under the build lock.
	hold *buildHold
}

// buildHold tracks the singletons one exclusive build has in progress.
type buildHold struct {
	mu        sync.Mutex
	pending   map[Specifier]*pendingEntry
	published []Specifier
}

// pendingEntry is a singleton under construction. Once ready, its value is
// visible to the build that owns it, for mutual injection, but not yet
// cached for anyone else.
type pendingEntry struct {
	value any
	ready bool
}

func (h *buildHold) get(spec Specifier) (any, bool, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.pending[spec]
	if !ok {
		return nil, false, false
	}
	return p.value, p.ready, true
}

func (h *buildHold) start(spec Specifier) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pending[spec] = &pendingEntry{}
}

func (h *buildHold) ready(spec Specifier, value any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pending[spec] = &pendingEntry{value: value, ready: true}
}

func (h *buildHold) finish(spec Specifier) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.pending, spec)
}

func (h *buildHold) publish(spec Specifier) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.published = append(h.published, spec)
}

// New creates a container. Without WithResolvers it gets a single empty
// SourceResolver named "application".
func New(opts ...Option) *Container {
	s := &state{
		typeOptions: DefaultTypeOptions(),
		specOptions: make(map[Specifier]map[OptionKey]bool),
		cache:       make(map[Specifier]any),
		injected:    make(map[any]struct{}),
		meta:        make(map[any]*Meta),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if len(s.resolvers) == 0 {
		s.resolvers = []Resolver{NewResolver("application")}
	}
	return &Container{s: s}
}

// Resolvers returns the resolver chain, highest priority first.
func (c *Container) Resolvers() []Resolver {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	return append([]Resolver{}, c.s.resolvers...)
}

// AddResolver appends r at the lowest priority.
func (c *Container) AddResolver(r Resolver) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	c.s.resolvers = append(c.s.resolvers, r)
}

// Register stores value under spec on the primary resolver, applying any
// entry options at specifier level. Nothing is instantiated; a previously
// cached instance for spec is dropped.
func (c *Container) Register(spec string, value any, opts ...EntryOption) error {
	parsed, err := Parse(spec)
	if err != nil {
		return err
	}
	c.RegisterSpecifier(parsed, value, opts...)
	return nil
}

// MustRegister is like Register but panics on a malformed specifier.
func (c *Container) MustRegister(spec string, value any, opts ...EntryOption) {
	if err := c.Register(spec, value, opts...); err != nil {
		panic(err)
	}
}

// RegisterSpecifier is Register for an already parsed Specifier.
func (c *Container) RegisterSpecifier(spec Specifier, value any, opts ...EntryOption) {
	s := c.s
	s.mu.Lock()
	for _, opt := range opts {
		setOption(s.specOptions, spec, opt.key, opt.value)
	}
	s.evictLocked(spec)
	primary := s.resolvers[0]
	s.mu.Unlock()

	primary.Register(spec, value)
	s.logger.Debug("entry registered", zap.String("specifier", spec.String()))
}

// Has reports whether any resolver can locate spec.
func (c *Container) Has(spec string) bool {
	parsed, err := Parse(spec)
	if err != nil {
		return false
	}
	_, ok := c.retrieve(parsed)
	return ok
}

// Lookup resolves spec and applies its singleton/instantiate policy. It
// fails with a lookup error when nothing resolves spec, unless Loose is
// given, in which case it returns (nil, nil).
func (c *Container) Lookup(spec string, opts ...LookupOption) (any, error) {
	parsed, err := Parse(spec)
	if err != nil {
		return nil, err
	}
	return c.LookupSpecifier(parsed, opts...)
}

// MustLookup is like Lookup but panics on error.
func (c *Container) MustLookup(spec string) any {
	v, err := c.Lookup(spec)
	if err != nil {
		panic(err)
	}
	return v
}

// LookupSpecifier is Lookup for an already parsed Specifier.
func (c *Container) LookupSpecifier(spec Specifier, opts ...LookupOption) (any, error) {
	var cfg lookupConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return c.lookup(spec, cfg)
}

func (c *Container) lookup(spec Specifier, cfg lookupConfig) (any, error) {
	s := c.s
	s.mu.Lock()
	if v, ok := s.cache[spec]; ok {
		s.mu.Unlock()
		s.metrics.RecordLookup(spec.Type, "cached")
		return v, nil
	}
	singleton := s.optionLocked(spec, OptionSingleton)
	instantiate := s.optionLocked(spec, OptionInstantiate)
	s.mu.Unlock()

	if c.hold != nil {
		if value, ready, ok := c.hold.get(spec); ok {
			if ready {
				// Mutual injection: hand out the instance being injected.
				return value, nil
			}
			return nil, c.cycleError(spec)
		}
	}
	if instantiate && c.constructing(spec) {
		return nil, c.cycleError(spec)
	}

	switch {
	case c.hold != nil || (!singleton && instantiate):
		return c.build(spec, cfg, singleton, instantiate)
	case !singleton:
		// Plain shared values are injected once; later lookups skip the
		// build lock.
		if value, ok := c.retrieve(spec); ok && c.injected(value) {
			if hasIdentity(value) {
				c.MetaFor(value).claim(spec)
			}
			s.metrics.RecordLookup(spec.Type, "resolved")
			return value, nil
		}
	}
	return c.lookupExclusive(spec, cfg)
}

// lookupExclusive builds spec under the container's build lock. Singletons
// built on the way are published to the cache only once injected; when the
// outermost build fails, everything it published is dropped again.
func (c *Container) lookupExclusive(spec Specifier, cfg lookupConfig) (any, error) {
	s := c.s
	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	hold := &buildHold{pending: make(map[Specifier]*pendingEntry)}
	view := &Container{s: s, path: c.path, hold: hold}
	value, err := view.lookup(spec, cfg)
	if err != nil {
		s.mu.Lock()
		for _, p := range hold.published {
			if v, ok := s.cache[p]; ok && hasIdentity(v) {
				delete(s.injected, v)
			}
			s.evictLocked(p)
		}
		s.mu.Unlock()
		return nil, err
	}
	return value, nil
}

func (c *Container) build(spec Specifier, cfg lookupConfig, singleton, instantiate bool) (any, error) {
	s := c.s
	value, ok := c.retrieve(spec)
	if !ok {
		s.metrics.RecordLookup(spec.Type, "missing")
		if cfg.loose {
			return nil, nil
		}
		return nil, apperrors.NewLookup(spec.String())
	}

	if singleton {
		c.hold.start(spec)
		defer c.hold.finish(spec)
	}

	view := c.enter(spec)
	outcome := "resolved"
	if instantiate {
		factory, ok := asFactory(value)
		if !ok {
			return nil, apperrors.NewAssertion(
				"%s is configured with instantiate: true but its value is %T, not a Factory", spec, value)
		}
		instance, err := factory(view)
		if err != nil {
			return nil, fmt.Errorf("construct %s: %w", spec, err)
		}
		value = instance
		outcome = "constructed"
		s.logger.Debug("entry constructed",
			zap.String("specifier", spec.String()), zap.Bool("singleton", singleton))
	}

	// A fresh per-lookup instance is injected exactly once here and keeps
	// no container state.
	if !singleton && instantiate {
		if err := view.inject(value, false); err != nil {
			return nil, err
		}
		s.metrics.RecordLookup(spec.Type, outcome)
		return value, nil
	}

	if hasIdentity(value) {
		c.MetaFor(value).claim(spec)
	}
	if singleton {
		c.hold.ready(spec, value)
	}
	if err := view.inject(value, true); err != nil {
		return nil, err
	}
	if singleton {
		s.mu.Lock()
		s.cache[spec] = value
		s.cacheOrder = append(s.cacheOrder, spec)
		s.mu.Unlock()
		c.hold.publish(spec)
	}

	s.metrics.RecordLookup(spec.Type, outcome)
	return value, nil
}

// LookupAll resolves every available entry of typ. The iteration order of
// AvailableForType(typ) is the discovery order.
func (c *Container) LookupAll(typ string) (map[string]any, error) {
	names := c.AvailableForType(typ)
	out := make(map[string]any, len(names))
	for _, name := range names {
		v, err := c.LookupSpecifier(NewSpecifier(typ, name))
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

// AvailableForType lists entry names of typ across all resolvers, without
// duplicates, in first-seen order.
func (c *Container) AvailableForType(typ string) []string {
	var lists [][]string
	for _, r := range c.Resolvers() {
		lists = append(lists, r.AvailableForType(typ))
	}
	return uniqueNames(lists...)
}

// SetOption sets key for target, which is either a type ("model") or a
// specifier ("model:post"). Specifier-level options win over type-level.
func (c *Container) SetOption(target string, key OptionKey, value bool) error {
	s := c.s
	if strings.Contains(target, ":") {
		spec, err := Parse(target)
		if err != nil {
			return err
		}
		s.mu.Lock()
		setOption(s.specOptions, spec, key, value)
		s.mu.Unlock()
		return nil
	}
	if target == "" {
		return apperrors.NewAssertion("option target must be a type or specifier")
	}
	s.mu.Lock()
	setOption(s.typeOptions, target, key, value)
	s.mu.Unlock()
	return nil
}

// GetOption returns the effective value of key for target.
func (c *Container) GetOption(target string, key OptionKey) bool {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.Contains(target, ":") {
		if spec, err := Parse(target); err == nil {
			return s.optionLocked(spec, key)
		}
	}
	if v, ok := s.typeOptions[target][key]; ok {
		return v
	}
	return defaultOptions[key]
}

// ClearCache drops the cached instance for spec, if any. Its teardown hook
// is not called.
func (c *Container) ClearCache(spec string) error {
	parsed, err := Parse(spec)
	if err != nil {
		return err
	}
	c.s.mu.Lock()
	c.s.evictLocked(parsed)
	c.s.mu.Unlock()
	return nil
}

// Teardown calls Teardown on every cached singleton that implements
// Teardowner, newest first and each object once, then clears all caches.
// Entries that were never looked up are never torn down.
func (c *Container) Teardown() error {
	s := c.s
	s.mu.Lock()
	cache, order := s.cache, s.cacheOrder
	s.cache = make(map[Specifier]any)
	s.cacheOrder = nil
	s.injected = make(map[any]struct{})
	s.mu.Unlock()

	var err error
	seen := make(map[any]struct{})
	for i := len(order) - 1; i >= 0; i-- {
		spec := order[i]
		v := cache[spec]
		if hasIdentity(v) {
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
		}
		if other, ok := v.(*Container); ok && other.s == s {
			continue
		}
		td, ok := v.(Teardowner)
		if !ok {
			continue
		}
		if tdErr := td.Teardown(); tdErr != nil {
			err = multierr.Append(err, fmt.Errorf("teardown %s: %w", spec, tdErr))
		}
		s.logger.Debug("entry torn down", zap.String("specifier", spec.String()))
	}
	return err
}

func (c *Container) retrieve(spec Specifier) (any, bool) {
	for _, r := range c.Resolvers() {
		if v, ok := r.Retrieve(spec); ok {
			return v, true
		}
	}
	return nil, false
}

func (c *Container) enter(spec Specifier) *Container {
	path := make([]Specifier, len(c.path), len(c.path)+1)
	copy(path, c.path)
	return &Container{s: c.s, path: append(path, spec), hold: c.hold}
}

func (c *Container) cycleError(spec Specifier) error {
	return apperrors.NewLookup(spec.String()).
		WithMessage("resolution cycle: " + c.cyclePath(spec))
}

func (c *Container) constructing(spec Specifier) bool {
	for _, p := range c.path {
		if p == spec {
			return true
		}
	}
	return false
}

func (c *Container) cyclePath(spec Specifier) string {
	parts := make([]string, 0, len(c.path)+1)
	for _, p := range c.path {
		parts = append(parts, p.String())
	}
	parts = append(parts, spec.String())
	return strings.Join(parts, " -> ")
}

func (s *state) optionLocked(spec Specifier, key OptionKey) bool {
	if v, ok := s.specOptions[spec][key]; ok {
		return v
	}
	if v, ok := s.typeOptions[spec.Type][key]; ok {
		return v
	}
	return defaultOptions[key]
}

func (s *state) evictLocked(spec Specifier) {
	if _, ok := s.cache[spec]; !ok {
		return
	}
	delete(s.cache, spec)
	for i, p := range s.cacheOrder {
		if p == spec {
			s.cacheOrder = append(s.cacheOrder[:i], s.cacheOrder[i+1:]...)
			break
		}
	}
}

func setOption[K comparable](table map[K]map[OptionKey]bool, target K, key OptionKey, value bool) {
	opts, ok := table[target]
	if !ok {
		opts = make(map[OptionKey]bool)
		table[target] = opts
	}
	opts[key] = value
}

func asFactory(v any) (Factory, bool) {
	switch f := v.(type) {
	case Factory:
		return f, f != nil
	case func(*Container) (any, error):
		return f, f != nil
	default:
		return nil, false
	}
}
