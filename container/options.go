package container

import (
	"go.uber.org/zap"

	"github.com/leeforge/strata/metrics"
)

// OptionKey names a per-entry lifecycle policy.
type OptionKey string

const (
	// OptionSingleton caches one value per Specifier until teardown.
	OptionSingleton OptionKey = "singleton"
	// OptionInstantiate treats the registered value as a Factory and
	// returns what it builds.
	OptionInstantiate OptionKey = "instantiate"
)

// defaultOptions apply to types nothing more specific was set for.
var defaultOptions = map[OptionKey]bool{
	OptionSingleton:   true,
	OptionInstantiate: false,
}

// DefaultTypeOptions are seeded into every container unless
// WithoutTypeDefaults is given.
func DefaultTypeOptions() map[string]map[OptionKey]bool {
	return map[string]map[OptionKey]bool{
		"action":      {OptionSingleton: false, OptionInstantiate: true},
		"config":      {OptionSingleton: true, OptionInstantiate: false},
		"container":   {OptionSingleton: true, OptionInstantiate: false},
		"initializer": {OptionSingleton: false, OptionInstantiate: false},
		"model":       {OptionSingleton: true, OptionInstantiate: false},
		"orm-adapter": {OptionSingleton: true, OptionInstantiate: true},
		"parser":      {OptionSingleton: true, OptionInstantiate: true},
		"serializer":  {OptionSingleton: true, OptionInstantiate: true},
		"service":     {OptionSingleton: true, OptionInstantiate: true},
		"view":        {OptionSingleton: true, OptionInstantiate: true},
	}
}

// EntryOption sets a specifier-level option at registration time.
type EntryOption struct {
	key   OptionKey
	value bool
}

// Singleton overrides the singleton policy for one entry.
func Singleton(v bool) EntryOption { return EntryOption{key: OptionSingleton, value: v} }

// Instantiate overrides the instantiate policy for one entry.
func Instantiate(v bool) EntryOption { return EntryOption{key: OptionInstantiate, value: v} }

type lookupConfig struct {
	loose bool
}

// LookupOption tunes a single Lookup call.
type LookupOption func(*lookupConfig)

// Loose makes Lookup return (nil, nil) instead of a lookup error when
// nothing resolves the specifier.
func Loose() LookupOption {
	return func(c *lookupConfig) { c.loose = true }
}

// Option configures a Container at construction.
type Option func(*state)

// WithResolvers sets the resolver chain. The first resolver receives
// Register calls.
func WithResolvers(resolvers ...Resolver) Option {
	return func(s *state) {
		s.resolvers = append([]Resolver{}, resolvers...)
	}
}

// WithLogger sets the diagnostics logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *state) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records lookup outcomes into collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(s *state) {
		s.metrics = collector
	}
}

// WithoutTypeDefaults starts from an empty type-level option table.
func WithoutTypeDefaults() Option {
	return func(s *state) {
		s.typeOptions = make(map[string]map[OptionKey]bool)
	}
}
