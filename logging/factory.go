package logging

import (
	"sync"
)

// Factory creates and manages named loggers. All of them share one set of
// log files.
type Factory struct {
	config  Config
	root    Logger
	loggers sync.Map // map[string]Logger
}

// NewFactory creates a new Factory with the given config and hooks.
func NewFactory(config Config, hooks ...Hook) *Factory {
	config.applyDefaults()
	return &Factory{
		config: config,
		root:   NewLogger(config, hooks...),
	}
}

// GetLogger returns a named logger, creating it if necessary.
func (f *Factory) GetLogger(name string) Logger {
	if v, ok := f.loggers.Load(name); ok {
		return v.(Logger)
	}
	actual, _ := f.loggers.LoadOrStore(name, f.root.Named(name))
	return actual.(Logger)
}

// Root returns the unnamed logger.
func (f *Factory) Root() Logger {
	return f.root
}

// Config returns a copy of the factory's configuration.
func (f *Factory) Config() Config {
	return f.config
}

// Close releases the shared log files.
func (f *Factory) Close() error {
	return f.root.Close()
}
