package addon

import (
	"github.com/leeforge/strata/json"
)

// ConfigProvider gives addons type-safe access to their scoped configuration.
type ConfigProvider interface {
	Get(key string) (any, bool)
	GetString(key string, defaultVal string) string
	GetInt(key string, defaultVal int) int
	GetBool(key string, defaultVal bool) bool
	Bind(target any) error
	IsEnabled() bool
}

// ConfigEntry is one addon's configuration section.
type ConfigEntry struct {
	name     string
	enabled  bool
	settings map[string]any
}

// NewConfigEntry creates an addon config entry.
func NewConfigEntry(name string, enabled bool, settings map[string]any) *ConfigEntry {
	if settings == nil {
		settings = make(map[string]any)
	}
	return &ConfigEntry{name: name, enabled: enabled, settings: settings}
}

func (c *ConfigEntry) Name() string { return c.name }

func (c *ConfigEntry) Get(key string) (any, bool) {
	v, ok := c.settings[key]
	return v, ok
}

func (c *ConfigEntry) GetString(key string, defaultVal string) string {
	v, ok := c.settings[key]
	if !ok {
		return defaultVal
	}
	s, ok := v.(string)
	if !ok {
		return defaultVal
	}
	return s
}

func (c *ConfigEntry) GetInt(key string, defaultVal int) int {
	v, ok := c.settings[key]
	if !ok {
		return defaultVal
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	case int64:
		return int(n)
	default:
		return defaultVal
	}
}

func (c *ConfigEntry) GetBool(key string, defaultVal bool) bool {
	v, ok := c.settings[key]
	if !ok {
		return defaultVal
	}
	b, ok := v.(bool)
	if !ok {
		return defaultVal
	}
	return b
}

// Bind decodes the settings into target; `default` struct tags fill
// missing values.
func (c *ConfigEntry) Bind(target any) error {
	data, err := json.Marshal(c.settings)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

func (c *ConfigEntry) IsEnabled() bool {
	return c.enabled
}

// NewMapConfigProvider creates a ConfigProvider from a settings map (always enabled).
func NewMapConfigProvider(settings map[string]any) *ConfigEntry {
	return NewConfigEntry("", true, settings)
}

// emptyConfig is a ConfigProvider that returns defaults for everything.
type emptyConfig struct{}

func (e *emptyConfig) Get(string) (any, bool)              { return nil, false }
func (e *emptyConfig) GetString(_ string, d string) string { return d }
func (e *emptyConfig) GetInt(_ string, d int) int          { return d }
func (e *emptyConfig) GetBool(_ string, d bool) bool       { return d }
func (e *emptyConfig) Bind(any) error                      { return nil }
func (e *emptyConfig) IsEnabled() bool                     { return false }

// EmptyConfig returns a ConfigProvider that always returns defaults.
func EmptyConfig() ConfigProvider { return &emptyConfig{} }
