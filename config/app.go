package config

import (
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"

	"github.com/leeforge/strata/addon"
	"github.com/leeforge/strata/container"
	"github.com/leeforge/strata/logging"
	"github.com/leeforge/strata/redis_client"
)

// Store drivers for the application adapter.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreSQL    = "sql"
)

// AppConfig is the configuration of a strata application.
type AppConfig struct {
	Name string `mapstructure:"name" json:"name" default:"strata" validate:"required"`
	// Root is the directory scanned for file-based entries.
	Root string `mapstructure:"root" json:"root" default:"app" validate:"required"`

	Logging   logging.Config          `mapstructure:"logging" json:"logging"`
	Container ContainerConfig         `mapstructure:"container" json:"container"`
	Store     StoreConfig             `mapstructure:"store" json:"store"`
	Redis     redis_client.Config     `mapstructure:"redis" json:"redis"`
	SQL       SQLConfig               `mapstructure:"sql" json:"sql"`
	Addons    map[string]AddonSection `mapstructure:"addons" json:"addons"`
}

// ContainerConfig tunes type-level lifecycle options, e.g.
//
//	container:
//	  types:
//	    service: {singleton: false}
type ContainerConfig struct {
	DisableTypeDefaults bool                       `mapstructure:"disable-type-defaults" json:"disableTypeDefaults"`
	Types               map[string]map[string]bool `mapstructure:"types" json:"types"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver" json:"driver" default:"memory" validate:"oneof=memory redis sql"`
	// IDMode is "sequence" or "uuid"; only the redis store honours it.
	IDMode string `mapstructure:"id-mode" json:"idMode" default:"sequence" validate:"oneof=sequence uuid"`
}

type SQLConfig struct {
	Driver string `mapstructure:"driver" json:"driver" default:"sqlite3" validate:"oneof=postgres pgx sqlite3"`
	DSN    string `mapstructure:"dsn" json:"dsn"`
	Table  string `mapstructure:"table" json:"table" default:"records" validate:"required"`
}

// AddonSection is one addon's configuration. Addons without a section are
// enabled.
type AddonSection struct {
	Enabled  *bool          `mapstructure:"enabled" json:"enabled"`
	Settings map[string]any `mapstructure:"settings" json:"settings"`
}

var validate = validator.New()

// Validate checks field constraints and cross-field rules.
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Store.Driver == StoreSQL && c.SQL.DSN == "" {
		return fmt.Errorf("invalid config: sql.dsn is required for the sql store")
	}
	for typ, opts := range c.Container.Types {
		for key := range opts {
			if key != string(container.OptionSingleton) && key != string(container.OptionInstantiate) {
				return fmt.Errorf("invalid config: container.types.%s: unknown option %q", typ, key)
			}
		}
	}
	return nil
}

// ContainerOptions returns the construction options implied by the config.
func (c *AppConfig) ContainerOptions() []container.Option {
	if c.Container.DisableTypeDefaults {
		return []container.Option{container.WithoutTypeDefaults()}
	}
	return nil
}

// ApplyContainer sets the configured type-level options on ctr.
func (c *AppConfig) ApplyContainer(ctr *container.Container) error {
	types := make([]string, 0, len(c.Container.Types))
	for typ := range c.Container.Types {
		types = append(types, typ)
	}
	sort.Strings(types)

	for _, typ := range types {
		for key, value := range c.Container.Types[typ] {
			if err := ctr.SetOption(typ, container.OptionKey(key), value); err != nil {
				return fmt.Errorf("container.types.%s: %w", typ, err)
			}
		}
	}
	return nil
}

// AddonConfigs converts the addon sections for the runtime.
func (c *AppConfig) AddonConfigs() map[string]addon.ConfigProvider {
	out := make(map[string]addon.ConfigProvider, len(c.Addons))
	for name, section := range c.Addons {
		enabled := section.Enabled == nil || *section.Enabled
		out[name] = addon.NewConfigEntry(name, enabled, section.Settings)
	}
	return out
}

// LoadAppConfig reads, defaults and validates the application config.
func LoadAppConfig(opts ...ConfigOptions) (*AppConfig, error) {
	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}
	var app AppConfig
	if err := cfg.BindWithDefaults(&app); err != nil {
		return nil, err
	}
	if err := app.Validate(); err != nil {
		return nil, err
	}
	return &app, nil
}
