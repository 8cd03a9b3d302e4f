package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/creasty/defaults"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/leeforge/strata/env_mode"
	"github.com/leeforge/strata/utils"
)

func DefaultConfigOptions() ConfigOptions {
	basePath := os.Getenv("CONFIG_PATH")
	if basePath == "" {
		basePath = "config"
	}

	return ConfigOptions{
		BasePath:  basePath,
		FileName:  "config",
		FileType:  "yaml",
		EnvPrefix: "STRATA",
	}
}

func DevConfigOptions() ConfigOptions {
	opts := DefaultConfigOptions()
	opts.WatchAble = true
	return opts
}

// NewConfig loads the layered configuration files for the current env
// mode. Missing files are not an error; an application may run on
// defaults and environment variables alone.
func NewConfig(optsArr ...ConfigOptions) (*Config, error) {
	opts := DefaultConfigOptions()
	if len(optsArr) > 0 {
		opts = optsArr[0]
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	instance, err := CreateConfig(opts)
	if err != nil {
		return nil, err
	}

	return &Config{
		instance: instance,
		opts:     opts,
	}, nil
}

// Bind decodes the configuration into instance. With WatchAble the
// instance is re-decoded whenever a loaded file changes.
func (c *Config) Bind(instance any) error {
	if c == nil || c.instance == nil {
		return fmt.Errorf("config instance is nil")
	}
	if instance == nil {
		return fmt.Errorf("target instance is nil")
	}

	c.watchMutex.Lock()
	defer c.watchMutex.Unlock()

	if err := c.instance.Unmarshal(instance); err != nil {
		return fmt.Errorf("unmarshal config (path: %s, file: %s.%s): %w",
			c.opts.BasePath, c.opts.FileName, c.opts.FileType, err)
	}

	if c.opts.WatchAble && c.instance.ConfigFileUsed() != "" {
		c.watchOnce.Do(func() {
			c.instance.OnConfigChange(func(e fsnotify.Event) {
				c.watchMutex.Lock()
				defer c.watchMutex.Unlock()

				// viper re-read only the base file
				if paths := getConfigFilePaths(c.opts); len(paths) > 1 {
					if err := mergeLayers(c.instance, paths[1:]); err != nil {
						c.opts.Logger.Error("config reload failed", zap.String("file", e.Name), zap.Error(err))
						return
					}
				}
				applyEnvOverrides(c.instance, c.opts.EnvPrefix)
				if err := c.instance.Unmarshal(instance); err != nil {
					c.opts.Logger.Error("config reload failed",
						zap.String("file", e.Name), zap.Error(err))
					return
				}
				c.opts.Logger.Info("config reloaded", zap.String("file", e.Name))

				if c.opts.OnChange != nil {
					c.opts.OnChange(e)
				}
			})
			c.instance.WatchConfig()
		})
	}

	return nil
}

// BindWithDefaults applies `default` tags around Bind so that configured
// values win and unset ones fall back.
func (c *Config) BindWithDefaults(instance any) error {
	if err := defaults.Set(instance); err != nil {
		return fmt.Errorf("set defaults: %w", err)
	}
	if err := c.Bind(instance); err != nil {
		return err
	}
	if err := defaults.Set(instance); err != nil {
		return fmt.Errorf("set defaults after unmarshal: %w", err)
	}
	return nil
}

func (c *Config) Get(key string) any {
	c.watchMutex.RLock()
	defer c.watchMutex.RUnlock()

	return c.instance.Get(key)
}

func (c *Config) Set(key string, value any) {
	c.watchMutex.Lock()
	defer c.watchMutex.Unlock()

	c.instance.Set(key, value)
}

// Files lists the configuration files that were merged, in load order.
func (c *Config) Files() []string {
	return getConfigFilePaths(c.opts)
}

// CreateConfig merges config, config.local, config.<env> and
// config.<env>.local from BasePath, later files winning, then applies
// environment overrides.
func CreateConfig(opts ConfigOptions) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType(opts.FileType)

	paths := getConfigFilePaths(opts)
	if len(paths) > 0 {
		// The base file is the one watched for changes.
		v.SetConfigFile(paths[0])
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", paths[0], err)
		}
		if err := mergeLayers(v, paths[1:]); err != nil {
			return nil, err
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	if opts.EnvPrefix != "" {
		v.SetEnvPrefix(opts.EnvPrefix)
	}
	v.AutomaticEnv()

	applyEnvOverrides(v, opts.EnvPrefix)

	return v, nil
}

func mergeLayers(v *viper.Viper, paths []string) error {
	for _, configPath := range paths {
		layer := viper.New()
		layer.SetConfigFile(configPath)
		if err := layer.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file %s: %w", configPath, err)
		}
		if err := v.MergeConfigMap(layer.AllSettings()); err != nil {
			return fmt.Errorf("merge config file %s: %w", configPath, err)
		}
	}
	return nil
}

// applyEnvOverrides copies matching environment variables over file
// values so they also reach Unmarshal: database.host -> PREFIX_DATABASE_HOST.
func applyEnvOverrides(v *viper.Viper, envPrefix string) {
	replacer := strings.NewReplacer(".", "_", "-", "_")

	for _, key := range v.AllKeys() {
		envKey := strings.ToUpper(replacer.Replace(key))
		if envPrefix != "" {
			envKey = envPrefix + "_" + envKey
		}
		if envValue, ok := os.LookupEnv(envKey); ok && envValue != "" {
			v.Set(key, envValue)
		}
	}
}

func getConfigFilePaths(opts ConfigOptions) (configFiles []string) {
	env := env_mode.Mode()
	fileNames := []string{
		opts.FileName,
		fmt.Sprintf("%s.local", opts.FileName),
		fmt.Sprintf("%s.%s", opts.FileName, env),
		fmt.Sprintf("%s.%s.local", opts.FileName, env),
	}

	for _, fileName := range fileNames {
		file := filepath.Join(opts.BasePath, fmt.Sprintf("%s.%s", fileName, opts.FileType))
		if isDir, exists, _ := utils.Exists(file); exists && !isDir {
			configFiles = append(configFiles, file)
		}
	}

	return configFiles
}
