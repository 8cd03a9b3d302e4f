package redis_client

import (
	"net"
	"time"

	redis "github.com/go-redis/redis/v8"
)

// Config is the redis section of the application configuration. It also
// carries the key prefix used by the redis record store.
type Config struct {
	Host        string        `mapstructure:"host" json:"host" yaml:"host" default:"127.0.0.1" validate:"required"`
	Port        string        `mapstructure:"port" json:"port" yaml:"port" default:"6379" validate:"required"`
	Password    string        `mapstructure:"password" json:"password" yaml:"password"`
	DB          int           `mapstructure:"db" json:"db" yaml:"db" validate:"gte=0"`
	Prefix      string        `mapstructure:"prefix" json:"prefix" yaml:"prefix" default:"strata"`
	DialTimeout time.Duration `mapstructure:"dial_timeout" json:"dial_timeout" yaml:"dial_timeout" default:"5s"`
}

func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// Options converts the config into go-redis client options.
func (c *Config) Options() *redis.Options {
	return &redis.Options{
		Addr:        c.Addr(),
		Password:    c.Password,
		DB:          c.DB,
		DialTimeout: c.DialTimeout,
	}
}
