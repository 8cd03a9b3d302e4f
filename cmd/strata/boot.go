package main

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/leeforge/strata/adapter"
	"github.com/leeforge/strata/adapter/redisstore"
	"github.com/leeforge/strata/adapter/sqlstore"
	"github.com/leeforge/strata/config"
	"github.com/leeforge/strata/container"
	"github.com/leeforge/strata/logging"
	"github.com/leeforge/strata/metrics"
	"github.com/leeforge/strata/orm"
	"github.com/leeforge/strata/redis_client"
	"github.com/leeforge/strata/runtime"
)

// application is a booted runtime plus the pieces the commands inspect.
type application struct {
	config  *config.AppConfig
	logs    *logging.Factory
	logger  logging.Logger
	source  *container.DirSource
	runtime *runtime.Runtime
}

func (a *application) Container() *container.Container {
	return a.runtime.Container()
}

// close shuts the runtime down and flushes the log files.
func (a *application) close(ctx context.Context) error {
	err := a.runtime.Shutdown(ctx)
	return multierr.Append(err, a.logs.Close())
}

func loadConfig(opts *globalOptions) (*config.AppConfig, error) {
	cfgOpts := config.DefaultConfigOptions()
	if opts.configDir != "" {
		cfgOpts.BasePath = opts.configDir
	}

	app, err := config.LoadAppConfig(cfgOpts)
	if err != nil {
		return nil, err
	}
	if opts.root == "" && opts.store == "" {
		return app, nil
	}

	if opts.root != "" {
		app.Root = opts.root
	}
	if opts.store != "" {
		app.Store.Driver = opts.store
	}
	if err := app.Validate(); err != nil {
		return nil, err
	}
	return app, nil
}

// boot loads the configuration and bootstraps a runtime over the
// application root. The caller must close the result.
func boot(ctx context.Context, opts *globalOptions) (*application, error) {
	app, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	collector := metrics.NewCollector()
	logs := logging.NewFactory(app.Logging)
	logger := logging.WithHooks(logs.GetLogger(app.Name), logging.MetricsHook(collector, zapcore.WarnLevel))
	zl := logger.Zap()

	store, err := openAdapter(ctx, app, zl)
	if err != nil {
		return nil, multierr.Append(err, logs.Close())
	}

	source := container.NewDirSource(app.Root, container.WithDirLogger(zl.Named("source")))
	rt := runtime.New(runtime.Config{
		Logger:           zl,
		Source:           source,
		Adapter:          store,
		Metrics:          collector,
		AddonConfig:      app.AddonConfigs(),
		ContainerOptions: app.ContainerOptions(),
	})

	a := &application{config: app, logs: logs, logger: logger, source: source, runtime: rt}
	if err := app.ApplyContainer(rt.Container()); err != nil {
		return nil, multierr.Append(err, a.close(ctx))
	}
	if err := rt.Bootstrap(ctx); err != nil {
		return nil, multierr.Append(err, a.close(ctx))
	}

	logger.Debug("application booted",
		zap.String("root", app.Root),
		zap.String("store", app.Store.Driver))
	return a, nil
}

// openAdapter builds the configured record store. The memory store is the
// runtime's default and yields nil.
func openAdapter(ctx context.Context, app *config.AppConfig, logger *zap.Logger) (orm.Adapter, error) {
	switch app.Store.Driver {
	case config.StoreRedis:
		client, err := redis_client.NewRedis(ctx, app.Redis, logger.Named("redis"))
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		store := redisstore.New(client,
			redisstore.WithPrefix(app.Redis.Prefix),
			redisstore.WithIDMode(redisstore.IDMode(app.Store.IDMode)),
			redisstore.WithOwnedClient(),
			redisstore.WithLogger(logger.Named("redisstore")))
		return adapter.New(store, adapter.WithLogger(logger.Named("adapter"))), nil

	case config.StoreSQL:
		store, err := sqlstore.Open(app.SQL.Driver, app.SQL.DSN,
			sqlstore.WithTable(app.SQL.Table),
			sqlstore.WithLogger(logger.Named("sqlstore")))
		if err != nil {
			return nil, err
		}
		return adapter.New(store, adapter.WithLogger(logger.Named("adapter"))), nil

	default:
		return nil, nil
	}
}

// withApplication boots, runs fn and shuts down, reporting both errors.
func withApplication(ctx context.Context, opts *globalOptions, fn func(*application) error) (err error) {
	app, err := boot(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, app.close(ctx))
	}()
	return fn(app)
}
