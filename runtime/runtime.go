package runtime

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/leeforge/strata/adapter"
	"github.com/leeforge/strata/adapter/memory"
	"github.com/leeforge/strata/addon"
	"github.com/leeforge/strata/container"
	"github.com/leeforge/strata/database"
	"github.com/leeforge/strata/metrics"
	"github.com/leeforge/strata/orm"
	"github.com/leeforge/strata/runtime/migration"
)

// Config holds configuration for creating a new Runtime.
type Config struct {
	Logger      *zap.Logger
	EventBuffer int // default 1024

	// Source holds the application's own entries. It outranks every addon.
	Source container.Source
	// Adapter replaces the default in-memory application adapter.
	Adapter orm.Adapter
	// Metrics is registered as service:metrics; a fresh collector is used
	// when nil.
	Metrics *metrics.Collector
	// AddonConfig holds per-addon configuration sections. An addon whose
	// section is present but disabled is skipped.
	AddonConfig map[string]addon.ConfigProvider
	// ContainerOptions are appended to the runtime's own container options.
	ContainerOptions []container.Option
}

// Runtime assembles the application container and manages addon lifecycle
// with correct dependency ordering.
type Runtime struct {
	logger  *zap.Logger
	metrics *metrics.Collector
	adapter orm.Adapter
	configs map[string]addon.ConfigProvider

	resolver  *container.SourceResolver
	container *container.Container

	addons      map[string]addon.Addon
	addonState  map[string]addon.State
	addonErrors map[string]error
	mu          sync.RWMutex

	bootOrder []string
	eventBus  *eventBus
	booted    bool

	healthChecks map[string]func(context.Context) error
}

// New creates a runtime. The container is usable right away for
// application registrations; addon sources join it during Bootstrap.
func New(cfg Config) *Runtime {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 1024
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewCollector()
	}

	resolver := container.NewResolver("application")
	if cfg.Source != nil {
		resolver.AddSource(cfg.Source)
	}

	opts := []container.Option{
		container.WithResolvers(resolver),
		container.WithLogger(cfg.Logger.Named("container")),
		container.WithMetrics(cfg.Metrics),
	}
	opts = append(opts, cfg.ContainerOptions...)

	return &Runtime{
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		adapter:      cfg.Adapter,
		configs:      cfg.AddonConfig,
		resolver:     resolver,
		container:    container.New(opts...),
		addons:       make(map[string]addon.Addon),
		addonState:   make(map[string]addon.State),
		addonErrors:  make(map[string]error),
		eventBus:     NewEventBus(cfg.EventBuffer, cfg.Logger.Named("events"), cfg.Metrics),
		healthChecks: make(map[string]func(context.Context) error),
	}
}

// Container returns the application container.
func (r *Runtime) Container() *container.Container {
	return r.container
}

// Metrics returns the collector registered as service:metrics.
func (r *Runtime) Metrics() *metrics.Collector {
	return r.metrics
}

// Events returns the runtime event bus.
func (r *Runtime) Events() addon.EventBus {
	return r.eventBus
}

// Register adds an addon. Must be called before Bootstrap.
func (r *Runtime) Register(a addon.Addon) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.booted {
		return fmt.Errorf("addon %q registered after bootstrap", a.Name())
	}
	name := a.Name()
	if _, exists := r.addons[name]; exists {
		return fmt.Errorf("addon %q already registered", name)
	}

	r.addons[name] = a
	r.addonState[name] = addon.StateRegistered
	r.logger.Info("addon registered", zap.String("name", name), zap.String("version", a.Version()))
	return nil
}

// Bootstrap orders addons, assembles the container and runs every
// lifecycle phase.
func (r *Runtime) Bootstrap(ctx context.Context) error {
	startTime := time.Now()
	if ctx == nil {
		ctx = context.Background()
	}

	r.mu.Lock()
	if r.booted {
		r.mu.Unlock()
		return errors.New("runtime already bootstrapped")
	}
	r.booted = true
	r.mu.Unlock()

	// Phase 1: Resolve dependencies
	order, err := r.resolveDependencies()
	if err != nil {
		return fmt.Errorf("dependency resolution failed: %w", err)
	}
	r.bootOrder = order
	r.logger.Info("dependency resolution completed", zap.Strings("order", order))

	for _, name := range order {
		if cfg, ok := r.configs[name]; ok && !cfg.IsEnabled() {
			r.setState(name, addon.StateDisabled)
			r.logger.Info("addon disabled by configuration", zap.String("addon", name))
		}
	}

	// Phase 2: Source chain in dependency order, first match wins
	for _, name := range order {
		r.resolver.AddSource(&addonSource{rt: r, name: name, src: r.addons[name].Source()})
	}

	// Phase 3: Core entries
	if err := r.registerCoreEntries(); err != nil {
		return err
	}

	// Phase 4: Install (only Installable addons)
	for _, name := range order {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("bootstrap canceled: %w", err)
		}
		if r.State(name) != addon.StateRegistered {
			continue
		}
		if depErr := r.checkDependenciesHealthy(name); depErr != nil {
			if abortErr := r.handleAddonError(ctx, name, depErr); abortErr != nil {
				return abortErr
			}
			continue
		}
		if a, ok := r.addons[name].(addon.Installable); ok {
			if err := a.Install(ctx, r.appContext(name)); err != nil {
				if abortErr := r.handleAddonError(ctx, name, fmt.Errorf("install failed: %w", err)); abortErr != nil {
					return abortErr
				}
				continue
			}
		}
		r.setState(name, addon.StateInstalled)
	}

	// Phase 5: Init (in dependency order)
	for _, name := range order {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("bootstrap canceled: %w", err)
		}
		if r.State(name) != addon.StateInstalled {
			continue
		}
		if depErr := r.checkDependenciesHealthy(name); depErr != nil {
			if abortErr := r.handleAddonError(ctx, name, depErr); abortErr != nil {
				return abortErr
			}
			continue
		}
		if a, ok := r.addons[name].(addon.Initializer); ok {
			if err := a.Init(ctx, r.appContext(name)); err != nil {
				if abortErr := r.handleAddonError(ctx, name, fmt.Errorf("init failed: %w", err)); abortErr != nil {
					return abortErr
				}
				continue
			}
		}
		r.setState(name, addon.StateInitialized)
		r.publish(ctx, addon.Event{Name: addon.TopicAddonInitialized, Source: name})
	}

	// Phase 6: Subscribe events & register health checks
	for _, name := range order {
		if r.State(name) != addon.StateInitialized {
			continue
		}
		if a, ok := r.addons[name].(addon.EventSubscriber); ok {
			a.SubscribeEvents(r.eventBus)
		}
		if a, ok := r.addons[name].(addon.HealthReporter); ok {
			r.healthChecks[name] = a.HealthCheck
		}
	}

	// Phase 7: Migrations
	if err := r.migrate(ctx); err != nil {
		return err
	}

	r.publish(ctx, addon.Event{Name: addon.TopicBooted, Data: r.BootOrder()})
	r.logger.Info("bootstrap completed",
		zap.Duration("duration", time.Since(startTime)),
		zap.Int("addons", len(r.addons)),
	)
	return nil
}

// Shutdown disables addons in reverse topological order, tears the
// container down and closes the event bus.
func (r *Runtime) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	r.publish(shutdownCtx, addon.Event{Name: addon.TopicShutdown})

	var errs error
	for _, name := range reverseSlice(r.bootOrder) {
		if r.State(name) != addon.StateInitialized {
			continue
		}
		if a, ok := r.addons[name].(addon.Disableable); ok {
			if err := a.Disable(shutdownCtx, r.appContext(name)); err != nil {
				r.logger.Error("addon disable failed",
					zap.String("addon", name), zap.Error(err))
				errs = multierr.Append(errs, fmt.Errorf("disable %q: %w", name, err))
			}
		}
		r.setState(name, addon.StateDisabled)
	}

	if err := r.container.Teardown(); err != nil {
		errs = multierr.Append(errs, err)
	}

	// Drain + wait for in-flight handlers
	errs = multierr.Append(errs, r.eventBus.Close())

	r.logger.Info("shutdown completed")
	return errs
}

// Publish sends an event through the event bus.
func (r *Runtime) Publish(ctx context.Context, event addon.Event) error {
	return r.eventBus.Publish(ctx, event)
}

// State returns the state of an addon by name.
func (r *Runtime) State(name string) addon.State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.addonState[name]
}

// AddonState returns the state of an addon and whether it is registered.
func (r *Runtime) AddonState(name string) (addon.State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.addonState[name]
	return state, ok
}

// AddonError returns the error that moved an addon to the failed state.
func (r *Runtime) AddonError(name string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.addonErrors[name]
}

// ListAddons returns a snapshot of all addon states.
func (r *Runtime) ListAddons() map[string]addon.State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make(map[string]addon.State, len(r.addonState))
	for k, v := range r.addonState {
		result[k] = v
	}
	return result
}

// BootOrder returns the topological order used during bootstrap.
func (r *Runtime) BootOrder() []string {
	return append([]string{}, r.bootOrder...)
}

// Health runs every registered health check. A nil map value is healthy.
func (r *Runtime) Health(ctx context.Context) map[string]error {
	result := make(map[string]error, len(r.healthChecks))
	for name, check := range r.healthChecks {
		result[name] = check(ctx)
	}
	return result
}

// --- Internal ---

type coreEntry struct {
	spec  string
	value any
	opts  []container.EntryOption
}

func (r *Runtime) registerCoreEntries() error {
	c := r.container
	appAdapter := coreEntry{"orm-adapter:application", container.Factory(func(*container.Container) (any, error) {
		return memory.New(adapter.WithLogger(r.logger.Named("adapter"))), nil
	}), nil}
	if r.adapter != nil {
		appAdapter = coreEntry{"orm-adapter:application", r.adapter, []container.EntryOption{container.Instantiate(false)}}
	}

	entries := []coreEntry{
		{"container:main", c, nil},
		{"service:metrics", r.metrics, []container.EntryOption{container.Instantiate(false)}},
		{"service:db", container.Factory(database.NewService), nil},
		appAdapter,
	}
	for _, e := range entries {
		if c.Has(e.spec) {
			continue
		}
		if err := c.Register(e.spec, e.value, e.opts...); err != nil {
			return fmt.Errorf("register %s: %w", e.spec, err)
		}
	}
	return nil
}

func (r *Runtime) migrate(ctx context.Context) error {
	manager := migration.NewManager().WithLogger(r.logger.Named("migration"))
	for _, name := range r.bootOrder {
		if r.State(name) != addon.StateInitialized {
			continue
		}
		if a, ok := r.addons[name].(addon.MigrationProvider); ok {
			for _, s := range a.Migrations() {
				manager.Add(s)
			}
		}
	}

	app, err := r.container.Lookup("orm-adapter:application")
	if err != nil {
		return fmt.Errorf("application adapter: %w", err)
	}
	switch v := app.(type) {
	case migration.Strategy:
		manager.Add(v)
	case interface{ Store() adapter.Store }:
		if s, ok := v.Store().(migration.Strategy); ok {
			manager.Add(s)
		}
	}

	if err := manager.Run(ctx); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}
	return nil
}

func (r *Runtime) appContext(name string) *addon.AppContext {
	cfg, ok := r.configs[name]
	if !ok || cfg == nil {
		cfg = addon.EmptyConfig()
	}
	return &addon.AppContext{
		Container: r.container,
		Logger:    r.logger.With(zap.String("addon", name)),
		Config:    cfg,
		Events:    r.eventBus,
	}
}

func (r *Runtime) publish(ctx context.Context, event addon.Event) {
	if err := r.eventBus.Publish(ctx, event); err != nil {
		r.logger.Warn("event publish failed", zap.String("event", event.Name), zap.Error(err))
	}
}

func (r *Runtime) setState(name string, state addon.State) {
	r.mu.Lock()
	r.addonState[name] = state
	r.mu.Unlock()
}

func (r *Runtime) resolveDependencies() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inDegree := make(map[string]int, len(r.addons))
	dependents := make(map[string][]string) // dep -> list of addons that depend on it

	for name := range r.addons {
		inDegree[name] = 0
	}

	for name, a := range r.addons {
		for _, dep := range a.Dependencies() {
			if _, exists := r.addons[dep]; !exists {
				return nil, fmt.Errorf("addon %q depends on %q which is not registered", name, dep)
			}
			inDegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	// Kahn's algorithm
	var queue []string
	for name, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, name)
		}
	}
	sort.Strings(queue) // deterministic

	var order []string
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		order = append(order, current)

		for _, dep := range dependents[current] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
				sort.Strings(queue)
			}
		}
	}

	if len(order) != len(r.addons) {
		return nil, errors.New("circular dependency detected")
	}

	return order, nil
}

func (r *Runtime) handleAddonError(ctx context.Context, name string, err error) error {
	r.mu.Lock()
	r.addonState[name] = addon.StateFailed
	r.addonErrors[name] = err
	r.mu.Unlock()

	r.publish(ctx, addon.Event{Name: addon.TopicAddonFailed, Source: name, Data: err.Error()})

	opts := r.addonOptions(name)
	if opts.Optional {
		r.logger.Warn("optional addon failed, continuing",
			zap.String("addon", name), zap.Error(err))
		return nil
	}

	return fmt.Errorf("required addon %q failed: %w", name, err)
}

func (r *Runtime) addonOptions(name string) addon.Options {
	if a, ok := r.addons[name].(addon.Configurable); ok {
		return a.AddonOptions()
	}
	return addon.Options{Optional: false}
}

func (r *Runtime) checkDependenciesHealthy(name string) error {
	for _, dep := range r.addons[name].Dependencies() {
		if state := r.State(dep); state.IsTerminal() {
			return fmt.Errorf("dependency %q is %s", dep, state)
		}
	}
	return nil
}

// addonSource hides an addon's entries while it is failed or disabled by
// configuration. Entries of an addon disabled at shutdown stay visible so
// teardown can still reach them.
type addonSource struct {
	rt   *Runtime
	name string
	src  container.Source
}

func (s *addonSource) Name() string { return s.name }

func (s *addonSource) TryResolve(spec container.Specifier) (any, bool) {
	if s.src == nil || !s.live() {
		return nil, false
	}
	return s.src.TryResolve(spec)
}

func (s *addonSource) Names(typ string) []string {
	if s.src == nil || !s.live() {
		return nil
	}
	return s.src.Names(typ)
}

func (s *addonSource) live() bool {
	s.rt.mu.RLock()
	defer s.rt.mu.RUnlock()
	switch s.rt.addonState[s.name] {
	case addon.StateFailed:
		return false
	case addon.StateDisabled:
		cfg, ok := s.rt.configs[s.name]
		return !ok || cfg == nil || cfg.IsEnabled()
	}
	return true
}

func reverseSlice(s []string) []string {
	n := len(s)
	reversed := make([]string, n)
	for i, v := range s {
		reversed[n-1-i] = v
	}
	return reversed
}
