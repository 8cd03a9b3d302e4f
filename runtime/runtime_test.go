package runtime

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/leeforge/strata/adapter"
	"github.com/leeforge/strata/adapter/memory"
	"github.com/leeforge/strata/addon"
	"github.com/leeforge/strata/container"
	"github.com/leeforge/strata/database"
	"github.com/leeforge/strata/metrics"
	"github.com/leeforge/strata/runtime/migration"
)

// --- Test Helpers ---

type testAddon struct {
	*addon.Base
	initFn    func(context.Context, *addon.AppContext) error
	installFn func(context.Context, *addon.AppContext) error
	disableFn func(context.Context, *addon.AppContext) error
	options   *addon.Options
}

func newTestAddon(name string, deps ...string) *testAddon {
	return &testAddon{Base: addon.New(name, "1.0.0", deps...)}
}

func (a *testAddon) Init(ctx context.Context, app *addon.AppContext) error {
	if a.initFn != nil {
		return a.initFn(ctx, app)
	}
	return nil
}

// Optional interfaces -- only present on specific test addons
type testInstallableAddon struct {
	*testAddon
}

func (a *testInstallableAddon) Install(ctx context.Context, app *addon.AppContext) error {
	if a.installFn != nil {
		return a.installFn(ctx, app)
	}
	return nil
}

type testDisableableAddon struct {
	*testAddon
}

func (a *testDisableableAddon) Disable(ctx context.Context, app *addon.AppContext) error {
	if a.disableFn != nil {
		return a.disableFn(ctx, app)
	}
	return nil
}

type testConfigurableAddon struct {
	*testAddon
}

func (a *testConfigurableAddon) AddonOptions() addon.Options {
	if a.options != nil {
		return *a.options
	}
	return addon.Options{}
}

type testMigratingAddon struct {
	*testAddon
	strategies []migration.Strategy
}

func (a *testMigratingAddon) Migrations() []migration.Strategy {
	return a.strategies
}

type testHealthAddon struct {
	*testAddon
	err error
}

func (a *testHealthAddon) HealthCheck(context.Context) error {
	return a.err
}

// migratingAdapter is an application adapter that is also a migration.
type migratingAdapter struct {
	*adapter.DocumentAdapter
	migrated atomic.Bool
}

func (a *migratingAdapter) Name() string { return "app-adapter" }

func (a *migratingAdapter) Migrate(context.Context) error {
	a.migrated.Store(true)
	return nil
}

type closer struct {
	closed atomic.Int32
}

func (c *closer) Teardown() error {
	c.closed.Add(1)
	return nil
}

func newTestRuntime() *Runtime {
	return New(Config{
		Logger:      zap.NewNop(),
		EventBuffer: 1024,
	})
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

// --- Tests ---

func TestRuntime_RegisterAndBootstrap(t *testing.T) {
	rt := newTestRuntime()
	defer rt.Shutdown(context.Background())

	if err := rt.Register(newTestAddon("basic")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := rt.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}

	state, ok := rt.AddonState("basic")
	if !ok {
		t.Fatal("addon state not found")
	}
	if state != addon.StateInitialized {
		t.Errorf("state = %v, want initialized", state)
	}
}

func TestRuntime_CoreEntries(t *testing.T) {
	rt := newTestRuntime()
	defer rt.Shutdown(context.Background())

	if err := rt.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	c := rt.Container()

	if main := c.MustLookup("container:main"); main != c {
		t.Errorf("container:main = %v, want the runtime container", main)
	}
	if m := c.MustLookup("service:metrics"); m != rt.Metrics() {
		t.Errorf("service:metrics = %v, want the runtime collector", m)
	}

	svc, err := container.Resolve[*database.Service](c, "service:db")
	if err != nil {
		t.Fatalf("service:db: %v", err)
	}
	if svc.Container != c || svc.Metrics != rt.Metrics() {
		t.Error("service:db should be injected with the container and metrics")
	}

	if _, err := container.Resolve[*adapter.DocumentAdapter](c, "orm-adapter:application"); err != nil {
		t.Errorf("orm-adapter:application should default to a document adapter: %v", err)
	}
}

func TestRuntime_ConfiguredAdapter(t *testing.T) {
	app := &migratingAdapter{DocumentAdapter: memory.New()}
	rt := New(Config{Adapter: app})
	defer rt.Shutdown(context.Background())

	if err := rt.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}

	got := rt.Container().MustLookup("orm-adapter:application")
	if got != app {
		t.Errorf("orm-adapter:application = %T, want the configured adapter", got)
	}
	if !app.migrated.Load() {
		t.Error("application adapter migration should have run")
	}
}

func TestRuntime_DuplicateRegisterFails(t *testing.T) {
	rt := newTestRuntime()
	defer rt.Shutdown(context.Background())

	rt.Register(newTestAddon("dup"))
	if err := rt.Register(newTestAddon("dup")); err == nil {
		t.Fatal("duplicate Register should fail")
	}
}

func TestRuntime_RegisterAfterBootstrapFails(t *testing.T) {
	rt := newTestRuntime()
	defer rt.Shutdown(context.Background())

	if err := rt.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	if err := rt.Register(newTestAddon("late")); err == nil {
		t.Fatal("Register after Bootstrap should fail")
	}
	if err := rt.Bootstrap(context.Background()); err == nil {
		t.Fatal("second Bootstrap should fail")
	}
}

func TestRuntime_DependencyOrder(t *testing.T) {
	rt := newTestRuntime()
	defer rt.Shutdown(context.Background())

	var order []string
	a := newTestAddon("a")
	a.initFn = func(context.Context, *addon.AppContext) error {
		order = append(order, "a")
		return nil
	}
	b := newTestAddon("b", "a")
	b.initFn = func(context.Context, *addon.AppContext) error {
		order = append(order, "b")
		return nil
	}

	// Register in reverse order to prove sorting works
	rt.Register(b)
	rt.Register(a)

	if err := rt.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	if !reflect.DeepEqual(order, []string{"a", "b"}) {
		t.Errorf("order = %v, want [a b]", order)
	}
}

func TestRuntime_CircularDependencyDetected(t *testing.T) {
	rt := newTestRuntime()
	rt.Register(newTestAddon("x", "y"))
	rt.Register(newTestAddon("y", "x"))

	if err := rt.Bootstrap(context.Background()); err == nil {
		t.Fatal("should detect circular dependency")
	}
}

func TestRuntime_MissingDependencyDetected(t *testing.T) {
	rt := newTestRuntime()
	rt.Register(newTestAddon("needs-missing", "nonexistent"))

	if err := rt.Bootstrap(context.Background()); err == nil {
		t.Fatal("should detect missing dependency")
	}
}

func TestRuntime_BootOrder(t *testing.T) {
	rt := newTestRuntime()
	defer rt.Shutdown(context.Background())

	rt.Register(newTestAddon("c", "b"))
	rt.Register(newTestAddon("a"))
	rt.Register(newTestAddon("b", "a"))

	if err := rt.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	if order := rt.BootOrder(); !reflect.DeepEqual(order, []string{"a", "b", "c"}) {
		t.Errorf("boot order = %v, want [a b c]", order)
	}
}

func TestRuntime_SourcePrecedence(t *testing.T) {
	appSource := container.NewMapSource("app").Set("template:banner", "app banner")
	rt := New(Config{Source: appSource})
	defer rt.Shutdown(context.Background())

	base := newTestAddon("base")
	base.Provide("template:greeting", "from base").
		Provide("template:banner", "base banner").
		Provide("template:footer", "base footer")
	theme := newTestAddon("theme", "base")
	theme.Provide("template:greeting", "from theme")

	rt.Register(base)
	rt.Register(theme)
	if err := rt.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	c := rt.Container()

	cases := map[string]string{
		"template:greeting": "from base",
		"template:banner":   "app banner",
		"template:footer":   "base footer",
	}
	for spec, want := range cases {
		if got := c.MustLookup(spec); got != want {
			t.Errorf("%s = %v, want %q", spec, got, want)
		}
	}

	c.MustRegister("template:greeting", "registered")
	if got := c.MustLookup("template:greeting"); got != "registered" {
		t.Errorf("registered entry should win, got %v", got)
	}

	names := c.AvailableForType("template")
	if !reflect.DeepEqual(names, []string{"greeting", "banner", "footer"}) {
		t.Errorf("AvailableForType(template) = %v", names)
	}
}

func TestRuntime_InstallCalledForInstallableOnly(t *testing.T) {
	rt := newTestRuntime()
	defer rt.Shutdown(context.Background())

	var installed atomic.Bool
	ia := &testInstallableAddon{testAddon: newTestAddon("installable")}
	ia.installFn = func(context.Context, *addon.AppContext) error {
		installed.Store(true)
		return nil
	}

	rt.Register(ia)
	rt.Register(newTestAddon("plain"))

	if err := rt.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	if !installed.Load() {
		t.Error("Install should have been called on installable addon")
	}
}

func TestRuntime_ShutdownReverseOrder(t *testing.T) {
	rt := newTestRuntime()

	var disableOrder []string
	a := &testDisableableAddon{testAddon: newTestAddon("a")}
	a.disableFn = func(context.Context, *addon.AppContext) error {
		disableOrder = append(disableOrder, "a")
		return nil
	}
	b := &testDisableableAddon{testAddon: newTestAddon("b", "a")}
	b.disableFn = func(context.Context, *addon.AppContext) error {
		disableOrder = append(disableOrder, "b")
		return fmt.Errorf("flush failed")
	}

	rt.Register(a)
	rt.Register(b)

	if err := rt.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}

	if err := rt.Shutdown(context.Background()); err == nil {
		t.Error("Shutdown should report the disable failure")
	}

	// b depends on a, so b must be disabled FIRST (reverse order)
	if !reflect.DeepEqual(disableOrder, []string{"b", "a"}) {
		t.Errorf("disable order = %v, want [b a]", disableOrder)
	}
	if state := rt.State("a"); state != addon.StateDisabled {
		t.Errorf("a state = %v, want disabled", state)
	}
}

func TestRuntime_ShutdownTearsDownContainer(t *testing.T) {
	rt := newTestRuntime()

	res := &closer{}
	a := newTestAddon("resources")
	a.Provide("service:closer", container.Factory(func(*container.Container) (any, error) {
		return res, nil
	}))
	a.initFn = func(_ context.Context, app *addon.AppContext) error {
		_, err := app.Lookup("service:closer")
		return err
	}

	rt.Register(a)
	if err := rt.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	if err := rt.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if got := res.closed.Load(); got != 1 {
		t.Errorf("teardown calls = %d, want 1", got)
	}
}

func TestRuntime_OptionalAddonFailure(t *testing.T) {
	rt := newTestRuntime()
	defer rt.Shutdown(context.Background())

	failing := &testConfigurableAddon{testAddon: newTestAddon("optional-fail")}
	failing.initFn = func(context.Context, *addon.AppContext) error {
		return fmt.Errorf("intentional failure")
	}
	failing.options = &addon.Options{Optional: true}
	failing.Provide("template:broken", "never visible")

	rt.Register(failing)
	rt.Register(newTestAddon("ok-addon"))

	// Should NOT fail -- optional addon failure is tolerated
	if err := rt.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap should succeed with optional addon failure: %v", err)
	}

	if state := rt.State("optional-fail"); state != addon.StateFailed {
		t.Errorf("optional-fail state = %v, want failed", state)
	}
	if rt.AddonError("optional-fail") == nil {
		t.Error("failure cause should be recorded")
	}
	if state := rt.State("ok-addon"); state != addon.StateInitialized {
		t.Errorf("ok-addon state = %v, want initialized", state)
	}
	if rt.Container().Has("template:broken") {
		t.Error("entries of a failed addon should not resolve")
	}
}

func TestRuntime_DependentOfFailedAddonFails(t *testing.T) {
	rt := newTestRuntime()
	defer rt.Shutdown(context.Background())

	base := &testConfigurableAddon{testAddon: newTestAddon("base")}
	base.options = &addon.Options{Optional: true}
	base.initFn = func(context.Context, *addon.AppContext) error {
		return fmt.Errorf("no backend")
	}
	child := &testConfigurableAddon{testAddon: newTestAddon("child", "base")}
	child.options = &addon.Options{Optional: true}

	rt.Register(base)
	rt.Register(child)

	if err := rt.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	if state := rt.State("child"); state != addon.StateFailed {
		t.Errorf("child state = %v, want failed", state)
	}
}

func TestRuntime_RequiredAddonFailureAbortsBootstrap(t *testing.T) {
	rt := newTestRuntime()

	failing := newTestAddon("required-fail")
	failing.initFn = func(context.Context, *addon.AppContext) error {
		return fmt.Errorf("critical failure")
	}
	rt.Register(failing)

	if err := rt.Bootstrap(context.Background()); err == nil {
		t.Fatal("Bootstrap should fail when required addon fails")
	}
}

func TestRuntime_AddonConfig(t *testing.T) {
	var greeting string
	var disabledInit atomic.Bool

	blog := newTestAddon("blog")
	blog.initFn = func(_ context.Context, app *addon.AppContext) error {
		greeting = app.Config.GetString("greeting", "none")
		return nil
	}
	legacy := newTestAddon("legacy")
	legacy.Provide("template:legacy", "old")
	legacy.initFn = func(context.Context, *addon.AppContext) error {
		disabledInit.Store(true)
		return nil
	}

	rt := New(Config{AddonConfig: map[string]addon.ConfigProvider{
		"blog":   addon.NewConfigEntry("blog", true, map[string]any{"greeting": "hello"}),
		"legacy": addon.NewConfigEntry("legacy", false, nil),
	}})
	defer rt.Shutdown(context.Background())

	rt.Register(blog)
	rt.Register(legacy)
	if err := rt.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}

	if greeting != "hello" {
		t.Errorf("greeting = %q, want hello", greeting)
	}
	if disabledInit.Load() {
		t.Error("disabled addon should not be initialized")
	}
	if state := rt.State("legacy"); state != addon.StateDisabled {
		t.Errorf("legacy state = %v, want disabled", state)
	}
	if rt.Container().Has("template:legacy") {
		t.Error("entries of a disabled addon should not resolve")
	}
}

func TestRuntime_Migrations(t *testing.T) {
	var ran []string
	record := func(name string) migration.Strategy {
		return migration.NewFuncStrategy(name, func(context.Context) error {
			ran = append(ran, name)
			return nil
		})
	}

	a := &testMigratingAddon{testAddon: newTestAddon("a"), strategies: []migration.Strategy{record("a-1"), record("a-2")}}
	b := &testMigratingAddon{testAddon: newTestAddon("b", "a"), strategies: []migration.Strategy{record("b-1")}}

	rt := newTestRuntime()
	defer rt.Shutdown(context.Background())
	rt.Register(b)
	rt.Register(a)

	if err := rt.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	if !reflect.DeepEqual(ran, []string{"a-1", "a-2", "b-1"}) {
		t.Errorf("migrations ran = %v", ran)
	}
}

func TestRuntime_MigrationFailureAbortsBootstrap(t *testing.T) {
	rt := newTestRuntime()
	rt.Register(&testMigratingAddon{
		testAddon: newTestAddon("schema"),
		strategies: []migration.Strategy{migration.NewFuncStrategy("broken", func(context.Context) error {
			return fmt.Errorf("syntax error")
		})},
	})

	if err := rt.Bootstrap(context.Background()); err == nil {
		t.Fatal("Bootstrap should fail when a migration fails")
	}
}

func TestRuntime_Health(t *testing.T) {
	rt := newTestRuntime()
	defer rt.Shutdown(context.Background())

	rt.Register(&testHealthAddon{testAddon: newTestAddon("up")})
	rt.Register(&testHealthAddon{testAddon: newTestAddon("down"), err: fmt.Errorf("unreachable")})
	rt.Register(newTestAddon("silent"))

	if err := rt.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}

	health := rt.Health(context.Background())
	if len(health) != 2 {
		t.Fatalf("expected 2 health checks, got %d", len(health))
	}
	if health["up"] != nil {
		t.Errorf("up = %v, want healthy", health["up"])
	}
	if health["down"] == nil {
		t.Error("down should report an error")
	}
}

func TestRuntime_ListAddons(t *testing.T) {
	rt := newTestRuntime()
	defer rt.Shutdown(context.Background())

	rt.Register(newTestAddon("alpha"))
	rt.Register(newTestAddon("beta"))

	if err := rt.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	if addons := rt.ListAddons(); len(addons) != 2 {
		t.Fatalf("expected 2 addons, got %d", len(addons))
	}
}

func TestRuntime_EventsIntegration(t *testing.T) {
	collector := metrics.NewCollector()
	rt := New(Config{Metrics: collector})
	defer rt.Shutdown(context.Background())

	pinged := make(chan struct{})
	booted := make(chan struct{})
	var once sync.Once
	var bootData atomic.Value

	a := newTestAddon("eventer")
	a.initFn = func(_ context.Context, app *addon.AppContext) error {
		app.Events.Subscribe("test.ping", func(context.Context, addon.Event) error {
			close(pinged)
			return nil
		})
		app.Events.Subscribe(addon.TopicBooted, func(_ context.Context, e addon.Event) error {
			bootData.Store(e.Data)
			once.Do(func() { close(booted) })
			return nil
		})
		return nil
	}

	rt.Register(a)
	if err := rt.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	waitFor(t, booted)
	if order, _ := bootData.Load().([]string); !reflect.DeepEqual(order, []string{"eventer"}) {
		t.Errorf("booted event data = %v, want [eventer]", bootData.Load())
	}

	rt.Publish(context.Background(), addon.Event{Name: "test.ping"})
	waitFor(t, pinged)

	if _, ok := collector.GetMetric("events_published_total", map[string]string{"topic": "test.ping"}); !ok {
		t.Error("published events should be counted")
	}
}
