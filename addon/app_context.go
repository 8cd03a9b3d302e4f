package addon

import (
	"go.uber.org/zap"

	"github.com/leeforge/strata/container"
)

// AppContext is passed to every addon lifecycle method.
type AppContext struct {
	Container *container.Container
	Logger    *zap.Logger
	Config    ConfigProvider
	Events    EventBus
}

// Lookup is a shortcut for Container.Lookup.
func (a *AppContext) Lookup(spec string, opts ...container.LookupOption) (any, error) {
	return a.Container.Lookup(spec, opts...)
}
