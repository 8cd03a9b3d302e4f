package migration

import "context"

// FuncStrategy adapts a migration function to Strategy.
type FuncStrategy struct {
	name      string
	migrateFn func(context.Context) error
}

func NewFuncStrategy(name string, migrateFn func(context.Context) error) *FuncStrategy {
	return &FuncStrategy{name: name, migrateFn: migrateFn}
}

func (s *FuncStrategy) Name() string {
	return s.name
}

func (s *FuncStrategy) Migrate(ctx context.Context) error {
	if s == nil || s.migrateFn == nil {
		return nil
	}
	return s.migrateFn(ctx)
}
