package database

import (
	"context"
	"time"

	"github.com/leeforge/strata/container"
	"github.com/leeforge/strata/metrics"
	"github.com/leeforge/strata/orm"
)

// Service is the entry point application code uses to reach models. It is
// registered as "service:db" and finds the adapter for each model type
// through the container.
type Service struct {
	Container *container.Container `inject:"container:main"`
	Metrics   *metrics.Collector   `inject:"service:metrics,loose"`
}

// NewService is the container factory for "service:db".
func NewService(*container.Container) (any, error) {
	return &Service{}, nil
}

// Find returns the model of typ with id, or nil when there is none.
func (s *Service) Find(ctx context.Context, typ string, id any, opts orm.Options) (*orm.Model, error) {
	cls, a, err := s.resolve(typ)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	record, err := a.Find(ctx, typ, id, opts)
	s.Metrics.RecordAdapterCall(typ, "find", time.Since(start), err)
	if err != nil || record == nil {
		return nil, err
	}
	return cls.Wrap(record), nil
}

// QueryOne returns the first model of typ matching query, or nil.
func (s *Service) QueryOne(ctx context.Context, typ string, query any, opts orm.Options) (*orm.Model, error) {
	cls, a, err := s.resolve(typ)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	record, err := a.QueryOne(ctx, typ, query, opts)
	s.Metrics.RecordAdapterCall(typ, "query_one", time.Since(start), err)
	if err != nil || record == nil {
		return nil, err
	}
	return cls.Wrap(record), nil
}

// Query returns every model of typ matching query; never nil.
func (s *Service) Query(ctx context.Context, typ string, query any, opts orm.Options) ([]*orm.Model, error) {
	cls, a, err := s.resolve(typ)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	records, err := a.Query(ctx, typ, query, opts)
	s.Metrics.RecordAdapterCall(typ, "query", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return wrapAll(cls, records), nil
}

// All returns every model of typ; never nil.
func (s *Service) All(ctx context.Context, typ string, opts orm.Options) ([]*orm.Model, error) {
	cls, a, err := s.resolve(typ)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	records, err := a.All(ctx, typ, opts)
	s.Metrics.RecordAdapterCall(typ, "all", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return wrapAll(cls, records), nil
}

// Create builds an unsaved model of typ holding data.
func (s *Service) Create(typ string, data map[string]any, opts orm.Options) (*orm.Model, error) {
	cls, _, err := s.resolve(typ)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	m, err := cls.Build(data, opts)
	s.Metrics.RecordAdapterCall(typ, "build", time.Since(start), err)
	return m, err
}

func (s *Service) resolve(typ string) (*orm.ModelClass, orm.Adapter, error) {
	cls, err := orm.ClassFor(s.Container, typ)
	if err != nil {
		return nil, nil, err
	}
	a, err := cls.Adapter()
	if err != nil {
		return nil, nil, err
	}
	return cls, a, nil
}

func wrapAll(cls *orm.ModelClass, records []any) []*orm.Model {
	out := make([]*orm.Model, 0, len(records))
	for _, r := range records {
		out = append(out, cls.Wrap(r))
	}
	return out
}
