package migration

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Manager orchestrates migration execution. Strategies run in the order
// they were added; the first failure stops the run.
type Manager struct {
	strategies []Strategy
	logger     *zap.Logger
}

func NewManager(strategies ...Strategy) *Manager {
	m := &Manager{logger: zap.NewNop()}
	for _, s := range strategies {
		m.Add(s)
	}
	return m
}

// WithLogger reports each strategy run.
func (m *Manager) WithLogger(logger *zap.Logger) *Manager {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// Add appends s; nil strategies are ignored.
func (m *Manager) Add(s Strategy) {
	if s != nil {
		m.strategies = append(m.strategies, s)
	}
}

// Names lists the queued strategies.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.strategies))
	for _, s := range m.strategies {
		names = append(names, s.Name())
	}
	return names
}

func (m *Manager) Run(ctx context.Context) error {
	if m == nil {
		return nil
	}
	for _, s := range m.strategies {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		if err := s.Migrate(ctx); err != nil {
			return fmt.Errorf("migration %q failed: %w", s.Name(), err)
		}
		m.logger.Info("migration applied",
			zap.String("strategy", s.Name()),
			zap.Duration("duration", time.Since(start)))
	}
	return nil
}
