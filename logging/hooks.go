package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/leeforge/strata/metrics"
)

// Hook is a function that is called for each log entry.
// It can be used for custom log processing, alerting, metrics, etc.
type Hook func(entry zapcore.Entry) error

// WithHooks creates a new Logger with hooks attached. The result shares
// the files of logger.
func WithHooks(logger Logger, hooks ...Hook) Logger {
	if len(hooks) == 0 {
		return logger
	}
	hooked := logger.Zap().WithOptions(zap.Hooks(zapHooks(hooks)...))
	if zl, ok := logger.(*zapLogger); ok {
		return &zapLogger{zl: hooked, closer: zl.closer}
	}
	return FromZap(hooked)
}

func zapHooks(hooks []Hook) []func(zapcore.Entry) error {
	out := make([]func(zapcore.Entry) error, len(hooks))
	for i, h := range hooks {
		out[i] = h
	}
	return out
}

// MetricsHook counts entries at or above minLevel into collector as
// log_entries_total{level}.
func MetricsHook(collector *metrics.Collector, minLevel zapcore.Level) Hook {
	return func(entry zapcore.Entry) error {
		if entry.Level >= minLevel {
			collector.IncCounter("log_entries_total", map[string]string{"level": entry.Level.String()})
		}
		return nil
	}
}
