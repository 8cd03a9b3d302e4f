package logging

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the interface for structured logging.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)

	// Infof logs a formatted message at InfoLevel.
	Infof(format string, args ...any)
	// Errorf logs a formatted message at ErrorLevel.
	Errorf(format string, args ...any)

	// With creates a child logger with additional fields.
	With(fields ...zap.Field) Logger
	// Named creates a child logger with the given name.
	Named(name string) Logger

	// Zap returns the underlying *zap.Logger, the type handed to the
	// container, runtime and stores.
	Zap() *zap.Logger
	// Sync flushes any buffered log entries.
	Sync() error
	// Close syncs and releases the log files. Children share the files of
	// the logger they were derived from.
	Close() error
}

// zapLogger wraps *zap.Logger to implement the Logger interface.
type zapLogger struct {
	zl     *zap.Logger
	closer io.Closer
}

type writerSet []*levelWriter

func (s writerSet) Close() error { return closeWriters(s) }

// NewLogger creates a new Logger from the given Config. Hooks see every
// entry that passes the level filter.
func NewLogger(config Config, hooks ...Hook) Logger {
	config.applyDefaults()

	cores, writers := buildCores(config)
	core := zapcore.NewTee(cores...)
	if len(hooks) > 0 {
		core = zapcore.RegisterHooks(core, zapHooks(hooks)...)
	}

	zapLog := zap.New(core)
	if config.ShowLineNumber {
		zapLog = zapLog.WithOptions(zap.AddCaller())
	}
	return &zapLogger{zl: zapLog, closer: writerSet(writers)}
}

// FromZap wraps an existing *zap.Logger as a Logger.
func FromZap(zl *zap.Logger) Logger {
	return &zapLogger{zl: zl}
}

func (l *zapLogger) Debug(msg string, fields ...zap.Field) { l.zl.Debug(msg, fields...) }
func (l *zapLogger) Info(msg string, fields ...zap.Field)  { l.zl.Info(msg, fields...) }
func (l *zapLogger) Warn(msg string, fields ...zap.Field)  { l.zl.Warn(msg, fields...) }
func (l *zapLogger) Error(msg string, fields ...zap.Field) { l.zl.Error(msg, fields...) }

func (l *zapLogger) Infof(format string, args ...any) {
	l.zl.Sugar().Infof(format, args...)
}

func (l *zapLogger) Errorf(format string, args ...any) {
	l.zl.Sugar().Errorf(format, args...)
}

func (l *zapLogger) With(fields ...zap.Field) Logger {
	return &zapLogger{zl: l.zl.With(fields...), closer: l.closer}
}

func (l *zapLogger) Named(name string) Logger {
	return &zapLogger{zl: l.zl.Named(name), closer: l.closer}
}

func (l *zapLogger) Zap() *zap.Logger { return l.zl }

func (l *zapLogger) Sync() error { return l.zl.Sync() }

func (l *zapLogger) Close() error {
	// stderr cannot be synced on every platform; only file errors count.
	_ = l.zl.Sync()
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// Ensure zapLogger implements Logger.
var _ Logger = (*zapLogger)(nil)
