package logging

import (
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CusTimeEncoder creates a custom time encoder that adds the prefix and formats the time.
func CusTimeEncoder(config Config) zapcore.TimeEncoder {
	return func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(config.Prefix + t.Format(config.TimeFormat))
	}
}

// GetEncoder returns a zapcore.Encoder based on the config format.
func GetEncoder(config Config) zapcore.Encoder {
	encoderConfig := zapcore.EncoderConfig{
		MessageKey:     "message",
		LevelKey:       "level",
		TimeKey:        "time",
		NameKey:        "logger",
		CallerKey:      "caller",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    config.ZapEncodeLevel(),
		EncodeTime:     CusTimeEncoder(config),
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}
	if config.Format == "json" {
		return zapcore.NewJSONEncoder(encoderConfig)
	}
	return zapcore.NewConsoleEncoder(encoderConfig)
}

// exactLevel enables only level; each file core receives one level.
func exactLevel(level zapcore.Level) zap.LevelEnablerFunc {
	return func(l zapcore.Level) bool {
		return l == level
	}
}

// buildCores returns a terminal core for every level >= config.Level and,
// with a Director, one file core per level. The returned writers must be
// closed by the owner.
func buildCores(config Config) ([]zapcore.Core, []*levelWriter) {
	encoder := GetEncoder(config)
	minLevel := config.TransportLevel()

	var cores []zapcore.Core
	if !config.Quiet {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), minLevel))
	}

	var writers []*levelWriter
	if config.Director != "" {
		for level := minLevel; level <= zapcore.FatalLevel; level++ {
			w := newLevelWriter(config, level.String())
			writers = append(writers, w)
			cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(w), exactLevel(level)))
		}
	}
	if len(cores) == 0 {
		// Keeps level filtering and hooks alive with no output.
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(io.Discard), minLevel))
	}
	return cores, writers
}
