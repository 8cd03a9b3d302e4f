package logging

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/natefinch/lumberjack.v2"
)

// levelWriter writes one level's entries to <director>/<date>/<level>.log,
// rotated by lumberjack. A new file set starts every day.
type levelWriter struct {
	config Config
	level  string
	now    func() time.Time

	mu     sync.Mutex
	date   string
	writer *lumberjack.Logger
}

func newLevelWriter(config Config, level string) *levelWriter {
	return &levelWriter{config: config, level: level, now: time.Now}
}

// Write implements io.Writer.
func (w *levelWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	date := w.now().Format("2006-01-02")
	if w.writer == nil || w.date != date {
		if w.writer != nil {
			_ = w.writer.Close()
		}
		w.writer = w.open(date)
		w.date = date
	}
	return w.writer.Write(p)
}

func (w *levelWriter) open(date string) *lumberjack.Logger {
	dirPath := filepath.Join(w.config.Director, date)
	if err := os.MkdirAll(dirPath, 0o755); err != nil {
		// Fall back to the base directory
		dirPath = w.config.Director
		_ = os.MkdirAll(dirPath, 0o755)
	}
	return &lumberjack.Logger{
		Filename:   filepath.Join(dirPath, w.level+".log"),
		MaxSize:    w.config.MaxSize,
		MaxBackups: w.config.MaxBackups,
		MaxAge:     w.config.MaxAge,
		Compress:   w.config.Compress,
		LocalTime:  true,
	}
}

// Sync implements zapcore.WriteSyncer. lumberjack writes through.
func (w *levelWriter) Sync() error { return nil }

// Close implements io.Closer.
func (w *levelWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.writer == nil {
		return nil
	}
	err := w.writer.Close()
	w.writer = nil
	return err
}

func closeWriters(writers []*levelWriter) error {
	var errs error
	for _, w := range writers {
		errs = multierr.Append(errs, w.Close())
	}
	return errs
}

var _ io.WriteCloser = (*levelWriter)(nil)
