// Package logging provides structured logging for the SnapNote core.
//
// The UI layers above the core tail this output, so entries are emitted as
// one JSON object per line via logrus.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Fields carries structured context for a log entry.
type Fields = logrus.Fields

var (
	global *logrus.Logger
	once   sync.Once
	mu     sync.RWMutex
)

// Init initializes the global logger. Subsequent calls are no-ops.
func Init(out io.Writer, level string) {
	once.Do(func() {
		l := logrus.New()
		l.SetOutput(out)
		l.SetFormatter(&logrus.JSONFormatter{})
		l.SetLevel(parseLevel(level))

		mu.Lock()
		global = l
		mu.Unlock()
	})
}

// Get returns the global logger instance.
func Get() *logrus.Logger {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l != nil {
		return l
	}

	Init(os.Stdout, "info")

	mu.RLock()
	defer mu.RUnlock()
	return global
}

// parseLevel maps a config string onto a logrus level, defaulting to info.
func parseLevel(level string) logrus.Level {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return logrus.InfoLevel
	}
	return parsed
}

// Debug logs a debug message with optional structured context.
func Debug(message string, fields Fields) {
	Get().WithFields(fields).Debug(message)
}

// Info logs an info message with optional structured context.
func Info(message string, fields Fields) {
	Get().WithFields(fields).Info(message)
}

// Warn logs a warning message with optional structured context.
func Warn(message string, fields Fields) {
	Get().WithFields(fields).Warn(message)
}

// Error logs an error message with the triggering error attached.
func Error(message string, err error, fields Fields) {
	entry := Get().WithFields(fields)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Error(message)
}
