/**
 * @description
 * Structured logger for the Kyotei pipeline.
 * Keeps the printf helpers used across the codebase and adds job-scoped entries
 * so every line carries a timestamp, the job name and key=value fields.
 *
 * @dependencies
 * - github.com/sirupsen/logrus
 * - gopkg.in/natefinch/lumberjack.v2: rotation when LOG_FILE is set
 */

package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Fields is an alias so callers don't import logrus directly.
type Fields = logrus.Fields

var std = New(os.Stdout)

// New creates a new logger that writes to the specified writer
func New(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		DisableColors:   true,
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// Configure applies level and output settings. An empty file keeps stdout.
func Configure(level, file string) {
	if lvl, err := logrus.ParseLevel(strings.ToLower(level)); err == nil {
		std.SetLevel(lvl)
	}
	if file != "" {
		std.SetOutput(&lumberjack.Logger{
			Filename:   file,
			MaxSize:    50,
			MaxBackups: 7,
			Compress:   true,
		})
	}
}

// Default returns the process logger.
func Default() *logrus.Logger { return std }

// WithJob returns an entry tagged with the job name.
func WithJob(name string) *logrus.Entry {
	return std.WithField("job", name)
}

// WithFields returns an entry carrying the given fields.
func WithFields(fields Fields) *logrus.Entry {
	return std.WithFields(fields)
}

// Info logs an info message
func Info(format string, v ...interface{}) {
	std.Info(fmt.Sprintf(format, v...))
}

// Warn logs a warning
func Warn(format string, v ...interface{}) {
	std.Warn(fmt.Sprintf(format, v...))
}

// Error logs an error message
func Error(format string, v ...interface{}) {
	std.Error(fmt.Sprintf(format, v...))
}

// Fatal logs an error and exits with status 1
func Fatal(format string, v ...interface{}) {
	std.Fatal(fmt.Sprintf(format, v...))
}
