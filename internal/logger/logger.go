// Package logger builds the process-wide slog logger: colored console output
// on stderr and, optionally, a rotated JSON log file.
package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"
)

type options struct {
	level      slog.Level
	console    io.Writer
	noColor    bool
	logFile    string
	maxSizeMB  int
	maxBackups int
}

// Option configures New.
type Option func(*options)

// WithLevel sets the minimum level for both sinks.
func WithLevel(level slog.Level) Option {
	return func(o *options) { o.level = level }
}

// WithConsole redirects console output, stderr by default.
func WithConsole(w io.Writer) Option {
	return func(o *options) { o.console = w }
}

// WithNoColor disables ANSI colors on the console.
func WithNoColor(noColor bool) Option {
	return func(o *options) { o.noColor = noColor }
}

// WithLogFile tees JSON records into path, rotating at maxSizeMB.
func WithLogFile(path string, maxSizeMB, maxBackups int) Option {
	return func(o *options) {
		o.logFile = path
		o.maxSizeMB = maxSizeMB
		o.maxBackups = maxBackups
	}
}

// New returns a logger and a closer for the log file, if any.
func New(opts ...Option) (*slog.Logger, io.Closer) {
	o := options{
		level:   slog.LevelInfo,
		console: os.Stderr,
	}
	for _, opt := range opts {
		opt(&o)
	}

	console := tint.NewHandler(o.console, &tint.Options{
		Level:      o.level,
		TimeFormat: time.TimeOnly,
		NoColor:    o.noColor,
	})
	if o.logFile == "" {
		return slog.New(console), nopCloser{}
	}

	file := &lumberjack.Logger{
		Filename:   o.logFile,
		MaxSize:    o.maxSizeMB,
		MaxBackups: o.maxBackups,
	}
	jsonHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: o.level})

	return slog.New(slogmulti.Fanout(console, jsonHandler)), file
}

// ParseLevel maps a level name to slog.Level, falling back to info.
func ParseLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return level
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
