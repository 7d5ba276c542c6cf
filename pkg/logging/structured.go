// Package logging provides the structured logging used across the engine:
// the Vamana/IVF indexes, the top-level facade, and the command-line
// tools all log through the package-level logger returned by Get.
package logging

import (
	"log/slog"
	"os"
	"strings"
	"time"
)

// Level extends slog's four levels with the three engine-specific ones
// named in spec.md §6: "trace" (finer than debug), "critical" (above
// error) and "off" (no output at all).
type Level string

const (
	LevelTrace    Level = "trace"
	LevelDebug    Level = "debug"
	LevelInfo     Level = "info"
	LevelWarn     Level = "warn"
	LevelError    Level = "error"
	LevelCritical Level = "critical"
	LevelOff      Level = "off"
)

// Config controls where and how the package logger writes.
type Config struct {
	Level Level
	Sink  string // "stdout", "stderr", "null", or "file:/path"
}

// DefaultConfig mirrors the teacher's info/stdout default.
func DefaultConfig() *Config {
	return &Config{Level: LevelInfo, Sink: "stdout"}
}

// ConfigFromEnv reads SVS_LOG_LEVEL and SVS_LOG_SINK, falling back to
// DefaultConfig for anything unset.
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()
	if lvl := os.Getenv("SVS_LOG_LEVEL"); lvl != "" {
		cfg.Level = Level(strings.ToLower(lvl))
	}
	if sink := os.Getenv("SVS_LOG_SINK"); sink != "" {
		cfg.Sink = sink
	}
	return cfg
}

var (
	current   *slog.Logger
	currentLv Level
	openFile  *os.File
)

func init() {
	Reset()
}

// Reset re-initializes the package logger from the environment. Exposed so
// tests can restore a clean global logging state between cases, per
// spec.md §9's note on resettable global state.
func Reset() {
	configure(ConfigFromEnv())
}

// Configure applies cfg explicitly, bypassing the environment. No
// package in this module calls it.
func Configure(cfg *Config) {
	configure(cfg)
}

func configure(cfg *Config) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if openFile != nil {
		_ = openFile.Close()
		openFile = nil
	}

	if cfg.Level == LevelOff {
		current = slog.New(slog.NewJSONHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 64}))
		currentLv = LevelOff
		slog.SetDefault(current)
		return
	}

	var w *os.File
	switch {
	case cfg.Sink == "" || cfg.Sink == "stdout":
		w = os.Stdout
	case cfg.Sink == "stderr":
		w = os.Stderr
	case cfg.Sink == "null":
		current = slog.New(slog.NewJSONHandler(discardWriter{}, &slog.HandlerOptions{}))
		currentLv = cfg.Level
		slog.SetDefault(current)
		return
	case strings.HasPrefix(cfg.Sink, "file:"):
		path := strings.TrimPrefix(cfg.Sink, "file:")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			w = os.Stderr
		} else {
			w = f
			openFile = f
		}
	default:
		w = os.Stdout
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slogLevel(cfg.Level)})
	current = slog.New(handler)
	currentLv = cfg.Level
	slog.SetDefault(current)
}

func slogLevel(l Level) slog.Level {
	switch l {
	case LevelTrace:
		return slog.LevelDebug - 4
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	case LevelCritical:
		return slog.LevelError + 4
	default:
		return slog.LevelInfo
	}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// Get returns the package logger, initializing it from the environment on
// first use.
func Get() *slog.Logger {
	if current == nil {
		Reset()
	}
	return current
}

// CurrentLevel reports the level configure/Reset was last called with.
func CurrentLevel() Level { return currentLv }

func Debug(msg string, args ...any) { Get().Debug(msg, args...) }
func Info(msg string, args ...any)  { Get().Info(msg, args...) }
func Warn(msg string, args ...any)  { Get().Warn(msg, args...) }
func Error(msg string, args ...any) { Get().Error(msg, args...) }

// Trace logs below Debug; only visible when the configured level is trace.
func Trace(msg string, args ...any) {
	Get().Log(nil, slogLevel(LevelTrace), msg, args...)
}

// WithFields returns a logger with the given key/value pairs attached,
// matching the teacher's WithFields helper.
func WithFields(fields map[string]any) *slog.Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return Get().With(args...)
}

// LogIndexOperation logs a build/insert/delete/search/consolidate/compact
// call against an index, the ANN-domain analogue of the teacher's
// LogVectorOperation/LogDatabase helpers.
func LogIndexOperation(operation, indexKind string, n int, latency time.Duration, err error) {
	args := []any{
		"operation", operation,
		"index_kind", indexKind,
		"count", n,
		"latency_ms", latency.Milliseconds(),
	}
	if err != nil {
		args = append(args, "error", err.Error())
		Get().Error("index operation", args...)
		return
	}
	Get().Info("index operation", args...)
}
