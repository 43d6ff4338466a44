// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-sharechallenge.
//
// go-sharechallenge is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package logging provides the structured logger shared by the challenge
// coordinator, the share listener and the REST API.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jeremyhahn/go-sharechallenge/pkg/correlation"
)

// Level is a logging verbosity level.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Field is a structured key/value attached to a log record.
type Field = slog.Attr

// Logger is the logging interface used throughout the service.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
}

// String creates a string field.
func String(key, value string) Field { return slog.String(key, value) }

// Int creates an int field.
func Int(key string, value int) Field { return slog.Int(key, value) }

// Uint64 creates a uint64 field.
func Uint64(key string, value uint64) Field { return slog.Uint64(key, value) }

// Bool creates a bool field.
func Bool(key string, value bool) Field { return slog.Bool(key, value) }

// Duration creates a duration field.
func Duration(key string, value time.Duration) Field { return slog.Duration(key, value) }

// Any creates a field from an arbitrary value.
func Any(key string, value any) Field { return slog.Any(key, value) }

// Error creates an "error" field. A nil error is rendered as an empty string.
func Error(err error) Field {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

// SlogConfig configures a SlogAdapter.
type SlogConfig struct {
	// Level is the minimum level that is emitted (default: info)
	Level Level

	// Format is json, text or console (default: text)
	Format string

	// Output is where records are written (default: os.Stderr)
	Output io.Writer

	// Logger, when set, is used as-is and the other fields are ignored
	Logger *slog.Logger
}

// SlogAdapter implements Logger on top of log/slog.
type SlogAdapter struct {
	logger *slog.Logger
}

var _ Logger = (*SlogAdapter)(nil)

// NewSlogAdapter creates a Logger backed by log/slog.
func NewSlogAdapter(cfg *SlogConfig) *SlogAdapter {
	if cfg == nil {
		cfg = &SlogConfig{}
	}
	if cfg.Logger != nil {
		return &SlogAdapter{logger: cfg.Logger}
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(string(cfg.Level))}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	default:
		handler = slog.NewTextHandler(out, opts)
	}
	return &SlogAdapter{logger: slog.New(handler)}
}

// NewNopLogger returns a Logger that discards everything.
func NewNopLogger() *SlogAdapter {
	return NewSlogAdapter(&SlogConfig{Output: io.Discard, Level: LevelError})
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "fatal":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *SlogAdapter) Debug(msg string, fields ...Field) {
	l.logger.LogAttrs(context.Background(), slog.LevelDebug, msg, fields...)
}

func (l *SlogAdapter) Info(msg string, fields ...Field) {
	l.logger.LogAttrs(context.Background(), slog.LevelInfo, msg, fields...)
}

func (l *SlogAdapter) Warn(msg string, fields ...Field) {
	l.logger.LogAttrs(context.Background(), slog.LevelWarn, msg, fields...)
}

func (l *SlogAdapter) Error(msg string, fields ...Field) {
	l.logger.LogAttrs(context.Background(), slog.LevelError, msg, fields...)
}

// Infof logs a formatted informational message.
func (l *SlogAdapter) Infof(format string, args ...any) {
	l.Info(fmt.Sprintf(format, args...))
}

// With returns a child logger carrying the given fields.
func (l *SlogAdapter) With(fields ...Field) Logger {
	args := make([]any, len(fields))
	for i, f := range fields {
		args[i] = f
	}
	return &SlogAdapter{logger: l.logger.With(args...)}
}

// DebugContext logs at debug level, including the IDs carried by ctx.
func (l *SlogAdapter) DebugContext(ctx context.Context, msg string, fields ...Field) {
	l.logger.LogAttrs(ctx, slog.LevelDebug, msg, withCorrelation(ctx, fields)...)
}

// InfoContext logs at info level, including the correlation ID from ctx.
func (l *SlogAdapter) InfoContext(ctx context.Context, msg string, fields ...Field) {
	l.logger.LogAttrs(ctx, slog.LevelInfo, msg, withCorrelation(ctx, fields)...)
}

// WarnContext logs at warn level, including the correlation ID from ctx.
func (l *SlogAdapter) WarnContext(ctx context.Context, msg string, fields ...Field) {
	l.logger.LogAttrs(ctx, slog.LevelWarn, msg, withCorrelation(ctx, fields)...)
}

// Slog exposes the underlying *slog.Logger.
func (l *SlogAdapter) Slog() *slog.Logger {
	return l.logger
}

// ContextFields prepends the correlation and round IDs carried by ctx to
// fields, for loggers that only expose the plain Logger methods.
func ContextFields(ctx context.Context, fields ...Field) []Field {
	return withCorrelation(ctx, fields)
}

func withCorrelation(ctx context.Context, fields []Field) []Field {
	if id := correlation.GetRoundID(ctx); id != "" {
		fields = append([]Field{String("round_id", id)}, fields...)
	}
	if id := correlation.GetCorrelationID(ctx); id != "" {
		fields = append([]Field{String("correlation_id", id)}, fields...)
	}
	return fields
}
