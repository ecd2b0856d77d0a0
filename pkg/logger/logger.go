// Package logger wraps log/slog with the field vocabulary used across
// the hub: typed attribute constructors plus shortcuts for the domain
// identifiers that show up in almost every log line.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Field is a structured log attribute.
type Field = slog.Attr

// Typed field constructors.
func String(key, value string) Field          { return slog.String(key, value) }
func Int(key string, value int) Field         { return slog.Int(key, value) }
func Int64(key string, value int64) Field     { return slog.Int64(key, value) }
func Float64(key string, value float64) Field { return slog.Float64(key, value) }
func Bool(key string, value bool) Field       { return slog.Bool(key, value) }
func Any(key string, value any) Field         { return slog.Any(key, value) }

// Duration renders the value in its human form, not nanoseconds.
func Duration(key string, value time.Duration) Field {
	return slog.String(key, value.String())
}

// Err is the conventional error attribute.
func Err(err error) Field {
	if err == nil {
		return slog.Any("error", nil)
	}
	return slog.String("error", err.Error())
}

// Domain identifier shortcuts.
func StudentID(id string) Field    { return String("student_id", id) }
func ExamID(id string) Field       { return String("exam_id", id) }
func GradeID(id string) Field      { return String("grade_id", id) }
func GraduationID(id string) Field { return String("graduation_id", id) }
func BeltRank(rank string) Field   { return String("belt_rank", rank) }

// Logger emits JSON log lines through an slog handler.
type Logger struct {
	s *slog.Logger
}

// Options configures a Logger.
type Options struct {
	Output io.Writer
	Level  slog.Level
}

// ParseLevel maps a config string to an slog level. Unknown values
// default to Info.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates a Logger writing JSON to the given output.
func New(opts Options) *Logger {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	handler := slog.NewJSONHandler(opts.Output, &slog.HandlerOptions{Level: opts.Level})
	return &Logger{s: slog.New(handler)}
}

// Default returns an Info-level logger on stdout.
func Default() *Logger {
	return New(Options{Level: slog.LevelInfo})
}

// With returns a logger that includes the fields on every line.
func (l *Logger) With(fields ...Field) *Logger {
	return &Logger{s: slog.New(l.s.Handler().WithAttrs(fields))}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.emit(slog.LevelDebug, msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { l.emit(slog.LevelInfo, msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.emit(slog.LevelWarn, msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { l.emit(slog.LevelError, msg, fields) }

// Fatal logs at Error level and terminates the process.
func (l *Logger) Fatal(msg string, fields ...Field) {
	l.emit(slog.LevelError, msg, fields)
	os.Exit(1)
}

func (l *Logger) emit(level slog.Level, msg string, fields []Field) {
	l.s.LogAttrs(context.Background(), level, msg, fields...)
}
