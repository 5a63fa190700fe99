package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

var errInvalidLevel = errors.New("invalid log level")

// Logger wraps slog and stamps every record with the run and target it
// belongs to. The zero value discards everything.
type Logger struct {
	log    *slog.Logger
	RunID  string
	Kind   string
	Target string
}

func New(w io.Writer, level slog.Level) Logger {
	return Logger{
		log: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: level,
		})),
	}
}

// ParseLevel accepts debug, info, warn and error in any case.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: %q", errInvalidLevel, s)
	}
}

// WithRun returns a copy of l tagged with the given run ID.
func (l Logger) WithRun(id string) Logger {
	l.RunID = id
	return l
}

// WithTarget returns a copy of l tagged with a target kind and address.
func (l Logger) WithTarget(kind, target string) Logger {
	l.Kind = kind
	l.Target = target
	return l
}

func (l Logger) appendLoggerDetails(extra []any) []any {
	if l.RunID != "" {
		extra = append(extra, "run", l.RunID)
	}
	if l.Kind != "" {
		extra = append(extra, "kind", l.Kind)
	}
	if l.Target != "" {
		extra = append(extra, "target", l.Target)
	}

	return extra
}

func (l Logger) slog() *slog.Logger {
	if l.log == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l.log
}

func (l Logger) Debug(msg string, extra ...any) {
	l.slog().Debug(msg, l.appendLoggerDetails(extra)...)
}

func (l Logger) Info(msg string, extra ...any) {
	l.slog().Info(msg, l.appendLoggerDetails(extra)...)
}

func (l Logger) Warn(msg string, extra ...any) {
	l.slog().Warn(msg, l.appendLoggerDetails(extra)...)
}

func (l Logger) Error(msg string, extra ...any) {
	l.slog().Error(msg, l.appendLoggerDetails(extra)...)
}
