// Package log is the application logging interface.
//
// Loggers are built on log/slog. Records carry the otel trace and span ids
// of the context they are logged with, a stack at or above a configured
// level, and for Error the error chain and type information. Keys that name
// secrets are redacted no matter who logs them.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

type Logger interface {
	With(kv ...any) Logger

	Debug(ctx context.Context, msg string, kv ...any)
	Info(ctx context.Context, msg string, kv ...any)
	Warn(ctx context.Context, msg string, kv ...any)
	Error(ctx context.Context, err error, msg string, kv ...any)

	Sync() error
}

type Options struct {
	App         string
	Version     string
	Environment string

	Level           slog.Level
	StacktraceLevel slog.Level // 0 means error

	// JsonFormat selects JSON lines; otherwise human readable text.
	JsonFormat bool
	// Color enables ANSI colors in text output.
	Color bool

	MaxErrorLinks     int
	IncludeErrorLinks bool

	Writer io.Writer // default os.Stdout
}

func New(opts Options) (Logger, error) { return newSlog(opts) }

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func ParseLevel(s string) (slog.Level, error) {
	if lvl, ok := levels[strings.ToLower(strings.TrimSpace(s))]; ok {
		return lvl, nil
	}
	return 0, fmt.Errorf("unknown log level %q (valid levels are debug|info|warn|error)", s)
}
