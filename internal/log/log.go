package log

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/xerrors"
)

// Logger is the structured logger used across the server. kv arguments are
// alternating string keys and values.
type Logger interface {
	With(kv ...any) Logger

	Debug(ctx context.Context, msg string, kv ...any)
	Info(ctx context.Context, msg string, kv ...any)
	Warn(ctx context.Context, msg string, kv ...any)
	Error(ctx context.Context, err error, msg string, kv ...any)

	Sync() error
}

// Options configures New.
type Options struct {
	App     string
	Version string
	Commit  string
	BuildId string

	Level           slog.Level
	StacktraceLevel slog.Level // records at or above get a "stack" attribute; defaults to error

	JsonFormat bool
	// ConsoleFormat renders human readable lines for local runs and takes
	// precedence over JsonFormat.
	ConsoleFormat bool

	IncludeErrorLinks bool
	MaxErrorLinks     int

	Writer io.Writer // defaults to stdout
}

// New builds the slog backed Logger.
func New(opts Options) (Logger, error) { return newSlog(opts) }

// ParseLevel maps a --log-level value onto a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, xerrors.Newf("unknown log level %q (valid levels are debug|info|warn|error)", s)
	}
}
