package gologger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-webhook-ingest/core"
)

const levelTrace = slog.Level(-8)

// Logger is a glog.Logger backed by log/slog.
type Logger struct {
	logger *slog.Logger
	ctx    context.Context
}

func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewJSONHandler(os.Stdout, nil)
	}
	return &Logger{logger: slog.New(handler), ctx: context.Background()}
}

// NewHandler builds a JSON or text handler at the configured level.
func NewHandler(w io.Writer, config core.LoggingConfig) slog.Handler {
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(config.Level)}
	switch strings.ToLower(strings.TrimSpace(config.Format)) {
	case "text":
		return slog.NewTextHandler(w, opts)
	default:
		return slog.NewJSONHandler(w, opts)
	}
}

// ParseLevel maps trace, debug, info, warn and error. Unknown values are info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return levelTrace
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *Logger) Trace(msg string, args ...any) { l.log(levelTrace, msg, args...) }
func (l *Logger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.log(slog.LevelInfo, msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.log(slog.LevelWarn, msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args...) }

// Fatal logs at error level with fatal=true. It does not exit the process.
func (l *Logger) Fatal(msg string, args ...any) {
	l.log(slog.LevelError, msg, append(args, "fatal", true)...)
}

func (l *Logger) WithContext(ctx context.Context) glog.Logger {
	if l == nil {
		return glog.Nop()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &Logger{logger: l.logger, ctx: ctx}
}

func (l *Logger) WithFields(fields map[string]any) glog.Logger {
	if l == nil {
		return glog.Nop()
	}
	if len(fields) == 0 {
		return l
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return &Logger{logger: l.logger.With(args...), ctx: l.ctx}
}

func (l *Logger) log(level slog.Level, msg string, args ...any) {
	if l == nil || l.logger == nil {
		return
	}
	ctx := l.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	l.logger.Log(ctx, level, msg, args...)
}

// Provider hands out loggers tagged with a component name.
type Provider struct {
	root *Logger
}

func NewProvider(root *Logger) *Provider {
	if root == nil {
		root = NewLogger(nil)
	}
	return &Provider{root: root}
}

func (p *Provider) GetLogger(name string) glog.Logger {
	if p == nil || p.root == nil {
		return glog.Nop()
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return p.root
	}
	return &Logger{logger: p.root.logger.With("logger", name), ctx: p.root.ctx}
}

var (
	_ glog.Logger         = (*Logger)(nil)
	_ glog.FieldsLogger   = (*Logger)(nil)
	_ glog.LoggerProvider = (*Provider)(nil)
)
