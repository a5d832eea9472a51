// Package logger is a zap-backed structured logger carried in context.
//
// Package-level helpers (Info, Warn, ...) pick the logger bound to ctx and
// add the trace and acting-user fields found there.
package logger

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	appctx "audittrail/internal/core/context"
)

// Logger wraps zap.SugaredLogger.
type Logger struct {
	*zap.SugaredLogger
}

// Config holds logger configuration.
type Config struct {
	Level       string // debug, info, warn, error; anything else means info
	Development bool   // console encoder with colored levels
	OutputPaths []string
}

// New builds a Logger from cfg.
func New(cfg Config) (*Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	if len(cfg.OutputPaths) > 0 {
		zc.OutputPaths = cfg.OutputPaths
	}

	zl, err := zc.Build(zap.AddCallerSkip(callerSkip))
	if err != nil {
		return nil, err
	}
	return &Logger{zl.Sugar()}, nil
}

// NewFromCore builds a Logger on an existing core, e.g. zaptest/observer.
func NewFromCore(core zapcore.Core) *Logger {
	return &Logger{zap.New(core).Sugar()}
}

// WithComponent tags every entry with component=name.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{l.SugaredLogger.With("component", name)}
}

// callerSkip hides the package helpers and logw from reported callers.
const callerSkip = 2

var fallback = sync.OnceValue(func() *Logger {
	l, err := New(Config{Level: "info"})
	if err != nil {
		return &Logger{zap.NewNop().Sugar()}
	}
	return l
})

type loggerKey struct{}

// WithLogger binds l to ctx.
func WithLogger(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext returns the logger bound to ctx, or a stderr logger at info
// level, enriched with the trace and user of ctx.
func FromContext(ctx context.Context) *Logger {
	l, ok := ctx.Value(loggerKey{}).(*Logger)
	if !ok {
		l = fallback()
	}
	if fields := contextFields(ctx); len(fields) > 0 {
		return &Logger{l.SugaredLogger.With(fields...)}
	}
	return l
}

func contextFields(ctx context.Context) []any {
	var fields []any
	if t := appctx.GetTrace(ctx); t != nil {
		fields = append(fields, "trace_id", t.TraceID, "request_id", t.RequestID)
	}
	if u := appctx.GetUser(ctx); u != nil {
		fields = append(fields, "user_id", u.UserID)
	}
	return fields
}

func logw(ctx context.Context, lvl zapcore.Level, msg string, kv []any) {
	FromContext(ctx).Logw(lvl, msg, kv...)
}

func Debug(ctx context.Context, msg string, kv ...any) { logw(ctx, zapcore.DebugLevel, msg, kv) }
func Info(ctx context.Context, msg string, kv ...any)  { logw(ctx, zapcore.InfoLevel, msg, kv) }
func Warn(ctx context.Context, msg string, kv ...any)  { logw(ctx, zapcore.WarnLevel, msg, kv) }
func Error(ctx context.Context, msg string, kv ...any) { logw(ctx, zapcore.ErrorLevel, msg, kv) }
