// Package logging is SafeScan's structured logger. Components depend on the
// Logger interface; the zap core behind it is configured once in main.
package logging

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	// Fatal exits the process after logging. Use it for startup failures only.
	Fatal(msg string, fields ...Field)
	With(fields ...Field) Logger
	// Named extends the dotted logger name, so "app" becomes "app.http".
	Named(name string) Logger
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level" json:"level"`
	// Format is json or console.
	Format           string   `mapstructure:"format" yaml:"format" json:"format"`
	OutputPaths      []string `mapstructure:"output_paths" yaml:"output_paths" json:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths" yaml:"error_output_paths" json:"error_output_paths"`
}

// level is shared by every logger NewLogger builds, so SetLevel applies
// process-wide.
var level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

func parseLevel(s string) zapcore.Level {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(s))); err != nil || l < zapcore.DebugLevel || l > zapcore.ErrorLevel {
		return zapcore.InfoLevel
	}
	return l
}

// SetLevel changes the minimum level. Unknown names mean info.
func SetLevel(name string) { level.SetLevel(parseLevel(name)) }

func CurrentLevel() string { return level.Level().String() }

// NewLogger builds a zap logger. Nil OutputPaths means stdout; an explicitly
// empty slice is an error.
func NewLogger(cfg LogConfig) (Logger, error) {
	switch {
	case cfg.OutputPaths == nil:
		cfg.OutputPaths = []string{"stdout"}
	case len(cfg.OutputPaths) == 0:
		return nil, fmt.Errorf("logging: no output paths")
	}
	if len(cfg.ErrorOutputPaths) == 0 {
		cfg.ErrorOutputPaths = []string{"stderr"}
	}

	console := cfg.Format == "console"
	zc := zap.NewProductionConfig()
	if console {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	zc.Sampling = nil
	zc.OutputPaths = cfg.OutputPaths
	zc.ErrorOutputPaths = cfg.ErrorOutputPaths
	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	level.SetLevel(parseLevel(cfg.Level))
	z, err := zc.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("logging: build: %w", err)
	}
	return zapLogger{z}, nil
}

// NewDevelopmentLogger is the CLI's console logger at debug level.
func NewDevelopmentLogger() Logger {
	l, err := NewLogger(LogConfig{Level: LevelDebug, Format: "console"})
	if err != nil {
		return NewNopLogger()
	}
	return l
}

// NewLoggerFromCore wraps core; tests pass an observer core.
func NewLoggerFromCore(core zapcore.Core) Logger {
	return zapLogger{zap.New(core, zap.AddCallerSkip(1))}
}

func NewNopLogger() Logger { return zapLogger{zap.NewNop()} }

type zapLogger struct{ z *zap.Logger }

func (l zapLogger) Debug(msg string, fields ...Field) { l.z.Debug(msg, fields...) }
func (l zapLogger) Info(msg string, fields ...Field)  { l.z.Info(msg, fields...) }
func (l zapLogger) Warn(msg string, fields ...Field)  { l.z.Warn(msg, fields...) }
func (l zapLogger) Error(msg string, fields ...Field) { l.z.Error(msg, fields...) }
func (l zapLogger) Fatal(msg string, fields ...Field) { l.z.Fatal(msg, fields...) }
func (l zapLogger) With(fields ...Field) Logger       { return zapLogger{l.z.With(fields...)} }
func (l zapLogger) Named(name string) Logger          { return zapLogger{l.z.Named(name)} }

type holder struct{ Logger }

var defaultLogger atomic.Pointer[holder]

// SetDefault replaces the process-wide logger. Nil is ignored.
func SetDefault(l Logger) {
	if l != nil {
		defaultLogger.Store(&holder{l})
	}
}

// Default returns the process-wide logger, a no-op one until SetDefault.
func Default() Logger {
	if h := defaultLogger.Load(); h != nil {
		return h.Logger
	}
	return NewNopLogger()
}

type ctxKey struct{}

// WithContext stores l in ctx for request-scoped logging.
func WithContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored in ctx, or fallback.
func FromContext(ctx context.Context, fallback Logger) Logger {
	if ctx == nil {
		return fallback
	}
	if l, ok := ctx.Value(ctxKey{}).(Logger); ok && l != nil {
		return l
	}
	return fallback
}
