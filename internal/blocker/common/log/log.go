// Package log is the process-wide structured logger. Call sites pass a field
// map and a message; the zap backend is configured once at startup.
package log

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	global Logger = newZapLogger(false, zapcore.InfoLevel)
)

// Logger is the logging contract every component receives in its options.
type Logger interface {
	Info(fields map[string]any, msg string)
	Error(fields map[string]any, msg string)
	Debug(fields map[string]any, msg string)
	Warn(fields map[string]any, msg string)
	Panic(fields map[string]any, msg string)
	Fatal(fields map[string]any, msg string)
}

// SetLogger replaces the global logger instance.
func SetLogger(l Logger) {
	mu.Lock()
	global = l
	mu.Unlock()
}

// GetLogger returns the current global logger instance.
func GetLogger() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// Configure sets up the global logger. Any env other than "prod" selects the
// development encoder.
func Configure(env, level string) error {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	SetLogger(newZapLogger(env != "prod", lvl))
	return nil
}

// Component returns a logger that tags every entry with component=name.
func Component(l Logger, name string) Logger {
	if l == nil {
		l = GetLogger()
	}
	return &componentLogger{next: l, name: name}
}

func Info(fields map[string]any, msg string)  { GetLogger().Info(fields, msg) }
func Error(fields map[string]any, msg string) { GetLogger().Error(fields, msg) }
func Debug(fields map[string]any, msg string) { GetLogger().Debug(fields, msg) }
func Warn(fields map[string]any, msg string)  { GetLogger().Warn(fields, msg) }
func Panic(fields map[string]any, msg string) { GetLogger().Panic(fields, msg) }
func Fatal(fields map[string]any, msg string) { GetLogger().Fatal(fields, msg) }

type zapLogger struct {
	base *zap.Logger
}

func newZapLogger(dev bool, level zapcore.Level) Logger {
	var config zap.Config
	if dev {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}
	config.Level = zap.NewAtomicLevelAt(level)
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.MessageKey = "msg"
	config.EncoderConfig.LevelKey = "level"

	logger, err := config.Build(zap.AddCallerSkip(1))
	if err != nil {
		logger = zap.NewNop()
	}
	return &zapLogger{base: logger}
}

func (l *zapLogger) Info(fields map[string]any, msg string)  { l.base.Info(msg, zapFields(fields)...) }
func (l *zapLogger) Error(fields map[string]any, msg string) { l.base.Error(msg, zapFields(fields)...) }
func (l *zapLogger) Debug(fields map[string]any, msg string) { l.base.Debug(msg, zapFields(fields)...) }
func (l *zapLogger) Warn(fields map[string]any, msg string)  { l.base.Warn(msg, zapFields(fields)...) }
func (l *zapLogger) Panic(fields map[string]any, msg string) { l.base.Panic(msg, zapFields(fields)...) }
func (l *zapLogger) Fatal(fields map[string]any, msg string) { l.base.Fatal(msg, zapFields(fields)...) }

// zapFields converts the field map, rendering errors as their message.
func zapFields(m map[string]any) []zap.Field {
	fields := make([]zap.Field, 0, len(m))
	for k, v := range m {
		if err, ok := v.(error); ok {
			fields = append(fields, zap.String(k, err.Error()))
			continue
		}
		fields = append(fields, zap.Any(k, v))
	}
	return fields
}

type componentLogger struct {
	next Logger
	name string
}

func (c *componentLogger) tag(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["component"] = c.name
	return out
}

func (c *componentLogger) Info(f map[string]any, msg string)  { c.next.Info(c.tag(f), msg) }
func (c *componentLogger) Error(f map[string]any, msg string) { c.next.Error(c.tag(f), msg) }
func (c *componentLogger) Debug(f map[string]any, msg string) { c.next.Debug(c.tag(f), msg) }
func (c *componentLogger) Warn(f map[string]any, msg string)  { c.next.Warn(c.tag(f), msg) }
func (c *componentLogger) Panic(f map[string]any, msg string) { c.next.Panic(c.tag(f), msg) }
func (c *componentLogger) Fatal(f map[string]any, msg string) { c.next.Fatal(c.tag(f), msg) }

type noopLogger struct{}

func (n *noopLogger) Info(map[string]any, string)  {}
func (n *noopLogger) Error(map[string]any, string) {}
func (n *noopLogger) Debug(map[string]any, string) {}
func (n *noopLogger) Warn(map[string]any, string)  {}
func (n *noopLogger) Panic(map[string]any, string) {}
func (n *noopLogger) Fatal(map[string]any, string) {}

// NewNoopLogger returns a Logger that discards everything.
func NewNoopLogger() Logger {
	return &noopLogger{}
}
