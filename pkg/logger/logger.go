// Package logger provides structured logging utilities
package logger

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logger configuration
type Config struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error, fatal
	Format string `yaml:"format" mapstructure:"format"` // text or json
	Output string `yaml:"output" mapstructure:"output"` // stdout, stderr, or file path
}

var (
	mu    sync.RWMutex
	base  = zap.NewNop()
	sugar = base.Sugar()
)

func init() {
	// Usable before Init so packages can log during tests.
	l, err := build(Config{Level: "info", Format: "text"})
	if err == nil {
		setBase(l)
	}
}

// Init initializes the logger with configuration
func Init(cfg Config) {
	l, err := build(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v, falling back to stderr\n", err)
		l, _ = build(Config{Level: cfg.Level, Format: cfg.Format, Output: "stderr"})
	}
	if l != nil {
		setBase(l)
	}
}

func build(cfg Config) (*zap.Logger, error) {
	var zcfg zap.Config
	if strings.EqualFold(strings.TrimSpace(cfg.Format), "json") {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	zcfg.Level = zap.NewAtomicLevelAt(parseLevel(cfg.Level))
	zcfg.DisableStacktrace = true

	switch out := strings.TrimSpace(cfg.Output); strings.ToLower(out) {
	case "", "stdout":
		zcfg.OutputPaths = []string{"stdout"}
		zcfg.ErrorOutputPaths = []string{"stderr"}
	case "stderr":
		zcfg.OutputPaths = []string{"stderr"}
		zcfg.ErrorOutputPaths = []string{"stderr"}
	default:
		zcfg.OutputPaths = []string{out}
		zcfg.ErrorOutputPaths = []string{out}
	}
	return zcfg.Build(zap.AddCallerSkip(1))
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func setBase(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	base = l
	sugar = l.Sugar()
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// Zap returns the underlying logger for libraries that take a *zap.Logger
func Zap() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base.WithOptions(zap.AddCallerSkip(-1))
}

// Sync flushes buffered entries
func Sync() {
	_ = current().Sync()
}

// Debug logs debug message (only shown when level=debug)
func Debug(msg string) { current().Debug(msg) }

// Debugf logs formatted debug message
func Debugf(format string, args ...interface{}) { current().Debugf(format, args...) }

// Info logs info message
func Info(msg string) { current().Info(msg) }

// Infof logs formatted info message
func Infof(format string, args ...interface{}) { current().Infof(format, args...) }

// Warn logs warning message
func Warn(msg string) { current().Warn(msg) }

// Warnf logs formatted warning message
func Warnf(format string, args ...interface{}) { current().Warnf(format, args...) }

// Error logs error message
func Error(msg string) { current().Error(msg) }

// Errorf logs formatted error message
func Errorf(format string, args ...interface{}) { current().Errorf(format, args...) }

// Fatal logs fatal message and exits
func Fatal(msg string) { current().Fatal(msg) }

// Fatalf logs formatted fatal message and exits
func Fatalf(format string, args ...interface{}) { current().Fatalf(format, args...) }

// WithFields returns a logger carrying structured fields
func WithFields(fields map[string]interface{}) *FieldLogger {
	kvs := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		kvs = append(kvs, k, v)
	}
	return &FieldLogger{sugar: current().With(kvs...)}
}

// FieldLogger allows structured logging with fields
type FieldLogger struct {
	sugar *zap.SugaredLogger
}

func (l *FieldLogger) Debug(msg string) { l.sugar.Debug(msg) }

func (l *FieldLogger) Info(msg string) { l.sugar.Info(msg) }

func (l *FieldLogger) Warn(msg string) { l.sugar.Warn(msg) }

func (l *FieldLogger) Error(msg string) { l.sugar.Error(msg) }

// With adds more fields
func (l *FieldLogger) With(key string, value interface{}) *FieldLogger {
	return &FieldLogger{sugar: l.sugar.With(key, value)}
}

// HTTP logs HTTP protocol activity
func HTTP(method, path string, status, latencyMs int) {
	WithFields(map[string]interface{}{
		"protocol": "http",
		"method":   method,
		"path":     path,
		"status":   status,
		"latency":  latencyMs,
	}).Info(fmt.Sprintf("HTTP %s %s %d - %dms", method, path, status, latencyMs))
}

// WebSocket logs WebSocket activity
func WebSocket(event string, learnerID string) {
	WithFields(map[string]interface{}{
		"protocol":   "websocket",
		"event":      event,
		"learner_id": learnerID,
	}).Info(fmt.Sprintf("WebSocket %s", event))
}

// Context-aware logging (for request tracing)
type contextKey string

const requestIDKey contextKey = "request_id"

// ContextWithRequestID stores a request id for WithRequestID
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithRequestID extracts request ID from context and logs with it
func WithRequestID(ctx context.Context) *FieldLogger {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return WithFields(map[string]interface{}{
			"request_id": requestID,
		})
	}
	return WithFields(nil)
}
