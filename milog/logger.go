// Package milog is the process-wide logger. It wraps a zap JSON core so
// that every component logs with the same encoder, level and sink.
package milog

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level defines the priority of a log message.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

func (lv Level) toZapLevel() zapcore.Level {
	switch lv {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelInfo:
		return zapcore.InfoLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	case LevelFatal:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseLevel maps a textual level to a Level. Unknown input yields LevelInfo and an error.
func ParseLevel(levelStr string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "fatal":
		return LevelFatal, nil
	}
	return LevelInfo, fmt.Errorf("invalid log level: '%s'", levelStr)
}

var (
	mu    sync.RWMutex
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	sink  zapcore.WriteSyncer
	sugar *zap.SugaredLogger
)

func init() {
	sink = zapcore.Lock(os.Stderr)
	rebuild()
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return cfg
}

// rebuild must be called with mu held for writing (or from init).
func rebuild() {
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), sink, level)
	sugar = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
}

func get() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// SetLevel sets the level below which logs are discarded. Safe for concurrent use.
func SetLevel(lv Level) {
	level.SetLevel(lv.toZapLevel())
}

// SetOutput redirects all subsequent log lines to w.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	sink = zapcore.Lock(zapcore.AddSync(w))
	rebuild()
}

// Sync flushes buffered log entries.
func Sync() error {
	return get().Sync()
}

func Debugf(format string, v ...any) { get().Debugf(format, v...) }
func Infof(format string, v ...any)  { get().Infof(format, v...) }
func Warnf(format string, v ...any)  { get().Warnf(format, v...) }
func Errorf(format string, v ...any) { get().Errorf(format, v...) }

// Fatalf logs and then calls os.Exit(1).
func Fatalf(format string, v ...any) { get().Fatalf(format, v...) }

func Debug(v ...any) { get().Debug(v...) }
func Info(v ...any)  { get().Info(v...) }
func Warn(v ...any)  { get().Warn(v...) }
func Error(v ...any) { get().Error(v...) }
func Fatal(v ...any) { get().Fatal(v...) }

// Debugw and friends attach alternating key/value pairs as structured fields.
func Debugw(msg string, keysAndValues ...any) { get().Debugw(msg, keysAndValues...) }
func Infow(msg string, keysAndValues ...any)  { get().Infow(msg, keysAndValues...) }
func Warnw(msg string, keysAndValues ...any)  { get().Warnw(msg, keysAndValues...) }
func Errorw(msg string, keysAndValues ...any) { get().Errorw(msg, keysAndValues...) }
