package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log *zap.Logger

func init() {
	log = zap.Must(zap.NewProduction())
}

// Configure replaces the package logger. level accepts zap level strings
// ("debug", "info", "warn", "error"); unknown values keep info.
func Configure(level string, development bool) error {
	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	var lvl zapcore.Level
	if err := lvl.Set(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	l, err := cfg.Build()
	if err != nil {
		return err
	}
	log = l
	return nil
}

// L returns the underlying zap logger for components that carry their own.
func L() *zap.Logger {
	return log
}

func Debug(msg string, fields ...zap.Field) {
	log.Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	log.Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	log.Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	log.Error(msg, fields...)
}

// Sync flushes buffered log entries; call on shutdown.
func Sync() {
	_ = log.Sync()
}
