package logger

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type loggers struct {
	log   *zap.Logger
	sugar *zap.SugaredLogger
}

var current atomic.Pointer[loggers]

// Init builds and installs the logger for mode: "production" (JSON, the
// default) or "development" (console, debug level).
func Init(mode string) error {
	var cfg zap.Config
	switch mode {
	case "", "production":
		cfg = zap.NewProductionConfig()
	case "development":
		cfg = zap.NewDevelopmentConfig()
	default:
		return fmt.Errorf("unknown log mode %q", mode)
	}
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build %s logger: %w", mode, err)
	}
	Use(l)
	return nil
}

// Use installs l as the package logger and as zap's globals.
func Use(l *zap.Logger) {
	zap.ReplaceGlobals(l)
	if old := current.Swap(&loggers{log: l, sugar: l.Sugar()}); old != nil {
		_ = old.log.Sync()
	}
}

// Log falls back to zap.L() before Init.
func Log() *zap.Logger {
	if c := current.Load(); c != nil {
		return c.log
	}
	return zap.L()
}

func S() *zap.SugaredLogger {
	if c := current.Load(); c != nil {
		return c.sugar
	}
	return zap.S()
}

func Sync() {
	if c := current.Load(); c != nil {
		_ = c.log.Sync()
	}
}
