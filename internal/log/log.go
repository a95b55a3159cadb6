package log

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu         sync.RWMutex
	sugar      *zap.SugaredLogger
	atomicLvl  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	loggerOnce sync.Once
)

// initLogger installs a console logger on stderr if Setup was never called.
func initLogger() {
	loggerOnce.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		if sugar != nil {
			return
		}
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = atomicLvl
		cfg.DisableStacktrace = true
		l, err := cfg.Build(facadeOptions()...)
		if err != nil {
			l = zap.NewNop()
		}
		sugar = l.Sugar()
	})
}

// facadeOptions makes caller fields point past this package.
func facadeOptions() []zap.Option {
	return []zap.Option{zap.AddCallerSkip(1)}
}

// Setup builds the process logger from a level name ("debug", "info", ...)
// and an output format. "console" selects the human readable encoder, any
// other value produces JSON lines.
func Setup(level, format string) error {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch format {
	case "console":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.DisableStacktrace = true
	default:
		cfg = zap.NewProductionConfig()
	}
	atomicLvl.SetLevel(lvl)
	cfg.Level = atomicLvl

	l, err := cfg.Build(facadeOptions()...)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	Use(l)
	return nil
}

// Use replaces the process logger. Tests pass zap.NewNop().
func Use(l *zap.Logger) {
	loggerOnce.Do(func() {})
	mu.Lock()
	sugar = l.Sugar()
	mu.Unlock()
}

// Sync flushes buffered entries. Call before exit.
func Sync() {
	_ = current().Sync()
}

func Debug(msg string, kv ...any) {
	current().Debugw(msg, kv...)
}

func Info(msg string, kv ...any) {
	current().Infow(msg, kv...)
}

func Warn(msg string, kv ...any) {
	current().Warnw(msg, kv...)
}

func Error(msg string, err error, kv ...any) {
	// Prepend error into key-value list.
	extended := append([]any{zap.Error(err)}, kv...)
	current().Errorw(msg, extended...)
}

func current() *zap.SugaredLogger {
	initLogger()
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}
