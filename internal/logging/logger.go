// Package logging provides categorized zap loggers for the assistant core.
// Components request a named logger once (L("memory"), L("router"), ...);
// the level can be raised or lowered at runtime for config hot reload.
package logging

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls log output. Zero value means console-only at info level.
type Config struct {
	Level   string `yaml:"level"`   // debug, info, warn, error
	Dir     string `yaml:"dir"`     // optional log file directory
	Console bool   `yaml:"console"` // also log to stderr
}

var (
	mu    sync.RWMutex
	root  = zap.NewNop()
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// Init builds the process logger from config. Safe to call more than once;
// the last call wins. Returns an error only when the log file cannot be
// opened.
func Init(cfg Config) error {
	level.SetLevel(parseLevel(cfg.Level))

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var cores []zapcore.Core
	if cfg.Console || cfg.Dir == "" {
		consoleEnc := zap.NewDevelopmentEncoderConfig()
		consoleEnc.EncodeLevel = zapcore.CapitalLevelEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleEnc),
			zapcore.Lock(os.Stderr),
			level,
		))
	}
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(filepath.Join(cfg.Dir, "nexus.log"),
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encCfg),
			zapcore.Lock(f),
			level,
		))
	}

	mu.Lock()
	root = zap.New(zapcore.NewTee(cores...))
	mu.Unlock()
	return nil
}

// L returns a named child logger for a component category.
func L(category string) *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root.Named(category)
}

// SetLevel changes the global level at runtime (config hot reload).
func SetLevel(s string) {
	level.SetLevel(parseLevel(s))
}

// Sync flushes buffered log entries. Called on shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = root.Sync()
}

func parseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
