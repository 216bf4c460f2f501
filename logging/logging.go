// Package logging wraps zap for ZeroBuffer's diagnostic output:
// buffer lifecycle (create/reclaim/destroy, connect/disconnect),
// stale-buffer reclamation, timeouts, and corruption/peer-death
// detection. It mirrors the corpus's Init(cfg) shape: console encoding,
// colorized levels when attached to a terminal, and an AtomicLevel the
// caller can adjust at runtime.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// Level names accepted in configuration, matching zapcore's.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Init builds a console logger at the given level. It returns the
// logger, its AtomicLevel (so the level can be changed after startup),
// and an error if the level string or logger config is invalid.
func Init(level string) (*zap.SugaredLogger, zap.AtomicLevel, error) {
	var zl zapcore.Level
	if err := zl.UnmarshalText([]byte(level)); err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("logging: invalid level %q: %w", level, err)
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	if term.IsTerminal(int(os.Stderr.Fd())) {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zl),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("logging: build logger: %w", err)
	}
	return logger.Sugar(), cfg.Level, nil
}

// Noop returns a logger that discards everything, used as the default
// when a caller does not supply one via WithLogger.
func Noop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
