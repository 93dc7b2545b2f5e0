package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logger configuration
type Config struct {
	Level       string
	Development bool
	Encoding    string // "json" or "console"
	// File, when set, receives log output in addition to stdout. Devices keep
	// a local log so failed syncs can be diagnosed after the fact.
	File string
	// Stderr sends console output to stderr, leaving stdout to command output
	Stderr bool
}

// New creates a new zap logger
func New(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zapConfig zap.Config

	if cfg.Development {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zapConfig = zap.NewProductionConfig()
	}

	if cfg.Encoding != "" {
		zapConfig.Encoding = cfg.Encoding
	}

	zapConfig.Level = zap.NewAtomicLevelAt(level)
	zapConfig.OutputPaths = []string{"stdout"}
	if cfg.Stderr {
		zapConfig.OutputPaths = []string{"stderr"}
	}
	if cfg.File != "" {
		zapConfig.OutputPaths = append(zapConfig.OutputPaths, cfg.File)
	}
	zapConfig.ErrorOutputPaths = []string{"stderr"}

	return zapConfig.Build()
}

// Default creates a default logger
func Default() *zap.Logger {
	logger, err := New(Config{
		Level:       os.Getenv("ARCANA_POS_LOG_LEVEL"),
		Development: os.Getenv("ARCANA_POS_APP_ENVIRONMENT") != "production",
		Encoding:    "console",
	})
	if err != nil {
		return zap.NewExample()
	}
	return logger
}

// Component returns a logger scoped to a named component
func Component(logger *zap.Logger, name string, fields ...zap.Field) *zap.Logger {
	return logger.With(append([]zap.Field{zap.String("component", name)}, fields...)...)
}
