// Package logging provides zap logger helpers.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceName tags every record written by loggers from New.
const ServiceName = "chunkgen"

// L is the process-wide logger. It is a no-op until InitLogger runs.
var L = zap.NewNop()

// New builds a zap.Logger configured for development or production.
// Production output is JSON with ISO8601 timestamps and a service field.
func New(development bool) (*zap.Logger, error) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.InitialFields = map[string]any{"service": ServiceName}
	}
	cfg.EncoderConfig.TimeKey = "ts"
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger (development=%t): %w", development, err)
	}
	return logger, nil
}

// ForWorld scopes logger to one world so scheduler, reporter and backend
// records for a generation share the same field.
func ForWorld(logger *zap.Logger, world string) *zap.Logger {
	if logger == nil {
		logger = L
	}
	return logger.With(zap.String("world", world))
}

// InitLogger builds a logger, stores it in L, and returns it.
func InitLogger(development bool) (*zap.Logger, error) {
	logger, err := New(development)
	if err != nil {
		return nil, err
	}
	L = logger
	return logger, nil
}
