// Package logging builds the application logger: slog call sites backed by zap.
package logging

import (
	"fmt"
	"log/slog"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

const (
	// DevelopmentEnvironment logs human-readable output at debug level
	DevelopmentEnvironment = "development"

	// ProductionEnvironment logs JSON at info level
	ProductionEnvironment = "production"
)

// New creates a logger for the environment. The returned func flushes
// buffered entries and should be called before the process exits.
func New(environment string) (*slog.Logger, func(), error) {
	var (
		z   *zap.Logger
		err error
	)
	switch environment {
	case ProductionEnvironment:
		z, err = zap.NewProduction()
	case DevelopmentEnvironment:
		z, err = zap.NewDevelopment()
	default:
		return nil, nil, fmt.Errorf("unknown log environment %q", environment)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("building zap logger: %w", err)
	}

	return NewWithCore(z.Core()), func() { _ = z.Sync() }, nil
}

// NewWithCore wraps a zap core in a slog logger
func NewWithCore(core zapcore.Core) *slog.Logger {
	return slog.New(zapslog.NewHandler(core))
}
