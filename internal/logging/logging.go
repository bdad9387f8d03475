// Package logging builds the zap loggers used across casewatch.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options control logger construction.
type Options struct {
	// Level is debug, info, warn or error. Empty means info.
	Level string
	// Format is "json" or "console". Empty means console.
	Format string
	// OutputPath redirects logs, e.g. to a file while the terminal UI owns stdout.
	OutputPath string
}

// New builds a logger from opts.
func New(opts Options) (*zap.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	var config zap.Config
	switch strings.ToLower(opts.Format) {
	case "json":
		config = zap.NewProductionConfig()
	case "", "console", "text":
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		config.Development = false
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}
	config.Level = zap.NewAtomicLevelAt(level)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if opts.OutputPath != "" {
		config.OutputPaths = []string{opts.OutputPath}
		config.ErrorOutputPaths = []string{opts.OutputPath}
	}

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// ParseLevel maps a level name onto a zap level. Empty means info.
func ParseLevel(s string) (zapcore.Level, error) {
	if strings.TrimSpace(s) == "" {
		return zapcore.InfoLevel, nil
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(s)))); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}
