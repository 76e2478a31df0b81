package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config defines logger configuration.
type Config struct {
	Level       string // "debug", "info", "warn", "error"
	Development bool
	OutputPaths []string
}

// DefaultConfig logs info and above as JSON to stderr.
func DefaultConfig() Config {
	return Config{
		Level:       "info",
		OutputPaths: []string{"stderr"},
	}
}

// FileConfig logs to a file. The TUI owns the terminal, so it cannot log to
// stdout or stderr while running.
func FileConfig(level, path string) Config {
	return Config{
		Level:       level,
		OutputPaths: []string{path},
	}
}

// New builds a zap logger from cfg. File output paths have their parent
// directory created first.
func New(cfg Config) (*zap.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	for _, p := range cfg.OutputPaths {
		if p == "stdout" || p == "stderr" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, fmt.Errorf("creating log dir: %w", err)
		}
	}

	zapCfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Development,
		Encoding:          encodingFormat(cfg.Development),
		EncoderConfig:     encoderConfig(cfg.Development),
		OutputPaths:       cfg.OutputPaths,
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: !cfg.Development,
	}

	return zapCfg.Build()
}

// NewOrNop builds a logger, falling back to a no-op logger on error.
func NewOrNop(cfg Config) *zap.Logger {
	logger, err := New(cfg)
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

func parseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

func encodingFormat(development bool) string {
	if development {
		return "console"
	}
	return "json"
}

func encoderConfig(development bool) zapcore.EncoderConfig {
	if development {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg
	}
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg
}
