// Package logging builds the Host's zap logger: console output for
// interactive use, optional rotated file output for long-running
// deployments.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls the logger's sinks and rotation policy, grounded on the
// teacher's config.LogConfig (internal/logs/communication.go).
type Config struct {
	Level         string
	EnableConsole bool
	EnableFile    bool
	Filename      string
	MaxSize       int // megabytes
	MaxBackups    int
	MaxAge        int // days
	Compress      bool
}

// DefaultConfig logs to the console at info level, with file output off.
func DefaultConfig() Config {
	return Config{
		Level:         "info",
		EnableConsole: true,
		EnableFile:    false,
		Filename:      "mcphost.log",
		MaxSize:       100,
		MaxBackups:    3,
		MaxAge:        28,
		Compress:      true,
	}
}

func parseLevel(level string) zapcore.Level {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel
	}
	return l
}

// New builds a *zap.Logger from cfg. At least one of EnableConsole/
// EnableFile should be true; if neither is set, a no-op logger is
// returned rather than silently discarding all output via an empty core
// tee.
func New(cfg Config) (*zap.Logger, error) {
	level := parseLevel(cfg.Level)
	var cores []zapcore.Core

	if cfg.EnableConsole {
		consoleEncoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		cores = append(cores, zapcore.NewCore(consoleEncoder, zapcore.Lock(zapcore.AddSync(os.Stdout)), level))
	}

	if cfg.EnableFile {
		fileEncoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		writer := &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		cores = append(cores, zapcore.NewCore(fileEncoder, zapcore.AddSync(writer), level))
	}

	if len(cores) == 0 {
		return zap.NewNop(), nil
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}
