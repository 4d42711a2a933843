// Package logger builds the zap loggers used by the questlog binaries and sanitizes
// client supplied values before they are logged.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceName is attached to every production log entry
const ServiceName = "questlog"

func level(debugMode bool) zap.AtomicLevel {
	if debugMode {
		return zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return zap.NewAtomicLevelAt(zapcore.InfoLevel)
}

// productionEncoder writes one JSON object per entry with ISO8601 timestamps
func productionEncoder() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// NewProductionLogger creates a JSON logger. Every entry carries the service and
// the component (questlog-server, questlog-worker) that wrote it.
func NewProductionLogger(component string, debugMode bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Level = level(debugMode)
	config.Encoding = "json"
	config.EncoderConfig = productionEncoder()
	// Boundary jobs for many users log in bursts; keep every entry
	config.Sampling = nil

	fields := []zap.Field{zap.String("service", ServiceName)}
	if component != "" {
		fields = append(fields, zap.String("component", component))
	}
	return config.Build(zap.Fields(fields...))
}

// NewDevelopmentLogger creates a console logger for local runs
func NewDevelopmentLogger(component string, debugMode bool) (*zap.Logger, error) {
	config := zap.NewDevelopmentConfig()
	config.Level = level(debugMode)

	l, err := config.Build()
	if err != nil {
		return nil, err
	}
	return l.Named(component), nil
}

// New picks the console logger for development and the JSON logger otherwise
func New(component string, development, debugMode bool) (*zap.Logger, error) {
	if development {
		return NewDevelopmentLogger(component, debugMode)
	}
	return NewProductionLogger(component, debugMode)
}

// Sync flushes buffered entries before exit. Safe to call on a nil logger.
func Sync(logger *zap.Logger) error {
	if logger == nil {
		return nil
	}
	return logger.Sync()
}
