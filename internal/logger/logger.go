package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the application logger. Logs go to stderr so that command
// results printed on stdout stay machine readable.
func New(json bool, debug bool) (*zap.Logger, error) {
	return Config(json, debug).Build()
}

// Config returns the zap configuration behind New. Stack traces are only
// attached in debug mode.
func Config(json bool, debug bool) zap.Config {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if debug {
		level.SetLevel(zapcore.DebugLevel)
	}

	encoding := "console"
	if json {
		encoding = "json"
	}

	return zap.Config{
		Level:             level,
		Development:       debug,
		DisableStacktrace: !debug,
		Encoding:          encoding,
		EncoderConfig:     encoderConfig(),
		OutputPaths:       []string{"stderr"},
		ErrorOutputPaths:  []string{"stderr"},
	}
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		MessageKey:    "step",
		LevelKey:      "level",
		TimeKey:       "time",
		NameKey:       "logger",
		CallerKey:     "caller",
		StacktraceKey: "stacktrace",

		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
}
