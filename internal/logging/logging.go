// Package logging wraps a process-wide zap sugared logger.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// sugar is a no-op logger until Init is called so packages can log from tests.
var sugar = zap.NewNop().Sugar()

// Init builds the global logger. Format "console" selects the development
// encoder, anything else produces JSON. An unknown level falls back to info.
func Init(level, format string) error {
	logLevel := zap.NewAtomicLevel()
	if err := logLevel.UnmarshalText([]byte(level)); err != nil {
		logLevel.SetLevel(zap.InfoLevel)
	}

	var zapConfig zap.Config
	if format == "console" {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zapConfig = zap.NewProductionConfig()
		zapConfig.Encoding = "json"
	}
	zapConfig.Level = logLevel
	zapConfig.OutputPaths = []string{"stderr"}

	logger, err := zapConfig.Build()
	if err != nil {
		return err
	}
	sugar = logger.Sugar()
	return nil
}

// Set replaces the global logger.
func Set(logger *zap.Logger) {
	sugar = logger.Sugar()
}

// L returns the global sugared logger.
func L() *zap.SugaredLogger {
	return sugar
}

func Debugw(msg string, keysAndValues ...any) {
	sugar.Debugw(msg, keysAndValues...)
}

// Infow logs a structured info message.
func Infow(msg string, keysAndValues ...any) {
	sugar.Infow(msg, keysAndValues...)
}

func Infof(template string, args ...any) {
	sugar.Infof(template, args...)
}

func Warnw(msg string, keysAndValues ...any) {
	sugar.Warnw(msg, keysAndValues...)
}

func Errorw(msg string, keysAndValues ...any) {
	sugar.Errorw(msg, keysAndValues...)
}

func Errorf(template string, args ...any) {
	sugar.Errorf(template, args...)
}

// Sync flushes buffered log entries.
func Sync() {
	_ = sugar.Sync()
}
