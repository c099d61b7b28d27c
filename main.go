package main

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newLogger() *zap.Logger {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))
	if levelStr == "" {
		levelStr = "debug"
	}
	level, err := zapcore.ParseLevel(levelStr)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	config := zap.Config{
		Level:         zap.NewAtomicLevelAt(level),
		Development:   true,
		Encoding:      "console",
		EncoderConfig: encoderConfig,
		// stdout carries command output
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func main() {
	os.Exit(run())
}

// run returns the process exit code so deferred log flushing happens
// before main exits.
func run() int {
	logger := newLogger()
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if err := newRootCmd().Execute(); err != nil {
		return 1
	}
	return 0
}
