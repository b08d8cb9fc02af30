// Package logging contains the structured logger used by every svo package.
package logging

import (
	"os"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// Logger is the logging interface handed to every long lived svo component.
type Logger interface {
	Debug(args ...interface{})
	Debugf(template string, args ...interface{})
	Debugw(msg string, keysAndValues ...interface{})
	Info(args ...interface{})
	Infof(template string, args ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warn(args ...interface{})
	Warnf(template string, args ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Error(args ...interface{})
	Errorf(template string, args ...interface{})
	Errorw(msg string, keysAndValues ...interface{})

	// Sublogger returns a logger named "<name>.<subname>" that writes to the same outputs. Its
	// level starts at the parent's current level and can be changed independently.
	Sublogger(subname string) Logger
	SetLevel(level Level)
	GetLevel() Level
	AsZap() *zap.SugaredLogger
	Sync() error
}

// NewEncoderConfig returns the console encoder configuration shared by all loggers.
func NewEncoderConfig() zapcore.EncoderConfig {
	// from https://github.com/uber-go/zap/blob/2314926ec34c23ee21f3dd4399438469668f8097/config.go#L135
	// but use same keys as prod and color levels.
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalColorLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// NewLogger returns a new logger that outputs Info+ logs to stdout.
func NewLogger(name string) Logger {
	return newImpl(name, INFO, []Appender{NewStdoutAppender()})
}

// NewDebugLogger returns a new logger that outputs Debug+ logs to stdout.
func NewDebugLogger(name string) Logger {
	return newImpl(name, DEBUG, []Appender{NewStdoutAppender()})
}

// NewBlankLogger returns a new logger that outputs Debug+ logs, but without any
// pre-existing appenders/outputs.
func NewBlankLogger(name string) Logger {
	return newImpl(name, DEBUG, nil)
}

// NewLoggerWithAppenders returns a logger at the given level writing to every appender.
func NewLoggerWithAppenders(name string, level Level, appenders ...Appender) Logger {
	return newImpl(name, level, appenders)
}

// NewTestLogger returns a new logger that outputs Debug+ logs through the test's own log.
func NewTestLogger(tb testing.TB) Logger {
	logger, _ := NewObservedTestLogger(tb)
	return logger
}

// NewObservedTestLogger is like NewTestLogger but also saves logs to an in memory observer.
func NewObservedTestLogger(tb testing.TB) (Logger, *observer.ObservedLogs) {
	observerCore, observedLogs := observer.New(zap.LevelEnablerFunc(zapcore.DebugLevel.Enabled))
	logger := newImpl("", DEBUG, []Appender{
		NewTestAppender(tb),
		func(level zapcore.LevelEnabler) zapcore.Core {
			// the observer itself records everything; level filtering follows the logger.
			filtered, err := zapcore.NewIncreaseLevelCore(observerCore, level)
			if err != nil {
				return observerCore
			}
			return filtered
		},
	})
	return logger, observedLogs
}

// An Appender builds the zap core for one output, filtered by the logger's level.
type Appender func(level zapcore.LevelEnabler) zapcore.Core

// NewStdoutAppender writes console encoded entries to stdout.
func NewStdoutAppender() Appender {
	return NewWriterAppender(zapcore.Lock(os.Stdout))
}

// NewWriterAppender writes console encoded entries to the given sink.
func NewWriterAppender(sink zapcore.WriteSyncer) Appender {
	return func(level zapcore.LevelEnabler) zapcore.Core {
		return zapcore.NewCore(zapcore.NewConsoleEncoder(NewEncoderConfig()), sink, level)
	}
}
