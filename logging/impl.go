package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type impl struct {
	*zap.SugaredLogger

	name      string
	level     zap.AtomicLevel
	appenders []Appender
}

func newImpl(name string, level Level, appenders []Appender) *impl {
	imp := &impl{
		name:      name,
		level:     zap.NewAtomicLevelAt(level.AsZap()),
		appenders: appenders,
	}
	cores := make([]zapcore.Core, 0, len(appenders))
	for _, appender := range appenders {
		cores = append(cores, appender(imp.level))
	}
	base := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	if name != "" {
		base = base.Named(name)
	}
	imp.SugaredLogger = base.Sugar()
	return imp
}

func (imp *impl) Sublogger(subname string) Logger {
	newName := subname
	if imp.name != "" {
		newName = fmt.Sprintf("%s.%s", imp.name, subname)
	}
	return newImpl(newName, imp.GetLevel(), imp.appenders)
}

func (imp *impl) SetLevel(level Level) {
	imp.level.SetLevel(level.AsZap())
}

func (imp *impl) GetLevel() Level {
	return levelFromZap(imp.level.Level())
}

func (imp *impl) AsZap() *zap.SugaredLogger {
	return imp.SugaredLogger
}

func (imp *impl) Sync() error {
	return imp.SugaredLogger.Sync()
}
