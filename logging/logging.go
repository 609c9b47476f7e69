// Package logging provides the leveled logger interface consumed throughout
// Conveyor. It mirrors the logging.Logger contract used by
// storage/disk/disk.go in OPA (GetLevel/Debug/Info/Warn/Error), backed by
// logrus the way download/download.go uses it, but constructed explicitly
// and passed down by reference rather than reached for as a package-level
// global.
package logging

import (
	"github.com/sirupsen/logrus"
)

// Level is a logging verbosity level, ordered from least to most verbose.
type Level int

const (
	Error Level = iota
	Warn
	Info
	Debug
)

// Logger is the logging contract every Conveyor package depends on.
type Logger interface {
	Debug(fmt string, a ...any)
	Info(fmt string, a ...any)
	Warn(fmt string, a ...any)
	Error(fmt string, a ...any)
	GetLevel() Level
	WithFields(fields map[string]any) Logger
}

// logrusLogger adapts *logrus.Entry to the Logger interface.
type logrusLogger struct {
	entry *logrus.Entry
	level Level
}

// New returns a Logger backed by logrus, logging at the given level.
func New(level Level) Logger {
	l := logrus.New()
	l.SetLevel(toLogrusLevel(level))
	return &logrusLogger{entry: logrus.NewEntry(l), level: level}
}

func toLogrusLevel(level Level) logrus.Level {
	switch level {
	case Debug:
		return logrus.DebugLevel
	case Info:
		return logrus.InfoLevel
	case Warn:
		return logrus.WarnLevel
	default:
		return logrus.ErrorLevel
	}
}

func (l *logrusLogger) Debug(format string, a ...any) { l.entry.Debugf(format, a...) }
func (l *logrusLogger) Info(format string, a ...any)  { l.entry.Infof(format, a...) }
func (l *logrusLogger) Warn(format string, a ...any)  { l.entry.Warnf(format, a...) }
func (l *logrusLogger) Error(format string, a ...any) { l.entry.Errorf(format, a...) }
func (l *logrusLogger) GetLevel() Level               { return l.level }

func (l *logrusLogger) WithFields(fields map[string]any) Logger {
	return &logrusLogger{entry: l.entry.WithFields(fields), level: l.level}
}

// Nop is a Logger that discards everything; useful as a default when the
// caller doesn't supply one.
var Nop Logger = &nopLogger{}

type nopLogger struct{}

func (*nopLogger) Debug(string, ...any) {}
func (*nopLogger) Info(string, ...any)  {}
func (*nopLogger) Warn(string, ...any)  {}
func (*nopLogger) Error(string, ...any) {}
func (*nopLogger) GetLevel() Level      { return Error }

func (*nopLogger) WithFields(map[string]any) Logger { return &nopLogger{} }
