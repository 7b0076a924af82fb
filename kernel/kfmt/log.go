package kfmt

import (
	"strings"
	"sync/atomic"
)

// Level controls which log messages are emitted.
type Level uint32

// The supported log levels in increasing order of severity.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	activeLevel = uint32(LevelInfo)

	levelNames = [...]string{"debug", "info", "warn", "error"}
)

// String implements fmt.Stringer.
func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}

	return "unknown"
}

// SetLevel sets the minimum level of messages emitted by loggers.
func SetLevel(l Level) {
	atomic.StoreUint32(&activeLevel, uint32(l))
}

// GetLevel returns the active log level.
func GetLevel() Level {
	return Level(atomic.LoadUint32(&activeLevel))
}

// ParseLevel maps a level name as passed via the boot command line to a
// Level.
func ParseLevel(name string) (Level, bool) {
	name = strings.ToLower(name)
	for index, levelName := range levelNames {
		if levelName == name {
			return Level(index), true
		}
	}

	return LevelInfo, false
}

// Logger emits lines prefixed by the name of the kernel module that
// produced them.
type Logger struct {
	Module string
}

// Debugf logs a message at LevelDebug.
func (l Logger) Debugf(format string, args ...interface{}) {
	l.logf(LevelDebug, format, args...)
}

// Infof logs a message at LevelInfo.
func (l Logger) Infof(format string, args ...interface{}) {
	l.logf(LevelInfo, format, args...)
}

// Warnf logs a message at LevelWarn.
func (l Logger) Warnf(format string, args ...interface{}) {
	l.logf(LevelWarn, format, args...)
}

// Errorf logs a message at LevelError.
func (l Logger) Errorf(format string, args ...interface{}) {
	l.logf(LevelError, format, args...)
}

func (l Logger) logf(level Level, format string, args ...interface{}) {
	if level < GetLevel() {
		return
	}

	Printf("["+l.Module+"] "+format+"\n", args...)
}
