// Package logging provides the leveled logger used throughout kibo's core
// and CLI. A *Logger is safe to use even when nil: every method on a nil
// receiver is a no-op, so components can be given no logger at all in tests
// without guarding every call site.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/fatih/color"
)

// RootLogger is the logger from which all other loggers in a process derive,
// writing to standard error at LevelInfo by default.
var RootLogger = &Logger{level: LevelInfo, output: os.Stderr}

// Logger is a leveled, prefixed logger. The zero value is not usable;
// construct loggers via RootLogger.Sublogger or NewLogger.
type Logger struct {
	mu     sync.Mutex
	prefix string
	level  Level
	output io.Writer
}

// NewLogger creates a standalone logger at the given level writing to the
// given stream.
func NewLogger(level Level, output io.Writer) *Logger {
	return &Logger{level: level, output: output}
}

// Sublogger returns a new logger that shares this logger's level and output
// but adds a dotted prefix segment. Calling Sublogger on a nil logger
// returns nil.
func (l *Logger) Sublogger(name string) *Logger {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	prefix := name
	if l.prefix != "" {
		prefix = l.prefix + "." + name
	}
	return &Logger{prefix: prefix, level: l.level, output: l.output}
}

// SetLevel adjusts the logger's verbosity threshold.
func (l *Logger) SetLevel(level Level) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

func (l *Logger) enabled(level Level) bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level >= level
}

func (l *Logger) write(level Level, line string) {
	if !l.enabled(level) {
		return
	}
	l.mu.Lock()
	prefix := l.prefix
	out := l.output
	l.mu.Unlock()
	if prefix != "" {
		line = fmt.Sprintf("[%s] %s", prefix, line)
	}
	log.New(out, "", log.LstdFlags).Output(3, line)
}

// Error logs an error with a red "Error:" banner.
func (l *Logger) Error(err error) {
	if l == nil || err == nil {
		return
	}
	l.write(LevelError, color.RedString("Error: %v", err))
}

// Warn logs an error with a yellow "Warning:" banner.
func (l *Logger) Warn(err error) {
	if l == nil || err == nil {
		return
	}
	l.write(LevelWarn, color.YellowString("Warning: %v", err))
}

// Info logs an informational message.
func (l *Logger) Info(v ...interface{}) {
	l.write(LevelInfo, fmt.Sprint(v...))
}

// Infof logs a formatted informational message.
func (l *Logger) Infof(format string, v ...interface{}) {
	l.write(LevelInfo, fmt.Sprintf(format, v...))
}

// Debug logs a fine-grained diagnostic message.
func (l *Logger) Debug(v ...interface{}) {
	l.write(LevelDebug, fmt.Sprint(v...))
}

// Debugf logs a formatted fine-grained diagnostic message.
func (l *Logger) Debugf(format string, v ...interface{}) {
	l.write(LevelDebug, fmt.Sprintf(format, v...))
}
