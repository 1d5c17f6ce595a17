// Package logger is a small leveled logger over the standard log package.
package logger

import (
	"fmt"
	"io"
	"log"
	"strings"
)

// Level orders log lines by severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

func (l Level) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
	return levelNames[l]
}

// ParseLevel parses a level name such as "debug" or "WARN".
func ParseLevel(s string) (Level, error) {
	for l := LevelDebug; l <= LevelError; l++ {
		if strings.EqualFold(s, l.String()) {
			return l, nil
		}
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Logger writes printf-style lines at four levels.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)

	// WithPrefix returns a logger that tags every line with [category].
	WithPrefix(category string) Logger
}

type stdLogger struct {
	level    Level
	category string
	logger   *log.Logger
}

// New returns a logger writing lines at or above level to w.
func New(w io.Writer, level Level) Logger {
	return &stdLogger{
		level:  level,
		logger: log.New(w, "", log.LstdFlags),
	}
}

func (l *stdLogger) WithPrefix(category string) Logger {
	c := *l
	if c.category != "" {
		category = c.category + "." + category
	}
	c.category = category
	return &c
}

func (l *stdLogger) printf(level Level, format string, args ...any) {
	if level < l.level {
		return
	}
	prefix := "[" + level.String() + "] "
	if l.category != "" {
		prefix += "[" + l.category + "] "
	}
	l.logger.Printf(prefix+format, args...)
}

func (l *stdLogger) Debug(format string, args ...any) { l.printf(LevelDebug, format, args...) }
func (l *stdLogger) Info(format string, args ...any)  { l.printf(LevelInfo, format, args...) }
func (l *stdLogger) Warn(format string, args ...any)  { l.printf(LevelWarn, format, args...) }
func (l *stdLogger) Error(format string, args ...any) { l.printf(LevelError, format, args...) }

type nopLogger struct{}

// Nop returns a logger that discards everything.
func Nop() Logger {
	return nopLogger{}
}

func (nopLogger) Debug(string, ...any)       {}
func (nopLogger) Info(string, ...any)        {}
func (nopLogger) Warn(string, ...any)        {}
func (nopLogger) Error(string, ...any)       {}
func (n nopLogger) WithPrefix(string) Logger { return n }
