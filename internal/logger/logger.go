package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/mgutz/ansi"
)

// Log levels, from most to least verbose.
const (
	LevelAll = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelNone
)

// Logger is the logging surface used by tasks and workers.
type Logger interface {
	Trace(format string, args ...any)
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)

	// With returns a logger writing under an extra prefix, "[name] ".
	With(name string) Logger
}

// ColorLogger writes levelled lines, optionally colored with ANSI codes.
type ColorLogger struct {
	Verbose bool // enables Trace
	Level   int
	Prefix  string
	Color   bool

	out *log.Logger
}

// New returns a ColorLogger writing to w with standard timestamps.
// A nil w means os.Stderr.
func New(w io.Writer, level int, color bool) *ColorLogger {
	if w == nil {
		w = os.Stderr
	}
	return &ColorLogger{
		Level: level,
		Color: color,
		out:   log.New(w, "", log.LstdFlags|log.Lmicroseconds),
	}
}

// Trace logs a very verbose trace message
func (l *ColorLogger) Trace(format string, args ...any) {
	if !l.Verbose {
		return
	}
	l.log("blue", format, args...)
}

// Debug logs a debug message
func (l *ColorLogger) Debug(format string, args ...any) {
	if l.Level > LevelAll {
		return
	}
	l.log("", format, args...)
}

// Info logs a general message
func (l *ColorLogger) Info(format string, args ...any) {
	if l.Level > LevelInfo {
		return
	}
	l.log("green", format, args...)
}

// Warn logs a warning
func (l *ColorLogger) Warn(format string, args ...any) {
	if l.Level > LevelWarn {
		return
	}
	l.log("yellow", format, args...)
}

// Error logs an error
func (l *ColorLogger) Error(format string, args ...any) {
	if l.Level > LevelError {
		return
	}
	l.log("red", format, args...)
}

// With returns a copy of the logger with name appended to the prefix.
// The copy shares the underlying writer.
func (l *ColorLogger) With(name string) Logger {
	child := *l
	child.Prefix = l.Prefix + "[" + name + "] "
	return &child
}

func (l *ColorLogger) log(color, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if l.Color && color != "" {
		lines := strings.Split(msg, "\n")
		for i := range lines {
			lines[i] = ansi.Color(lines[i], color)
		}
		msg = strings.Join(lines, "\n")
	}

	out := l.out
	if out == nil {
		out = log.Default()
	}
	out.Println(l.Prefix + msg)
}

// ParseLevel maps a level name to its value. Unknown names map to LevelInfo.
func ParseLevel(name string) int {
	switch strings.ToLower(name) {
	case "all", "debug", "trace":
		return LevelAll
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "none", "off":
		return LevelNone
	default:
		return LevelInfo
	}
}
