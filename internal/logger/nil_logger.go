package logger

type nilLogger struct{}

func (nilLogger) Trace(format string, args ...any) {}
func (nilLogger) Debug(format string, args ...any) {}
func (nilLogger) Info(format string, args ...any)  {}
func (nilLogger) Warn(format string, args ...any)  {}
func (nilLogger) Error(format string, args ...any) {}

func (n nilLogger) With(name string) Logger { return n }

// Nil discards everything.
var Nil Logger = nilLogger{}
