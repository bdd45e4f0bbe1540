package logger

import (
	"bytes"
	"testing"

	"github.com/mgutz/ansi"
	"github.com/stretchr/testify/assert"
)

func TestColorLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelWarn, false)

	l.Debug("debug %d", 1)
	l.Info("info %d", 2)
	l.Warn("warn %d", 3)
	l.Error("error %d", 4)
	l.Trace("trace %d", 5)

	out := buf.String()
	assert.NotContains(t, out, "debug 1")
	assert.NotContains(t, out, "info 2")
	assert.Contains(t, out, "warn 3")
	assert.Contains(t, out, "error 4")
	assert.NotContains(t, out, "trace 5")
}

func TestColorLogger_Verbose(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelAll, false)
	l.Verbose = true

	l.Trace("trace")
	assert.Contains(t, buf.String(), "trace")
}

func TestColorLogger_With(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelInfo, false)

	l.With("filler").With("worker3").Info("inserted %d items", 100)
	assert.Contains(t, buf.String(), "[filler] [worker3] inserted 100 items")
}

func TestColorLogger_Color(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelInfo, true)

	l.Error("boom")
	assert.Contains(t, buf.String(), ansi.Color("boom", "red"))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelAll, ParseLevel("debug"))
	assert.Equal(t, LevelInfo, ParseLevel("info"))
	assert.Equal(t, LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelNone, ParseLevel("off"))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
}

func TestNil(t *testing.T) {
	Nil.Info("ignored")
	assert.Equal(t, Nil, Nil.With("x"))
}
