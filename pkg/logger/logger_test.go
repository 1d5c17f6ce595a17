package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelWarn)

	l.Debug("hidden %d", 1)
	l.Info("hidden %d", 2)
	l.Warn("shown %d", 3)
	l.Error("shown %d", 4)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] shown 3")
	assert.Contains(t, out, "[ERROR] shown 4")
}

func TestWithPrefix(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelDebug).WithPrefix("tracer").WithPrefix("gsmtap")

	l.Debug("packet of %d bytes", 12)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(buf.String()), "[DEBUG] [tracer.gsmtap] packet of 12 bytes"))
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, LevelDebug, l)

	_, err = ParseLevel("verbose")
	assert.Error(t, err)

	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "LEVEL(7)", Level(7).String())
}

func TestNop(t *testing.T) {
	l := Nop().WithPrefix("x")
	l.Error("nothing %s", "happens")
}
