package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestNewConsoleLogger(t *testing.T) {
	l, err := New(Config{Level: "debug", Format: "console"})
	require.NoError(t, err)

	child := l.With(String("run_id", "abc"))
	require.NotNil(t, child)
	child.Debug("hello", Int("n", 1))
}

func TestNopLogger(t *testing.T) {
	l := NewNop()
	l.Info("ignored", Error(nil))
	assert.Equal(t, l, l.With(String("k", "v")))
	assert.NoError(t, l.Sync())
}
