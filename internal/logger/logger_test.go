package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestSetLevel(t *testing.T) {
	require.NoError(t, SetLevel("debug"))
	assert.Equal(t, zapcore.DebugLevel, Level())

	require.NoError(t, SetLevel(""))
	assert.Equal(t, zapcore.InfoLevel, Level())

	assert.Error(t, SetLevel("loud"))
	assert.Equal(t, zapcore.InfoLevel, Level())
}

func TestNew_SharesAtomicLevel(t *testing.T) {
	l, err := New(Options{Level: "warn", Format: "console"})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))

	require.NoError(t, SetLevel("info"))
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
}
