package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestVerbosityToLevel(t *testing.T) {
	tests := []struct {
		verbosity int
		want      zapcore.Level
	}{
		{-1, zapcore.WarnLevel},
		{0, zapcore.WarnLevel},
		{1, zapcore.InfoLevel},
		{2, zapcore.DebugLevel},
		{7, zapcore.DebugLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, VerbosityToLevel(tt.verbosity), "verbosity %d", tt.verbosity)
	}
}

func TestInitialize_ConsoleAndJSON(t *testing.T) {
	t.Cleanup(func() { Logger = zap.NewNop().Sugar(); JSONOutput = false })

	require.NoError(t, Initialize(false, 0))
	assert.False(t, JSONOutput)
	assert.False(t, Logger.Desugar().Core().Enabled(zapcore.InfoLevel), "progress logs need -v")
	assert.True(t, Logger.Desugar().Core().Enabled(zapcore.WarnLevel))

	require.NoError(t, Initialize(false, 1))
	assert.True(t, Logger.Desugar().Core().Enabled(zapcore.InfoLevel))
	assert.False(t, Logger.Desugar().Core().Enabled(zapcore.DebugLevel))

	require.NoError(t, Initialize(true, 2))
	assert.True(t, JSONOutput)
	assert.True(t, Logger.Desugar().Core().Enabled(zapcore.DebugLevel))
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))

	core, logs := observer.New(zapcore.InfoLevel)
	l := zap.New(core).Sugar()
	OrNop(l).Infow("inserted", "key", "A")
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "A", logs.All()[0].ContextMap()["key"])
}
