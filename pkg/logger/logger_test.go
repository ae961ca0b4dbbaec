package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestDefault_LogsBeforeInit(t *testing.T) {
	assert.True(t, L().Core().Enabled(zapcore.InfoLevel), "default logger must not discard")

	var buf bytes.Buffer
	Set(newFallback(zapcore.AddSync(&buf)))
	t.Cleanup(func() { Set(zap.NewNop()) })

	Error("Invalid configuration: %v", "JWT_SECRET is required")
	Debug("below the default level")

	out := buf.String()
	assert.Contains(t, out, "ERROR")
	assert.Contains(t, out, "Invalid configuration: JWT_SECRET is required")
	assert.NotContains(t, out, "below the default level")
}

func TestConvenienceFunctions_FormatMessages(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	Set(zap.New(core))
	t.Cleanup(func() { Set(zap.NewNop()) })

	Debug("dbg %d", 1)
	Info("user %s joined room %s", "alice", "r1")
	Warn("wrn")
	Error("err: %v", assert.AnError)

	entries := logs.AllUntimed()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "user alice joined room r1", entries[1].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, "err: "+assert.AnError.Error(), entries[3].Message)
}

func TestL_KeepsFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	Set(zap.New(core))
	t.Cleanup(func() { Set(zap.NewNop()) })

	L().Info("kick failed", zap.String("room", "r1"))

	entries := logs.FilterField(zap.String("room", "r1")).All()
	require.Len(t, entries, 1)
	assert.Equal(t, "kick failed", entries[0].Message)
}

func TestInit_RejectsUnknownLevel(t *testing.T) {
	err := Init("dev", "loud")
	assert.Error(t, err)
}

func TestInit_ProductionAndDev(t *testing.T) {
	t.Cleanup(func() { Set(zap.NewNop()) })

	require.NoError(t, Init("prod", "warn"))
	assert.False(t, L().Core().Enabled(zapcore.InfoLevel))

	require.NoError(t, Init("dev", "debug"))
	assert.True(t, L().Core().Enabled(zapcore.DebugLevel))
}
