package logging

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewWithConsoleOnly(t *testing.T) {
	logger, err := New(Config{Level: "info", EnableConsole: true})
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.NotPanics(t, func() { logger.Info("hello") })
}

func TestNewWithNoSinksReturnsNopLogger(t *testing.T) {
	logger, err := New(Config{})
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestNewWithFileSinkWritesToRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcphost.log")
	logger, err := New(Config{Level: "debug", EnableFile: true, Filename: path, MaxSize: 1, MaxBackups: 1, MaxAge: 1})
	require.NoError(t, err)
	logger.Info("hello from test")
	require.NoError(t, logger.Sync())
}

func TestParseLevelFallsBackToInfoOnGarbage(t *testing.T) {
	assert.Equal(t, zapcore.InfoLevel, parseLevel("info"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("not-a-level"))
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
}

func TestDefaultConfigEnablesConsoleOnly(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, cfg.EnableConsole)
	assert.False(t, cfg.EnableFile)
	assert.Equal(t, "info", cfg.Level)
}
