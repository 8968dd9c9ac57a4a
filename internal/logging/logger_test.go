// Package logging includes tests for the zap logger helpers.
package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestNewDevelopmentLogger confirms the development logger builds and logs.
func TestNewDevelopmentLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(true)
	require.NoError(t, err)
	require.NotNil(t, logger)
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("development logger ready")
}

// TestNewProductionLogger ensures the production logger configuration succeeds.
func TestNewProductionLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(false)
	require.NoError(t, err)
	require.NotNil(t, logger)
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("production logger ready")
}

// TestForWorldAddsWorldField checks the world field is attached to records.
func TestForWorldAddsWorldField(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	ForWorld(zap.New(core), "world_nether").Info("generation started")

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "world_nether", entries[0].ContextMap()["world"])
}

// TestInitLoggerReplacesGlobal checks that L points at the built logger.
func TestInitLoggerReplacesGlobal(t *testing.T) {
	prev := L
	t.Cleanup(func() { L = prev })

	logger, err := InitLogger(false)
	require.NoError(t, err)
	require.Same(t, logger, L)
}
