package logging

import (
	"testing"

	"github.com/decred/slog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndSetDebugLevels(t *testing.T) {
	require.NoError(t, ParseAndSetDebugLevels("debug"))
	for _, l := range subsystemLoggers {
		assert.Equal(t, slog.LevelDebug, l.Level())
	}

	require.NoError(t, ParseAndSetDebugLevels("DIAG=trace,MPOL=warn"))
	assert.Equal(t, slog.LevelTrace, Logger("DIAG").Level())
	assert.Equal(t, slog.LevelWarn, Logger("MPOL").Level())
	assert.Equal(t, slog.LevelDebug, Logger("MAIN").Level())

	assert.Error(t, ParseAndSetDebugLevels("loud"))
	assert.Error(t, ParseAndSetDebugLevels("NOPE=info"))
	assert.Error(t, ParseAndSetDebugLevels("DIAG=info=x"))
	assert.Error(t, ParseAndSetDebugLevels("DIAG=loud"))
}

func TestSupportedSubsystems(t *testing.T) {
	assert.Equal(t, []string{"BUMP", "DIAG", "MAIN", "MPOL", "SRVC", "WEB"}, SupportedSubsystems())
	assert.Equal(t, slog.Disabled, Logger("XYZ"))
}
