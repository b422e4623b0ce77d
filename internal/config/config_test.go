package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, name := range []string{"SMTGCC_VERBOSE", "SMTGCC_TIMEOUT", "SMTGCC_MEMORY_LIMIT"} {
		// Setenv registers the restore; the variable must then be
		// absent, not empty, for the unset path.
		t.Setenv(name, "")
		require.NoError(t, os.Unsetenv(name))
	}

	cfg := FromEnv()
	require.Equal(t, 0, cfg.Verbose)
	require.Equal(t, DefaultTimeoutMs, cfg.TimeoutMs)
	require.Equal(t, DefaultMemoryLimitMiB, cfg.MemoryLimitMiB)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("SMTGCC_VERBOSE", "2")
	t.Setenv("SMTGCC_TIMEOUT", "5000")
	t.Setenv("SMTGCC_MEMORY_LIMIT", "512")

	cfg := FromEnv()
	require.Equal(t, 2, cfg.Verbose)
	require.Equal(t, 5000, cfg.TimeoutMs)
	require.Equal(t, 512, cfg.MemoryLimitMiB)
}

func TestFromEnvMalformedFallsBack(t *testing.T) {
	t.Setenv("SMTGCC_VERBOSE", "yes")
	t.Setenv("SMTGCC_TIMEOUT", "1m")

	cfg := FromEnv()
	require.Equal(t, 0, cfg.Verbose)
	require.Equal(t, DefaultTimeoutMs, cfg.TimeoutMs)
}
