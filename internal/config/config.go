package config

import (
	"os"
	"strconv"
)

// Defaults for the SMT query limits.
const (
	DefaultTimeoutMs      = 120000
	DefaultMemoryLimitMiB = 10240
)

// Config holds the environment-driven settings. It is built once at
// startup; later changes to the environment are not observed.
type Config struct {
	// Verbose controls diagnostic output: 0 silent, 1 timings,
	// 2 additionally dumps the IR before checking.
	Verbose int

	// TimeoutMs is the wall-clock cap for one SMT query, in milliseconds.
	TimeoutMs int

	// MemoryLimitMiB is the memory cap for the SMT solver, in MiB.
	MemoryLimitMiB int
}

// FromEnv reads SMTGCC_VERBOSE, SMTGCC_TIMEOUT, and SMTGCC_MEMORY_LIMIT.
// Unset or malformed variables fall back to the defaults.
func FromEnv() Config {
	return Config{
		Verbose:        envInt("SMTGCC_VERBOSE", 0),
		TimeoutMs:      envInt("SMTGCC_TIMEOUT", DefaultTimeoutMs),
		MemoryLimitMiB: envInt("SMTGCC_MEMORY_LIMIT", DefaultMemoryLimitMiB),
	}
}

func envInt(name string, def int) int {
	s, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
