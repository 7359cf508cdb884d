// Package config layers the CLI's settings from least to most
// specific: compiled-in defaults, an optional .env file, then command
// line flags.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	defaultInput = "main.abys"
	defaultGOGC  = 100
)

// Config holds everything the CLI entry point needs to compile and
// run one source file.
type Config struct {
	Input        string
	Debug        bool
	DumpBytecode bool
	GOGC         int
}

// Load builds the default configuration, then overlays ABYSSIX_* values
// found in a .env file in the working directory, if one exists. Flags
// parsed by cobra are applied on top of the result by the caller, so
// they always win.
func Load() Config {
	cfg := Config{Input: defaultInput, GOGC: defaultGOGC}

	// godotenv.Load is a no-op error when no .env file is present; any
	// other error (malformed file) is not fatal here since .env is
	// optional sugar, not a required configuration source.
	_ = godotenv.Load()

	if v, ok := os.LookupEnv("ABYSSIX_INPUT"); ok && v != "" {
		cfg.Input = v
	}
	if v, ok := os.LookupEnv("ABYSSIX_DEBUG"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = b
		}
	}
	if v, ok := os.LookupEnv("ABYSSIX_GOGC"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.GOGC = n
		}
	}
	return cfg
}
