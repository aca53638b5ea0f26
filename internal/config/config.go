package config

import (
	"github.com/mkravets/notesync/models"
)

// Config is the top-level configuration container for the notesync engine.
// It aggregates all sub-configurations and is populated by merging values
// from defaults, environment variables, command-line flags, and an optional
// JSON file.
//
// Struct tags:
//   - envPrefix: prefix applied to all nested env tag lookups (caarlos0/env).
//   - env: direct environment variable name for scalar fields.
type Config struct {
	// Sync holds the synchronization settings: provider, endpoint,
	// credentials, trigger intervals, and the conflict policy.
	Sync models.SyncConfig `envPrefix:"SYNC_"`

	// Storage holds the local persistence settings for the change log and
	// sync state database.
	Storage Storage `envPrefix:"STORAGE_"`

	// Log holds engine log output settings.
	Log Log `envPrefix:"LOG_"`

	// JSONFilePath is the optional path to a JSON configuration file.
	// When non-empty, the file is parsed and merged on top of the values
	// already loaded from the other sources.
	// Populated via the CONFIG environment variable or the -c / -config flag.
	JSONFilePath string `env:"CONFIG"`
}

// Storage groups the configuration for the engine's local persistence.
type Storage struct {
	// DB holds the SQLite database settings.
	DB DB `envPrefix:"DB_"`
}

// DB contains the local SQLite database settings.
type DB struct {
	// Path is the SQLite database file path. The file is created on first
	// start if it does not exist.
	// Env: STORAGE_DB_PATH
	Path string `env:"PATH"`
}

// Log contains engine log output settings.
type Log struct {
	// File is an optional log file path. When set, the engine logs there
	// with rotation instead of stdout.
	// Env: LOG_FILE
	File string `env:"FILE"`
}

// GetConfig loads, merges, and validates the engine configuration from all
// available sources. Returns a fully populated *Config or an error if any
// source fails to load or the final config fails validation.
func GetConfig() (*Config, error) {
	return newConfigBuilder().
		withEnv().
		withFlags().
		withJSON().
		withDefaults().
		build()
}
