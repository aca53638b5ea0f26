package config

import (
	"github.com/mkravets/notesync/models"
)

// validate checks that the final merged [Config] satisfies all engine
// invariants before it is used at startup.
//
// Returns nil if the configuration is valid, or a descriptive error
// otherwise.
func (cfg *Config) validate() error {
	if cfg.Storage.DB.Path == "" {
		return ErrInvalidStorageConfigs
	}

	return ValidateSyncConfig(cfg.Sync)
}

// ValidateSyncConfig checks the sync section alone. The engine reuses it
// when the host reconfigures sync at runtime, so the rules live here rather
// than on the private validate method.
//
// A disabled sync section is always valid: the host may construct the engine
// first and configure a provider later.
func ValidateSyncConfig(sc models.SyncConfig) error {
	if !sc.Enabled {
		return nil
	}

	switch sc.Provider {
	case models.ProviderLocal, models.ProviderWebDAV, models.ProviderCustom:
	default:
		return ErrInvalidProvider
	}

	if sc.Endpoint == "" {
		return ErrMissingEndpoint
	}

	if !sc.ConflictPolicy.Valid() {
		return ErrInvalidConflictPolicy
	}

	if sc.SyncInterval < 0 || sc.DebounceInterval < 0 || sc.RequestTimeout < 0 {
		return ErrInvalidInterval
	}

	return nil
}
