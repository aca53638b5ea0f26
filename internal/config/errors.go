package config

import "errors"

// Validation errors returned by [Config.validate] and
// [ValidateSyncConfig] when required configuration groups are incomplete
// or invalid. Callers should use [errors.Is] to match against these values.
var (
	// ErrInvalidProvider indicates an unknown remote provider name.
	ErrInvalidProvider = errors.New("invalid sync provider")
	// ErrMissingEndpoint indicates that the configured provider requires an
	// endpoint (and, for webdav, credentials) but none was supplied.
	ErrMissingEndpoint = errors.New("missing remote endpoint")
	// ErrInvalidConflictPolicy indicates an unknown conflict policy name.
	ErrInvalidConflictPolicy = errors.New("invalid conflict policy")
	// ErrInvalidInterval indicates a negative trigger interval.
	ErrInvalidInterval = errors.New("invalid sync interval")
	// ErrInvalidStorageConfigs indicates invalid local storage settings
	// (for example, an empty database path).
	ErrInvalidStorageConfigs = errors.New("invalid storage configuration")
)
