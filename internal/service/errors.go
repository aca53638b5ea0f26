package service

import "errors"

var (
	// ErrSyncInProgress is returned by StartSync when a run is already
	// executing. Scheduler triggers drop it silently; the caller of a manual
	// run may surface it.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrSyncDisabled is returned when a sync is requested while the engine
	// configuration has sync turned off.
	ErrSyncDisabled = errors.New("sync is disabled")

	ErrInvalidNotification   = errors.New("invalid change notification")
	ErrUnknownConflictPolicy = errors.New("unknown conflict policy")

	ErrConflictNotFound  = errors.New("conflict not found")
	ErrInvalidResolution = errors.New("invalid conflict resolution")
)
