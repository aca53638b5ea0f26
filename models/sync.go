package models

import "time"

// SyncPhase is the coordinator's externally visible state machine phase.
type SyncPhase string

const (
	PhaseIdle     SyncPhase = "idle"
	PhaseTesting  SyncPhase = "testing"
	PhaseSyncing  SyncPhase = "syncing"
	PhaseSuccess  SyncPhase = "success"
	PhaseFailed   SyncPhase = "failed"
	PhaseConflict SyncPhase = "conflict"
)

// SyncDirection restricts which way content flows during a run. Manual runs
// pick a direction; automatic runs are always bidirectional.
type SyncDirection string

const (
	DirectionUpload        SyncDirection = "upload"
	DirectionDownload      SyncDirection = "download"
	DirectionBidirectional SyncDirection = "bidirectional"
)

// Valid reports whether d is one of the known sync directions.
func (d SyncDirection) Valid() bool {
	switch d {
	case DirectionUpload, DirectionDownload, DirectionBidirectional:
		return true
	}
	return false
}

// ConflictPolicy is the deterministic rule applied when local and remote
// copies of the same entity diverge.
type ConflictPolicy string

const (
	// PolicyLocalWins overwrites the remote copy with the local one.
	PolicyLocalWins ConflictPolicy = "local_wins"
	// PolicyRemoteWins discards the local change and keeps the remote copy.
	PolicyRemoteWins ConflictPolicy = "remote_wins"
	// PolicyManualMerge raises a ConflictRecord and touches neither side
	// until the host resolves it explicitly.
	PolicyManualMerge ConflictPolicy = "manual_merge"
	// PolicyCreateBoth keeps both copies, uploading the local one under a
	// disambiguated path.
	PolicyCreateBoth ConflictPolicy = "create_both"
)

// Valid reports whether p is one of the known conflict policies.
func (p ConflictPolicy) Valid() bool {
	switch p {
	case PolicyLocalWins, PolicyRemoteWins, PolicyManualMerge, PolicyCreateBoth:
		return true
	}
	return false
}

// Provider selects the remote adapter implementation.
type Provider string

const (
	ProviderLocal  Provider = "local"
	ProviderWebDAV Provider = "webdav"
	ProviderCustom Provider = "custom"
)

// SyncConfig is the single live configuration of an engine instance. It is
// loaded at construction, mutated only through an explicit configure call,
// and persisted immediately on change.
type SyncConfig struct {
	Enabled  bool     `json:"enabled" env:"ENABLED"`
	Provider Provider `json:"provider" env:"PROVIDER"`

	// Endpoint is the remote store base URL (WebDAV) or a directory path
	// (local provider).
	Endpoint string `json:"endpoint" env:"ENDPOINT"`
	Username string `json:"username" env:"USERNAME"`
	Password string `json:"password" env:"PASSWORD"`

	// RemotePath is the root collection under which entity files are kept.
	RemotePath string `json:"remote_path" env:"REMOTE_PATH"`

	// SyncInterval is the periodic trigger interval. Zero disables the
	// periodic trigger entirely.
	SyncInterval time.Duration `json:"sync_interval" env:"INTERVAL"`

	// DebounceInterval is the quiet period required after a burst of local
	// edits before an edit-driven sync fires.
	DebounceInterval time.Duration `json:"debounce_interval" env:"DEBOUNCE_INTERVAL"`

	// RequestTimeout bounds every single remote adapter call. A timeout is
	// treated as a transient network failure.
	RequestTimeout time.Duration `json:"request_timeout" env:"REQUEST_TIMEOUT"`

	ConflictPolicy ConflictPolicy `json:"conflict_policy" env:"CONFLICT_POLICY"`

	// MaxFileSize is the largest entity payload the adapter will upload,
	// in bytes. Zero means unlimited.
	MaxFileSize int64 `json:"max_file_size" env:"MAX_FILE_SIZE"`

	SyncAttachments bool `json:"sync_attachments" env:"ATTACHMENTS"`
}

// SyncStatus is the derived, republished engine state. It is owned and
// mutated exclusively by the coordinator; everything except LastSyncAt is
// rebuilt from scratch after a restart.
type SyncStatus struct {
	LastSyncAt     *time.Time    `json:"last_sync_at,omitempty"`
	IsOnline       bool          `json:"is_online"`
	PendingChanges int           `json:"pending_changes"`
	Conflicts      int           `json:"conflicts"`
	Phase          SyncPhase     `json:"phase"`
	Direction      SyncDirection `json:"direction,omitempty"`
	Error          string        `json:"error,omitempty"`
}

// SyncResult summarizes a single finished sync run.
type SyncResult struct {
	Status          SyncPhase `json:"status"`
	FilesUploaded   int       `json:"files_uploaded"`
	FilesDownloaded int       `json:"files_downloaded"`
	Errors          []string  `json:"errors,omitempty"`
}

// SyncStats accumulates transfer counters over the engine's lifetime.
type SyncStats struct {
	TotalFiles  int `json:"total_files"`
	SyncedFiles int `json:"synced_files"`
	FailedFiles int `json:"failed_files"`
}

// ConflictResolution marks how a pending conflict was (or was not yet)
// settled by the host.
type ConflictResolution string

const (
	ResolutionPending    ConflictResolution = "pending"
	ResolutionKeepLocal  ConflictResolution = "keep_local"
	ResolutionKeepRemote ConflictResolution = "keep_remote"
)

// ConflictRecord is a transient record of a manual-merge conflict. It is
// held in memory until the host resolves it and is never written to the
// change log.
type ConflictRecord struct {
	EntityType   EntityType         `json:"entity_type"`
	EntityID     string             `json:"entity_id"`
	RemotePath   string             `json:"remote_path"`
	LocalHash    string             `json:"local_hash"`
	RemoteHash   string             `json:"remote_hash"`
	LocalPayload []byte             `json:"-"`
	DetectedAt   time.Time          `json:"detected_at"`
	Resolution   ConflictResolution `json:"resolution"`
}

// RemoteObject is one entry of a remote listing.
type RemoteObject struct {
	Path       string    `json:"path"`
	Hash       string    `json:"hash"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size"`
}
