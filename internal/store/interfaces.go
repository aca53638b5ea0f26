package store

import (
	"context"
	"time"

	"github.com/mkravets/notesync/models"
)

//go:generate mockgen -source=interfaces.go -destination=../mock/store_mock.go -package=mock

// ChangeLogRepository persists the ordered log of not-yet-synchronized local
// mutations. Insertion order is significant and must survive restarts.
type ChangeLogRepository interface {
	// Append durably adds one record to the tail of the log. The write is
	// synchronous: when Append returns nil the record is on disk. A failed
	// append never corrupts previously persisted records.
	Append(ctx context.Context, rec models.ChangeRecord) error

	// List returns every record in append order (oldest first).
	List(ctx context.Context) ([]models.ChangeRecord, error)

	// DeleteByIDs removes exactly the records with the given IDs in a single
	// transaction. IDs not present in the log are ignored. Records appended
	// concurrently with the call are untouched.
	DeleteByIDs(ctx context.Context, ids []string) error

	// Clear removes every record. Used by the destructive cache reset only.
	Clear(ctx context.Context) error

	// Count returns the number of pending records.
	Count(ctx context.Context) (int, error)
}

// EntityStateRepository persists the per-path merge base: the local and
// remote content hashes recorded after the last successful transfer of that
// path.
type EntityStateRepository interface {
	Get(ctx context.Context, path string) (models.EntityState, error)
	List(ctx context.Context) ([]models.EntityState, error)
	Upsert(ctx context.Context, st models.EntityState) error
	Delete(ctx context.Context, path string) error
}

// SyncStateRepository persists the small engine state that must survive
// restarts: the serialized sync configuration and the last successful sync
// timestamp.
type SyncStateRepository interface {
	SaveConfig(ctx context.Context, cfg models.SyncConfig) error
	LoadConfig(ctx context.Context) (models.SyncConfig, error)

	SaveLastSyncAt(ctx context.Context, at time.Time) error
	LastSyncAt(ctx context.Context) (time.Time, error)
}
