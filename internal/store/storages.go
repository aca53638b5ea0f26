package store

import (
	"context"
	"fmt"

	"github.com/mkravets/notesync/internal/config"
	"github.com/mkravets/notesync/internal/logger"
)

// Storages groups the engine's repositories into a single value that can be
// passed around the service layer.
type Storages struct {
	// ChangeLog is the durable queue of not-yet-synchronized local
	// mutations.
	ChangeLog ChangeLogRepository

	// EntityState holds the per-path merge base used for three-way change
	// detection.
	EntityState EntityStateRepository

	// SyncState holds the persisted sync configuration and the last
	// successful sync timestamp.
	SyncState SyncStateRepository
}

// NewStorages initialises the storage layer using the supplied configuration
// and logger. It performs the following steps:
//  1. Opens an SQLite connection to the file path specified in cfg.DB.Path,
//     creating the database file if it does not yet exist.
//  2. Runs pending schema migrations via [DB.Migrate].
//  3. Constructs and returns a [Storages] value wired to fresh repositories.
//
// Returns an error if the database connection cannot be established or if
// migration fails.
func NewStorages(cfg config.Storage, logger *logger.Logger) (*Storages, error) {
	logger.Info().Msg("creating new storages...")

	db, err := NewConnectSQLite(context.Background(), cfg.DB, logger)
	if err != nil {
		return nil, fmt.Errorf("sqlite connection error: %w", err)
	}

	if err := db.Migrate(); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return &Storages{
		ChangeLog:   NewChangeLogRepository(db, logger),
		EntityState: NewEntityStateRepository(db, logger),
		SyncState:   NewSyncStateRepository(db, logger),
	}, nil
}
