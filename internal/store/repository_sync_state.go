package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mkravets/notesync/internal/logger"
	"github.com/mkravets/notesync/models"
)

// Keys of the sync_state key-value table.
const (
	syncStateKeyConfig     = "config"
	syncStateKeyLastSyncAt = "last_sync_at"
)

type syncStateRepository struct {
	*DB
	logger *logger.Logger
}

// NewSyncStateRepository returns the SQLite-backed implementation of
// [SyncStateRepository].
func NewSyncStateRepository(db *DB, logger *logger.Logger) SyncStateRepository {
	return &syncStateRepository{
		DB:     db,
		logger: logger,
	}
}

func (r *syncStateRepository) SaveConfig(ctx context.Context, cfg models.SyncConfig) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode sync config: %w", err)
	}

	return r.save(ctx, syncStateKeyConfig, string(payload))
}

func (r *syncStateRepository) LoadConfig(ctx context.Context) (models.SyncConfig, error) {
	value, err := r.load(ctx, syncStateKeyConfig)
	if err != nil {
		return models.SyncConfig{}, err
	}

	var cfg models.SyncConfig
	if err := json.Unmarshal([]byte(value), &cfg); err != nil {
		return models.SyncConfig{}, fmt.Errorf("failed to decode sync config: %w", err)
	}

	return cfg, nil
}

func (r *syncStateRepository) SaveLastSyncAt(ctx context.Context, at time.Time) error {
	return r.save(ctx, syncStateKeyLastSyncAt, at.UTC().Format(time.RFC3339Nano))
}

func (r *syncStateRepository) LastSyncAt(ctx context.Context) (time.Time, error) {
	value, err := r.load(ctx, syncStateKeyLastSyncAt)
	if err != nil {
		return time.Time{}, err
	}

	at, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse last sync timestamp: %w", err)
	}

	return at, nil
}

func (r *syncStateRepository) save(ctx context.Context, key, value string) error {
	query, args, err := buildUpsertSyncStateQuery(key, value)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	if _, err = r.DB.ExecContext(ctx, query, args...); err != nil {
		r.logger.Err(err).
			Str("func", "syncStateRepository.save").
			Str("key", key).
			Msg("failed to save sync state")
		return fmt.Errorf("failed to save sync state (key=%s): %w", key, err)
	}

	return nil
}

func (r *syncStateRepository) load(ctx context.Context, key string) (string, error) {
	query, args, err := buildSelectSyncStateQuery(key)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	var value string
	if err := r.DB.QueryRowContext(ctx, query, args...).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: key=%s", ErrSyncStateNotFound, key)
		}
		return "", fmt.Errorf("%w: %w", ErrScanningRow, err)
	}

	return value, nil
}
