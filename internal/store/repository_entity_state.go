package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mkravets/notesync/internal/logger"
	"github.com/mkravets/notesync/models"
)

type entityStateRepository struct {
	*DB
	logger *logger.Logger
}

// NewEntityStateRepository returns the SQLite-backed implementation of
// [EntityStateRepository].
func NewEntityStateRepository(db *DB, logger *logger.Logger) EntityStateRepository {
	return &entityStateRepository{
		DB:     db,
		logger: logger,
	}
}

func (r *entityStateRepository) Get(ctx context.Context, path string) (models.EntityState, error) {
	query, args, err := buildSelectEntityStateQuery(path)
	if err != nil {
		return models.EntityState{}, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	var st models.EntityState
	row := r.DB.QueryRowContext(ctx, query, args...)
	if err := row.Scan(
		&st.Path,
		&st.EntityType,
		&st.EntityID,
		&st.LocalHash,
		&st.RemoteHash,
		&st.SyncedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.EntityState{}, fmt.Errorf("%w: path=%s", ErrEntityStateNotFound, path)
		}
		return models.EntityState{}, fmt.Errorf("%w: %w", ErrScanningRow, err)
	}

	return st, nil
}

func (r *entityStateRepository) List(ctx context.Context) ([]models.EntityState, error) {
	query, args, err := buildListEntityStatesQuery()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	var states []models.EntityState
	for rows.Next() {
		var st models.EntityState
		if err := rows.Scan(
			&st.Path,
			&st.EntityType,
			&st.EntityID,
			&st.LocalHash,
			&st.RemoteHash,
			&st.SyncedAt,
		); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrScanningRow, err)
		}
		states = append(states, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	return states, nil
}

func (r *entityStateRepository) Upsert(ctx context.Context, st models.EntityState) error {
	query, args, err := buildUpsertEntityStateQuery(st)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	if _, err = r.DB.ExecContext(ctx, query, args...); err != nil {
		r.logger.Err(err).
			Str("func", "entityStateRepository.Upsert").
			Str("path", st.Path).
			Msg("failed to upsert entity state")
		return fmt.Errorf("failed to upsert entity state (path=%s): %w", st.Path, err)
	}

	return nil
}

func (r *entityStateRepository) Delete(ctx context.Context, path string) error {
	query, args, err := buildDeleteEntityStateQuery(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	if _, err = r.DB.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete entity state (path=%s): %w", path, err)
	}

	return nil
}
