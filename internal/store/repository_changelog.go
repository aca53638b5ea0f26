package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/mkravets/notesync/internal/logger"
	"github.com/mkravets/notesync/models"
)

type changeLogRepository struct {
	*DB
	logger *logger.Logger
}

// NewChangeLogRepository returns the SQLite-backed implementation of
// [ChangeLogRepository]. Ordering relies on the change_log.position
// autoincrement column, so the table itself is the source of truth for
// append order across restarts.
func NewChangeLogRepository(db *DB, logger *logger.Logger) ChangeLogRepository {
	return &changeLogRepository{
		DB:     db,
		logger: logger,
	}
}

func (r *changeLogRepository) Append(ctx context.Context, rec models.ChangeRecord) error {
	query, args, err := buildInsertChangeRecordQuery(rec)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	_, err = r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: id=%s", ErrChangeRecordExists, rec.ID)
		}
		r.logger.Err(err).
			Str("func", "changeLogRepository.Append").
			Str("record_id", rec.ID).
			Str("entity_id", rec.EntityID).
			Msg("failed to insert change record")
		return fmt.Errorf("failed to append change record (id=%s): %w", rec.ID, err)
	}

	return nil
}

func (r *changeLogRepository) List(ctx context.Context) ([]models.ChangeRecord, error) {
	query, args, err := buildSelectChangeLogQuery()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Err(err).
			Str("func", "changeLogRepository.List").
			Msg("failed to query change log")
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	var records []models.ChangeRecord
	for rows.Next() {
		var rec models.ChangeRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.EntityType,
			&rec.Action,
			&rec.EntityID,
			&rec.Payload,
			&rec.ContentHash,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrScanningRow, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	return records, nil
}

func (r *changeLogRepository) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	query, args, err := buildDeleteChangeRecordsQuery(ids)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBeginningTransaction, err)
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.Err(err).
			Str("func", "changeLogRepository.DeleteByIDs").
			Int("count", len(ids)).
			Msg("failed to delete change records")
		return fmt.Errorf("failed to delete change records: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", ErrCommittingTransaction, err)
	}

	return nil
}

func (r *changeLogRepository) Clear(ctx context.Context) error {
	if _, err := r.DB.ExecContext(ctx, "DELETE FROM change_log"); err != nil {
		r.logger.Err(err).
			Str("func", "changeLogRepository.Clear").
			Msg("failed to clear change log")
		return fmt.Errorf("failed to clear change log: %w", err)
	}
	return nil
}

func (r *changeLogRepository) Count(ctx context.Context) (int, error) {
	query, args, err := buildCountChangeLogQuery()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	var count int
	if err := r.DB.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	return count, nil
}
