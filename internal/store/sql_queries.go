package store

import (
	sq "github.com/Masterminds/squirrel"

	"github.com/mkravets/notesync/models"
)

// changeLogColumns is the canonical column order shared by the insert and
// select builders so that row scanning never drifts from the write path.
var changeLogColumns = []string{
	"id",
	"entity_type",
	"action",
	"entity_id",
	"payload",
	"content_hash",
	"created_at",
}

func buildInsertChangeRecordQuery(rec models.ChangeRecord) (string, []any, error) {
	return sq.Insert("change_log").
		Columns(changeLogColumns...).
		Values(
			rec.ID,
			rec.EntityType,
			rec.Action,
			rec.EntityID,
			rec.Payload,
			rec.ContentHash,
			rec.CreatedAt,
		).
		ToSql()
}

func buildSelectChangeLogQuery() (string, []any, error) {
	return sq.Select(changeLogColumns...).
		From("change_log").
		OrderBy("position ASC").
		ToSql()
}

func buildDeleteChangeRecordsQuery(ids []string) (string, []any, error) {
	return sq.Delete("change_log").
		Where(sq.Eq{"id": ids}).
		ToSql()
}

func buildCountChangeLogQuery() (string, []any, error) {
	return sq.Select("COUNT(*)").
		From("change_log").
		ToSql()
}

var entityStateColumns = []string{
	"path",
	"entity_type",
	"entity_id",
	"local_hash",
	"remote_hash",
	"synced_at",
}

func buildUpsertEntityStateQuery(st models.EntityState) (string, []any, error) {
	return sq.Insert("entity_state").
		Columns(entityStateColumns...).
		Values(
			st.Path,
			st.EntityType,
			st.EntityID,
			st.LocalHash,
			st.RemoteHash,
			st.SyncedAt,
		).
		Suffix(`ON CONFLICT(path) DO UPDATE SET
			entity_type = excluded.entity_type,
			entity_id   = excluded.entity_id,
			local_hash  = excluded.local_hash,
			remote_hash = excluded.remote_hash,
			synced_at   = excluded.synced_at`).
		ToSql()
}

func buildSelectEntityStateQuery(path string) (string, []any, error) {
	return sq.Select(entityStateColumns...).
		From("entity_state").
		Where(sq.Eq{"path": path}).
		ToSql()
}

func buildListEntityStatesQuery() (string, []any, error) {
	return sq.Select(entityStateColumns...).
		From("entity_state").
		OrderBy("path ASC").
		ToSql()
}

func buildDeleteEntityStateQuery(path string) (string, []any, error) {
	return sq.Delete("entity_state").
		Where(sq.Eq{"path": path}).
		ToSql()
}

func buildUpsertSyncStateQuery(key, value string) (string, []any, error) {
	return sq.Insert("sync_state").
		Columns("key", "value").
		Values(key, value).
		Suffix("ON CONFLICT(key) DO UPDATE SET value = excluded.value").
		ToSql()
}

func buildSelectSyncStateQuery(key string) (string, []any, error) {
	return sq.Select("value").
		From("sync_state").
		Where(sq.Eq{"key": key}).
		ToSql()
}
