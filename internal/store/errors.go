package store

import "errors"

// Sentinel errors returned by repository methods to signal well-known failure
// conditions. Callers should use [errors.Is] to match against these values.
var (
	// ErrChangeRecordExists is returned when an append reuses the ID of a
	// record already present in the change log. Record IDs must be unique
	// for the snapshot/remove protocol to stay sound.
	ErrChangeRecordExists = errors.New("change record already exists")

	// ErrEntityStateNotFound is returned when a lookup targets a remote path
	// that has never been synchronized.
	ErrEntityStateNotFound = errors.New("entity state not found")

	// ErrSyncStateNotFound is returned when a sync_state key has no value
	// yet (e.g. last_sync_at before the first successful run).
	ErrSyncStateNotFound = errors.New("sync state not found")
)

// Low-level database operation errors. These are returned (or wrapped) by
// repository methods when a SQL-level operation fails before any domain logic
// can be applied.
var (
	// ErrBuildingSQLQuery is returned when constructing a parameterised SQL
	// query fails (e.g. invalid argument count or unsupported type).
	ErrBuildingSQLQuery = errors.New("error building sql query")

	// ErrExecutingQuery is returned when executing a SELECT or similar
	// read-only query against the database fails.
	ErrExecutingQuery = errors.New("error executing sql query")

	// ErrBeginningTransaction is returned when the database driver cannot
	// start a new transaction.
	ErrBeginningTransaction = errors.New("failed to begin transaction")

	// ErrCommittingTransaction is returned when committing an open
	// transaction fails. The transaction is considered rolled back at this
	// point.
	ErrCommittingTransaction = errors.New("failed to commit transaction")

	// ErrScanningRow is returned when scanning column values from a result
	// row into a destination struct fails.
	ErrScanningRow = errors.New("failed to scan row")
)
