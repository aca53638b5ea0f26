package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mkravets/notesync/internal/logger"
	"github.com/mkravets/notesync/internal/store"
	"github.com/mkravets/notesync/models"
)

// ChangeLog is the ordered, durable record of pending local mutations. The
// host appends through it; the coordinator snapshots it at the start of a
// run and removes exactly the snapshotted records after the run commits.
// Records appended while a run is in flight survive into the next run.
type ChangeLog struct {
	repo   store.ChangeLogRepository
	logger *logger.Logger

	mu       sync.RWMutex
	pending  int
	onAppend func()
}

// NewChangeLog wraps the repository and loads the persisted pending count,
// so the count is correct immediately after a restart.
func NewChangeLog(ctx context.Context, repo store.ChangeLogRepository, log *logger.Logger) (*ChangeLog, error) {
	count, err := repo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("load pending change count: %w", err)
	}

	return &ChangeLog{
		repo:    repo,
		logger:  log,
		pending: count,
	}, nil
}

// SetOnAppend registers the hook fired after every successful append. The
// scheduler uses it to arm the debounce timer.
func (c *ChangeLog) SetOnAppend(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAppend = fn
}

// Append turns a host change notification into an immutable ChangeRecord
// and persists it synchronously. A persistence failure is surfaced to the
// caller and affects only this append; previously persisted records are
// never touched.
func (c *ChangeLog) Append(ctx context.Context, n models.ChangeNotification) (models.ChangeRecord, error) {
	if !n.EntityType.Valid() || !n.Action.Valid() || n.EntityID == "" {
		return models.ChangeRecord{}, fmt.Errorf("%w: type=%q action=%q id=%q",
			ErrInvalidNotification, n.EntityType, n.Action, n.EntityID)
	}

	rec := models.ChangeRecord{
		ID:          uuid.NewString(),
		EntityType:  n.EntityType,
		Action:      n.Action,
		EntityID:    n.EntityID,
		Payload:     n.Content,
		ContentHash: contentHashHex(n.Content),
		CreatedAt:   time.Now(),
	}

	if err := c.repo.Append(ctx, rec); err != nil {
		return models.ChangeRecord{}, fmt.Errorf("append change record: %w", err)
	}

	c.mu.Lock()
	c.pending++
	hook := c.onAppend
	c.mu.Unlock()

	c.logger.Debug().
		Str("entity", rec.Key()).
		Str("action", string(rec.Action)).
		Msg("change recorded")

	if hook != nil {
		hook()
	}
	return rec, nil
}

// Snapshot returns an ordered copy of all current records. It delimits the
// scope of one sync run without blocking concurrent appends.
func (c *ChangeLog) Snapshot(ctx context.Context) ([]models.ChangeRecord, error) {
	records, err := c.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot change log: %w", err)
	}
	return records, nil
}

// RemoveUpTo removes exactly the records with the given IDs. Records
// appended after the snapshot was taken keep their place in the log and
// count toward the next run.
func (c *ChangeLog) RemoveUpTo(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.repo.DeleteByIDs(ctx, ids); err != nil {
		return fmt.Errorf("remove synced change records: %w", err)
	}
	return c.refreshPending(ctx)
}

// Clear wipes the whole log without syncing. Destructive reset.
func (c *ChangeLog) Clear(ctx context.Context) error {
	if err := c.repo.Clear(ctx); err != nil {
		return fmt.Errorf("clear change log: %w", err)
	}

	c.mu.Lock()
	c.pending = 0
	c.mu.Unlock()

	c.logger.Info().Msg("change log cleared")
	return nil
}

// Pending returns the number of not-yet-synchronized records.
func (c *ChangeLog) Pending() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pending
}

func (c *ChangeLog) refreshPending(ctx context.Context) error {
	count, err := c.repo.Count(ctx)
	if err != nil {
		return fmt.Errorf("refresh pending change count: %w", err)
	}

	c.mu.Lock()
	c.pending = count
	c.mu.Unlock()
	return nil
}

// contentHashHex is the engine's canonical content hash: hex-encoded
// SHA-256 of the serialized entity snapshot.
func contentHashHex(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
