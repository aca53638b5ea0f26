package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mkravets/notesync/internal/adapter"
	"github.com/mkravets/notesync/internal/logger"
	"github.com/mkravets/notesync/internal/store"
	"github.com/mkravets/notesync/models"
)

// entityWorkers bounds how many independent entities one run transfers
// concurrently.
const entityWorkers = 4

// Coordinator owns the sync state machine. It executes at most one run at a
// time, drives the change log through the remote adapter and the conflict
// resolver, and is the sole writer of the published SyncStatus.
type Coordinator struct {
	changeLog *ChangeLog
	resolver  ConflictResolver
	entities  EntityStore
	states    store.EntityStateRepository
	syncState store.SyncStateRepository
	publisher *StatusPublisher
	logger    *logger.Logger

	mu            sync.Mutex
	remote        adapter.RemoteAdapter
	cfg           models.SyncConfig
	status        models.SyncStatus
	stats         models.SyncStats
	conflicts     map[string]models.ConflictRecord
	cancelRun     context.CancelFunc
	authSuspended bool
}

// NewCoordinator wires the sync pipeline. The last successful sync
// timestamp is restored from the persisted state so it survives restarts;
// everything else of the status starts fresh.
func NewCoordinator(
	ctx context.Context,
	changeLog *ChangeLog,
	remote adapter.RemoteAdapter,
	entities EntityStore,
	storages *store.Storages,
	publisher *StatusPublisher,
	cfg models.SyncConfig,
	log *logger.Logger,
) (*Coordinator, error) {
	c := &Coordinator{
		changeLog: changeLog,
		resolver:  NewConflictResolver(),
		entities:  entities,
		states:    storages.EntityState,
		syncState: storages.SyncState,
		publisher: publisher,
		logger:    log,
		remote:    remote,
		cfg:       cfg,
		conflicts: map[string]models.ConflictRecord{},
		status: models.SyncStatus{
			Phase:    models.PhaseIdle,
			IsOnline: true,
		},
	}

	lastSyncAt, err := storages.SyncState.LastSyncAt(ctx)
	switch {
	case err == nil:
		c.status.LastSyncAt = &lastSyncAt
	case errors.Is(err, store.ErrSyncStateNotFound):
		// First start, never synced.
	default:
		return nil, fmt.Errorf("restore last sync time: %w", err)
	}

	return c, nil
}

// Status returns a copy of the current engine status.
func (c *Coordinator) Status() models.SyncStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// Stats returns the cumulative transfer counters of this engine instance.
func (c *Coordinator) Stats() models.SyncStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Config returns the live sync configuration.
func (c *Coordinator) Config() models.SyncConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// SetOnline records a connectivity transition reported by the host and
// publishes the updated status. The offline-to-online sync trigger lives in
// the scheduler; this only tracks the flag.
func (c *Coordinator) SetOnline(online bool) {
	c.mu.Lock()
	c.status.IsOnline = online
	st := c.statusLocked()
	c.mu.Unlock()

	c.publisher.Publish(st)
}

// UpdateConfig swaps the configuration and the adapter built from it. An
// authentication suspension is lifted: new credentials deserve a fresh
// attempt.
func (c *Coordinator) UpdateConfig(cfg models.SyncConfig, remote adapter.RemoteAdapter) {
	c.mu.Lock()
	c.cfg = cfg
	c.remote = remote
	c.authSuspended = false
	st := c.statusLocked()
	c.mu.Unlock()

	c.publisher.Publish(st)
}

// TestConnection probes the remote without running a sync. Only valid while
// idle; the probe is visible to subscribers as the Testing phase.
func (c *Coordinator) TestConnection(ctx context.Context) error {
	c.mu.Lock()
	if c.status.Phase != models.PhaseIdle {
		c.mu.Unlock()
		return ErrSyncInProgress
	}
	c.status.Phase = models.PhaseTesting
	remote := c.remote
	st := c.statusLocked()
	c.mu.Unlock()
	c.publisher.Publish(st)

	err := remote.Probe(ctx)

	c.mu.Lock()
	c.status.Phase = models.PhaseIdle
	if err != nil {
		c.status.Error = err.Error()
	} else {
		c.status.Error = ""
	}
	st = c.statusLocked()
	c.mu.Unlock()
	c.publisher.Publish(st)

	return err
}

// RequestAutoSync is the funnel for every scheduler trigger (timer, online
// transition, debounced edits). It silently does nothing when sync is
// disabled, the engine is offline, a run is in flight, or automatic retry
// is suspended after an authentication failure.
func (c *Coordinator) RequestAutoSync(ctx context.Context) {
	c.mu.Lock()
	skip := !c.cfg.Enabled || c.authSuspended || !c.status.IsOnline || c.status.Phase != models.PhaseIdle
	c.mu.Unlock()
	if skip {
		return
	}

	if _, err := c.StartSync(ctx, models.DirectionBidirectional); err != nil && !errors.Is(err, ErrSyncInProgress) {
		c.logger.Debug().Err(err).Msg("automatic sync attempt rejected")
	}
}

// StartSync executes one sync run in the calling goroutine and returns its
// result. Only accepted while idle: a second concurrent call gets
// ErrSyncInProgress and causes no run.
func (c *Coordinator) StartSync(ctx context.Context, direction models.SyncDirection) (models.SyncResult, error) {
	if !direction.Valid() {
		return models.SyncResult{}, fmt.Errorf("invalid sync direction %q", direction)
	}

	c.mu.Lock()
	if !c.cfg.Enabled {
		c.mu.Unlock()
		return models.SyncResult{}, ErrSyncDisabled
	}
	if c.status.Phase != models.PhaseIdle {
		c.mu.Unlock()
		return models.SyncResult{}, ErrSyncInProgress
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancelRun = cancel
	c.status.Phase = models.PhaseSyncing
	c.status.Direction = direction
	c.status.Error = ""
	remote := c.remote
	cfg := c.cfg
	st := c.statusLocked()
	c.mu.Unlock()

	c.publisher.Publish(st)
	c.logger.Info().Str("direction", string(direction)).Msg("sync run started")

	outcome := c.runSync(runCtx, remote, cfg, direction)
	cancelled := runCtx.Err() != nil
	cancel()

	return c.finishRun(ctx, outcome, direction, cancelled), nil
}

// StopSync cancels the in-flight run, if any. In-flight adapter calls are
// allowed to finish or time out; the run commits nothing to the change log
// once cancellation is observed.
func (c *Coordinator) StopSync() {
	c.mu.Lock()
	cancel := c.cancelRun
	c.mu.Unlock()

	if cancel != nil {
		c.logger.Info().Msg("sync run cancelled")
		cancel()
	}
}

// Conflicts returns the pending manual-merge conflicts, oldest first.
func (c *Coordinator) Conflicts() []models.ConflictRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]models.ConflictRecord, 0, len(c.conflicts))
	for _, rec := range c.conflicts {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DetectedAt.Equal(out[j].DetectedAt) {
			return out[i].DetectedAt.Before(out[j].DetectedAt)
		}
		return out[i].EntityID < out[j].EntityID
	})
	return out
}

// ResolveConflict settles one pending manual-merge conflict with the
// winner the host picked. Keeping the local side uploads the payload
// captured when the conflict was detected; keeping the remote side
// downloads and applies the remote copy. Either way the entity's pending
// change records are removed and the entity is unblocked.
//
// Conflicts never expire on their own: an unresolved entity stays blocked
// and its records stay pending across any number of runs.
func (c *Coordinator) ResolveConflict(ctx context.Context, entityType models.EntityType, entityID string, resolution models.ConflictResolution) error {
	key := string(entityType) + "/" + entityID

	c.mu.Lock()
	conflict, ok := c.conflicts[key]
	remote := c.remote
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrConflictNotFound, key)
	}

	switch resolution {
	case models.ResolutionKeepLocal:
		if conflict.LocalHash == "" {
			// The local side of the conflict was a deletion: keeping it
			// means deleting the remote copy.
			if err := remote.Delete(ctx, conflict.RemotePath); err != nil {
				return fmt.Errorf("resolve conflict %s keeping local: %w", key, err)
			}
			if err := c.states.Delete(ctx, conflict.RemotePath); err != nil {
				return fmt.Errorf("resolve conflict %s keeping local: %w", key, err)
			}
			break
		}

		remoteHash, err := remote.Upload(ctx, conflict.RemotePath, conflict.LocalPayload, conflict.RemoteHash)
		if err != nil {
			return fmt.Errorf("resolve conflict %s keeping local: %w", key, err)
		}
		err = c.states.Upsert(ctx, models.EntityState{
			Path:       conflict.RemotePath,
			EntityType: entityType,
			EntityID:   entityID,
			LocalHash:  conflict.LocalHash,
			RemoteHash: remoteHash,
			SyncedAt:   time.Now(),
		})
		if err != nil {
			return fmt.Errorf("resolve conflict %s keeping local: %w", key, err)
		}

	case models.ResolutionKeepRemote:
		content, err := remote.Download(ctx, conflict.RemotePath)
		switch {
		case errors.Is(err, adapter.ErrNotFound):
			// The remote copy disappeared since the conflict was detected;
			// keeping "remote" now means deleting locally.
			if err = c.entities.Remove(ctx, entityType, entityID); err != nil {
				return fmt.Errorf("resolve conflict %s keeping remote: %w", key, err)
			}
			if err = c.states.Delete(ctx, conflict.RemotePath); err != nil {
				return fmt.Errorf("resolve conflict %s keeping remote: %w", key, err)
			}
		case err != nil:
			return fmt.Errorf("resolve conflict %s keeping remote: %w", key, err)
		default:
			if err = c.entities.Apply(ctx, entityType, entityID, content); err != nil {
				return fmt.Errorf("resolve conflict %s keeping remote: %w", key, err)
			}
			err = c.states.Upsert(ctx, models.EntityState{
				Path:       conflict.RemotePath,
				EntityType: entityType,
				EntityID:   entityID,
				LocalHash:  contentHashHex(content),
				RemoteHash: conflict.RemoteHash,
				SyncedAt:   time.Now(),
			})
			if err != nil {
				return fmt.Errorf("resolve conflict %s keeping remote: %w", key, err)
			}
		}

	default:
		return fmt.Errorf("%w: %q", ErrInvalidResolution, resolution)
	}

	if err := c.dropPendingRecords(ctx, key); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.conflicts, key)
	st := c.statusLocked()
	c.mu.Unlock()
	c.publisher.Publish(st)

	c.logger.Info().Str("entity", key).Str("resolution", string(resolution)).Msg("conflict resolved")
	return nil
}

// ──────────────────────────── run pipeline ───────────────────────────────

// runOutcome aggregates everything one run produced before any of it is
// committed.
type runOutcome struct {
	commitIDs  []string
	uploaded   int
	downloaded int
	processed  int
	errs       []string
	conflicts  []models.ConflictRecord
	authFailed bool
	runFailed  bool
}

func (c *Coordinator) runSync(ctx context.Context, remote adapter.RemoteAdapter, cfg models.SyncConfig, direction models.SyncDirection) runOutcome {
	var out runOutcome

	snapshot, err := c.changeLog.Snapshot(ctx)
	if err != nil {
		out.runFailed = true
		out.errs = append(out.errs, err.Error())
		return out
	}

	remoteObjs, err := remote.List(ctx, "")
	if err != nil {
		out.runFailed = true
		out.authFailed = errors.Is(err, adapter.ErrAuthentication)
		out.errs = append(out.errs, err.Error())
		return out
	}
	remoteIdx := make(map[string]models.RemoteObject, len(remoteObjs))
	for _, obj := range remoteObjs {
		remoteIdx[obj.Path] = obj
	}

	baseStates, err := c.states.List(ctx)
	if err != nil {
		out.runFailed = true
		out.errs = append(out.errs, err.Error())
		return out
	}
	baseIdx := make(map[string]models.EntityState, len(baseStates))
	for _, st := range baseStates {
		baseIdx[st.Path] = st
	}

	blocked := c.blockedEntities()
	units := groupByEntity(snapshot, blocked)
	runStart := time.Now()

	var (
		outMu sync.Mutex
		g     errgroup.Group
	)
	g.SetLimit(entityWorkers)

	if direction != models.DirectionDownload {
		for _, unit := range units {
			g.Go(func() error {
				res, err := c.processLocalEntity(ctx, remote, cfg, unit, remoteIdx, baseIdx, runStart)
				outMu.Lock()
				mergeOutcome(&out, res)
				outMu.Unlock()
				return err
			})
		}
	}

	if direction != models.DirectionUpload {
		localPaths := make(map[string]bool, len(units))
		for _, unit := range units {
			localPaths[unit.path] = true
		}
		for _, obj := range remoteObjs {
			entityType, entityID, ok := parseRemotePath(obj.Path)
			if !ok || localPaths[obj.Path] || blocked[string(entityType)+"/"+entityID] {
				continue
			}
			if base, hasBase := baseIdx[obj.Path]; hasBase && base.RemoteHash == obj.Hash {
				continue
			}
			g.Go(func() error {
				res, err := c.downloadRemoteEntity(ctx, remote, obj, entityType, entityID)
				outMu.Lock()
				mergeOutcome(&out, res)
				outMu.Unlock()
				return err
			})
		}

		// Entities deleted remotely: a merge base exists, nothing remains on
		// the remote, and no local edit is pending.
		for p, base := range baseIdx {
			if _, exists := remoteIdx[p]; exists || localPaths[p] || blocked[string(base.EntityType)+"/"+base.EntityID] {
				continue
			}
			g.Go(func() error {
				res, err := c.removeLocalEntity(ctx, base)
				outMu.Lock()
				mergeOutcome(&out, res)
				outMu.Unlock()
				return err
			})
		}
	}

	if err = g.Wait(); err != nil {
		out.runFailed = true
		out.authFailed = out.authFailed || errors.Is(err, adapter.ErrAuthentication)
		out.errs = append(out.errs, err.Error())
	}

	return out
}

// entityUnit is one entity's slice of the snapshot, in append order. The
// last record carries the entity's final state for this run; once the unit
// succeeds every record of the unit is committed.
type entityUnit struct {
	key     string
	path    string
	records []models.ChangeRecord
}

func groupByEntity(snapshot []models.ChangeRecord, blocked map[string]bool) []entityUnit {
	idx := make(map[string]int)
	var units []entityUnit
	for _, rec := range snapshot {
		key := rec.Key()
		if blocked[key] {
			continue
		}
		i, ok := idx[key]
		if !ok {
			idx[key] = len(units)
			units = append(units, entityUnit{key: key, path: key + ".json"})
			i = len(units) - 1
		}
		units[i].records = append(units[i].records, rec)
	}
	return units
}

func (c *Coordinator) blockedEntities() map[string]bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	blocked := make(map[string]bool, len(c.conflicts))
	for key := range c.conflicts {
		blocked[key] = true
	}
	return blocked
}

// processLocalEntity pushes one entity's pending change to the remote. An
// authentication failure aborts the whole run; every other error keeps the
// entity's records pending and lets the run continue.
func (c *Coordinator) processLocalEntity(
	ctx context.Context,
	remote adapter.RemoteAdapter,
	cfg models.SyncConfig,
	unit entityUnit,
	remoteIdx map[string]models.RemoteObject,
	baseIdx map[string]models.EntityState,
	runStart time.Time,
) (runOutcome, error) {
	var out runOutcome
	out.processed = 1

	rec := unit.records[len(unit.records)-1]
	remoteHash := remoteIdx[unit.path].Hash
	base, hasBase := baseIdx[unit.path]

	// The remote side counts as changed when its current hash differs from
	// the merge base, including appearing where no base exists or vanishing
	// where one does.
	remoteChanged := remoteHash != base.RemoteHash
	if !hasBase {
		remoteChanged = remoteHash != ""
	}

	var err error
	if rec.Action == models.ActionDelete {
		err = c.pushDeletion(ctx, remote, cfg, unit, rec, remoteHash, remoteChanged, &out)
	} else {
		err = c.pushContent(ctx, remote, cfg, unit, rec, base.LocalHash, remoteHash, remoteChanged, runStart, &out)
	}
	if err != nil {
		if errors.Is(err, adapter.ErrAuthentication) {
			return out, err
		}
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		out.errs = append(out.errs, fmt.Sprintf("%s: %v", unit.key, err))
		c.logger.Warn().Err(err).Str("entity", unit.key).Msg("entity sync failed, will retry on next run")
	}
	return out, nil
}

func (c *Coordinator) pushDeletion(
	ctx context.Context,
	remote adapter.RemoteAdapter,
	cfg models.SyncConfig,
	unit entityUnit,
	rec models.ChangeRecord,
	remoteHash string,
	remoteChanged bool,
	out *runOutcome,
) error {
	// A local deletion racing a remote edit is a divergence like any other,
	// except the local side has no content. The resolver's missing-side rule
	// does not apply here, so the policy is dispatched directly.
	if remoteChanged && remoteHash != "" {
		switch cfg.ConflictPolicy {
		case models.PolicyLocalWins:
			// Fall through to the delete below.
		case models.PolicyRemoteWins, models.PolicyCreateBoth:
			// The remote edit survives; the local deletion is discarded by
			// pulling the remote copy back in.
			content, err := remote.Download(ctx, unit.path)
			if err != nil {
				return err
			}
			if err = c.entities.Apply(ctx, rec.EntityType, rec.EntityID, content); err != nil {
				return err
			}
			if err = c.upsertState(ctx, unit.path, rec, contentHashHex(content), remoteHash); err != nil {
				return err
			}
			out.downloaded++
			out.commitIDs = append(out.commitIDs, recordIDs(unit.records)...)
			return nil
		case models.PolicyManualMerge:
			out.conflicts = append(out.conflicts, models.ConflictRecord{
				EntityType: rec.EntityType,
				EntityID:   rec.EntityID,
				RemotePath: unit.path,
				RemoteHash: remoteHash,
				DetectedAt: time.Now(),
				Resolution: models.ResolutionPending,
			})
			return nil
		default:
			return fmt.Errorf("%w: %q", ErrUnknownConflictPolicy, cfg.ConflictPolicy)
		}
	}

	if remoteHash != "" {
		if err := remote.Delete(ctx, unit.path); err != nil {
			return err
		}
		out.uploaded++
	}
	if err := c.states.Delete(ctx, unit.path); err != nil {
		return err
	}
	out.commitIDs = append(out.commitIDs, recordIDs(unit.records)...)
	return nil
}

func (c *Coordinator) pushContent(
	ctx context.Context,
	remote adapter.RemoteAdapter,
	cfg models.SyncConfig,
	unit entityUnit,
	rec models.ChangeRecord,
	baseLocalHash string,
	remoteHash string,
	remoteChanged bool,
	runStart time.Time,
	out *runOutcome,
) error {
	if !remoteChanged {
		// Re-reporting unchanged content is common (bulk host saves); an
		// identical hash against the merge base needs no transfer.
		if rec.ContentHash == baseLocalHash {
			out.commitIDs = append(out.commitIDs, recordIDs(unit.records)...)
			return nil
		}
		newHash, err := remote.Upload(ctx, unit.path, rec.Payload, remoteHash)
		if err != nil {
			return err
		}
		if err = c.upsertState(ctx, unit.path, rec, rec.ContentHash, newHash); err != nil {
			return err
		}
		out.uploaded++
		out.commitIDs = append(out.commitIDs, recordIDs(unit.records)...)
		return nil
	}

	resolution, err := c.resolver.Resolve(unit.path, rec.ContentHash, remoteHash, cfg.ConflictPolicy, runStart)
	if err != nil {
		return err
	}

	switch resolution.Winner {
	case WinnerNone:
		// Hashes agree after all (a provider reporting content hashes):
		// record the new base and move on.
		if err = c.upsertState(ctx, unit.path, rec, rec.ContentHash, remoteHash); err != nil {
			return err
		}
		out.commitIDs = append(out.commitIDs, recordIDs(unit.records)...)

	case WinnerLocal:
		newHash, err := remote.Upload(ctx, unit.path, rec.Payload, remoteHash)
		if err != nil {
			return err
		}
		if err = c.upsertState(ctx, unit.path, rec, rec.ContentHash, newHash); err != nil {
			return err
		}
		out.uploaded++
		out.commitIDs = append(out.commitIDs, recordIDs(unit.records)...)

	case WinnerRemote:
		if remoteHash == "" {
			// The remote deletion wins over the local edit.
			if err = c.entities.Remove(ctx, rec.EntityType, rec.EntityID); err != nil {
				return err
			}
			if err = c.states.Delete(ctx, unit.path); err != nil {
				return err
			}
		} else {
			content, err := remote.Download(ctx, unit.path)
			if err != nil {
				return err
			}
			if err = c.entities.Apply(ctx, rec.EntityType, rec.EntityID, content); err != nil {
				return err
			}
			if err = c.upsertState(ctx, unit.path, rec, contentHashHex(content), remoteHash); err != nil {
				return err
			}
			out.downloaded++
		}
		out.commitIDs = append(out.commitIDs, recordIDs(unit.records)...)

	case WinnerBoth:
		// The remote version keeps the original path and is pulled in
		// locally; the local version becomes the conflicted copy on both
		// sides. Neither version can be overwritten by a later edit of
		// just one of them.
		remoteContent, err := remote.Download(ctx, unit.path)
		if err != nil {
			return err
		}
		altHash, err := remote.Upload(ctx, resolution.AlternatePath, rec.Payload, "")
		if err != nil {
			return err
		}
		if err = c.entities.Apply(ctx, rec.EntityType, rec.EntityID, remoteContent); err != nil {
			return err
		}
		if altType, altID, ok := parseRemotePath(resolution.AlternatePath); ok {
			if err = c.entities.Apply(ctx, altType, altID, rec.Payload); err != nil {
				return err
			}
			err = c.states.Upsert(ctx, models.EntityState{
				Path:       resolution.AlternatePath,
				EntityType: altType,
				EntityID:   altID,
				LocalHash:  rec.ContentHash,
				RemoteHash: altHash,
				SyncedAt:   time.Now(),
			})
			if err != nil {
				return err
			}
		}
		if err = c.upsertState(ctx, unit.path, rec, contentHashHex(remoteContent), remoteHash); err != nil {
			return err
		}
		out.uploaded++
		out.downloaded++
		out.commitIDs = append(out.commitIDs, recordIDs(unit.records)...)

	case WinnerManual:
		out.conflicts = append(out.conflicts, models.ConflictRecord{
			EntityType:   rec.EntityType,
			EntityID:     rec.EntityID,
			RemotePath:   unit.path,
			LocalHash:    rec.ContentHash,
			RemoteHash:   remoteHash,
			LocalPayload: rec.Payload,
			DetectedAt:   time.Now(),
			Resolution:   models.ResolutionPending,
		})
	}

	return nil
}

func (c *Coordinator) downloadRemoteEntity(
	ctx context.Context,
	remote adapter.RemoteAdapter,
	obj models.RemoteObject,
	entityType models.EntityType,
	entityID string,
) (runOutcome, error) {
	var out runOutcome
	out.processed = 1

	content, err := remote.Download(ctx, obj.Path)
	if err != nil {
		return c.remoteEntityError(ctx, &out, entityType, entityID, err)
	}
	if err = c.entities.Apply(ctx, entityType, entityID, content); err != nil {
		return c.remoteEntityError(ctx, &out, entityType, entityID, err)
	}
	err = c.states.Upsert(ctx, models.EntityState{
		Path:       obj.Path,
		EntityType: entityType,
		EntityID:   entityID,
		LocalHash:  contentHashHex(content),
		RemoteHash: obj.Hash,
		SyncedAt:   time.Now(),
	})
	if err != nil {
		return c.remoteEntityError(ctx, &out, entityType, entityID, err)
	}

	out.downloaded++
	return out, nil
}

func (c *Coordinator) removeLocalEntity(ctx context.Context, base models.EntityState) (runOutcome, error) {
	var out runOutcome
	out.processed = 1

	if err := c.entities.Remove(ctx, base.EntityType, base.EntityID); err != nil {
		return c.remoteEntityError(ctx, &out, base.EntityType, base.EntityID, err)
	}
	if err := c.states.Delete(ctx, base.Path); err != nil {
		return c.remoteEntityError(ctx, &out, base.EntityType, base.EntityID, err)
	}

	out.downloaded++
	return out, nil
}

func (c *Coordinator) remoteEntityError(ctx context.Context, out *runOutcome, entityType models.EntityType, entityID string, err error) (runOutcome, error) {
	if errors.Is(err, adapter.ErrAuthentication) {
		return *out, err
	}
	if ctx.Err() != nil {
		return *out, ctx.Err()
	}
	key := string(entityType) + "/" + entityID
	out.errs = append(out.errs, fmt.Sprintf("%s: %v", key, err))
	c.logger.Warn().Err(err).Str("entity", key).Msg("remote entity sync failed")
	return *out, nil
}

// finishRun commits the run, updates status and stats, publishes the
// terminal phase, and relaxes back to idle.
func (c *Coordinator) finishRun(ctx context.Context, out runOutcome, direction models.SyncDirection, cancelled bool) models.SyncResult {
	if cancelled {
		// A cancelled run commits nothing and ends as if it never happened.
		c.mu.Lock()
		c.cancelRun = nil
		c.status.Phase = models.PhaseIdle
		c.status.Direction = ""
		st := c.statusLocked()
		c.mu.Unlock()
		c.publisher.Publish(st)
		return models.SyncResult{Status: models.PhaseIdle}
	}

	if !out.runFailed && len(out.commitIDs) > 0 {
		if err := c.changeLog.RemoveUpTo(ctx, out.commitIDs); err != nil {
			out.errs = append(out.errs, err.Error())
		}
	}

	phase := models.PhaseSuccess
	switch {
	case out.runFailed, len(out.errs) > 0:
		phase = models.PhaseFailed
	case len(out.conflicts) > 0:
		phase = models.PhaseConflict
	}

	result := models.SyncResult{
		Status:          phase,
		FilesUploaded:   out.uploaded,
		FilesDownloaded: out.downloaded,
		Errors:          out.errs,
	}

	c.mu.Lock()
	c.cancelRun = nil
	for _, conflict := range out.conflicts {
		c.conflicts[string(conflict.EntityType)+"/"+conflict.EntityID] = conflict
	}
	if out.authFailed {
		c.authSuspended = true
	}

	c.stats.TotalFiles += out.processed
	c.stats.SyncedFiles += out.uploaded + out.downloaded
	c.stats.FailedFiles += len(out.errs)

	c.status.Phase = phase
	c.status.Error = strings.Join(out.errs, "; ")
	if phase == models.PhaseSuccess {
		now := time.Now()
		c.status.LastSyncAt = &now
		if err := c.syncState.SaveLastSyncAt(ctx, now); err != nil {
			c.logger.Warn().Err(err).Msg("persist last sync time")
		}
	}
	st := c.statusLocked()
	c.mu.Unlock()
	c.publisher.Publish(st)

	c.logger.Info().
		Str("phase", string(phase)).
		Str("direction", string(direction)).
		Int("uploaded", out.uploaded).
		Int("downloaded", out.downloaded).
		Int("errors", len(out.errs)).
		Int("conflicts", len(out.conflicts)).
		Msg("sync run finished")

	// Terminal phases are transient: after subscribers have seen them the
	// coordinator is idle again. Error and conflict counts stay visible.
	c.mu.Lock()
	c.status.Phase = models.PhaseIdle
	c.status.Direction = ""
	st = c.statusLocked()
	c.mu.Unlock()
	c.publisher.Publish(st)

	return result
}

func (c *Coordinator) dropPendingRecords(ctx context.Context, key string) error {
	snapshot, err := c.changeLog.Snapshot(ctx)
	if err != nil {
		return err
	}
	var ids []string
	for _, rec := range snapshot {
		if rec.Key() == key {
			ids = append(ids, rec.ID)
		}
	}
	return c.changeLog.RemoveUpTo(ctx, ids)
}

func (c *Coordinator) upsertState(ctx context.Context, statePath string, rec models.ChangeRecord, localHash, remoteHash string) error {
	return c.states.Upsert(ctx, models.EntityState{
		Path:       statePath,
		EntityType: rec.EntityType,
		EntityID:   rec.EntityID,
		LocalHash:  localHash,
		RemoteHash: remoteHash,
		SyncedAt:   time.Now(),
	})
}

// statusLocked refreshes the derived counters and returns a copy. Callers
// must hold c.mu.
func (c *Coordinator) statusLocked() models.SyncStatus {
	c.status.PendingChanges = c.changeLog.Pending()
	c.status.Conflicts = len(c.conflicts)
	return c.status
}

func mergeOutcome(dst *runOutcome, src runOutcome) {
	dst.commitIDs = append(dst.commitIDs, src.commitIDs...)
	dst.uploaded += src.uploaded
	dst.downloaded += src.downloaded
	dst.processed += src.processed
	dst.errs = append(dst.errs, src.errs...)
	dst.conflicts = append(dst.conflicts, src.conflicts...)
}

func recordIDs(records []models.ChangeRecord) []string {
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}
	return ids
}

// parseRemotePath splits "note/abc.json" into its entity type and ID.
// Remote files that do not follow the layout are ignored by the engine.
func parseRemotePath(p string) (models.EntityType, string, bool) {
	dir, file := path.Split(p)
	dir = strings.Trim(dir, "/")
	entityType := models.EntityType(dir)
	if !entityType.Valid() {
		return "", "", false
	}
	ext := path.Ext(file)
	if ext != ".json" {
		return "", "", false
	}
	id := strings.TrimSuffix(file, ext)
	if id == "" {
		return "", "", false
	}
	return entityType, id, true
}
