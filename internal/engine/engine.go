// Package engine assembles the synchronization services into the single
// facade a host application embeds. The host reports local edits and
// configuration changes; the engine owns scheduling, transfer, and conflict
// handling.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mkravets/notesync/internal/adapter"
	"github.com/mkravets/notesync/internal/config"
	"github.com/mkravets/notesync/internal/logger"
	"github.com/mkravets/notesync/internal/service"
	"github.com/mkravets/notesync/internal/store"
	"github.com/mkravets/notesync/models"
)

// Engine is the embeddable synchronization engine. All methods are safe for
// concurrent use. Construct with New, then Start; an Engine that was never
// started still answers Status, ReportChange, and Configure.
type Engine struct {
	storages    *store.Storages
	changeLog   *service.ChangeLog
	coordinator *service.Coordinator
	scheduler   *service.Scheduler
	publisher   *service.StatusPublisher
	logger      *logger.Logger

	mu      sync.Mutex
	started bool
}

// New wires the engine over the given storages and the host's entity store.
// A sync configuration persisted by a previous run takes precedence over
// cfg; cfg is the fallback for a first start.
func New(
	ctx context.Context,
	cfg models.SyncConfig,
	storages *store.Storages,
	entities service.EntityStore,
	log *logger.Logger,
) (*Engine, error) {
	persisted, err := storages.SyncState.LoadConfig(ctx)
	switch {
	case err == nil:
		cfg = persisted
	case errors.Is(err, store.ErrSyncStateNotFound):
		// First start, keep the supplied configuration.
	default:
		return nil, fmt.Errorf("load persisted sync config: %w", err)
	}

	if err := config.ValidateSyncConfig(cfg); err != nil {
		return nil, fmt.Errorf("sync config: %w", err)
	}

	remote, err := buildAdapter(cfg, log)
	if err != nil {
		return nil, err
	}

	changeLog, err := service.NewChangeLog(ctx, storages.ChangeLog, log)
	if err != nil {
		return nil, fmt.Errorf("restore change log: %w", err)
	}

	publisher := service.NewStatusPublisher()

	coordinator, err := service.NewCoordinator(ctx, changeLog, remote, entities, storages, publisher, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("create coordinator: %w", err)
	}

	scheduler := service.NewScheduler(coordinator, log)
	changeLog.SetOnAppend(scheduler.NotifyChange)

	return &Engine{
		storages:    storages,
		changeLog:   changeLog,
		coordinator: coordinator,
		scheduler:   scheduler,
		publisher:   publisher,
		logger:      log,
	}, nil
}

// buildAdapter constructs the remote adapter for cfg. A disabled
// configuration gets no adapter; every operation that would need one is
// gated on Enabled before reaching it.
func buildAdapter(cfg models.SyncConfig, log *logger.Logger) (adapter.RemoteAdapter, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	remote, err := adapter.New(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("create remote adapter: %w", err)
	}
	return remote, nil
}

// Start launches the automatic sync triggers. Idempotent; a second call
// while running is a no-op.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.started = true
	e.scheduler.Start(ctx)
	e.logger.Info().Msg("sync engine started")
}

// Stop shuts down the triggers and interrupts a run in flight. Blocks until
// the scheduler loop has terminated.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return
	}
	e.started = false
	e.coordinator.StopSync()
	e.scheduler.Stop()
	e.logger.Info().Msg("sync engine stopped")
}

// ReportChange records one local mutation. The host calls this for every
// create, update, and delete it commits to its own storage; the engine
// debounces the resulting sync.
func (e *Engine) ReportChange(ctx context.Context, n models.ChangeNotification) error {
	_, err := e.changeLog.Append(ctx, n)
	return err
}

// Configure validates, persists, and applies a new sync configuration. The
// adapter is rebuilt and the periodic trigger retuned without restarting
// the engine.
func (e *Engine) Configure(ctx context.Context, cfg models.SyncConfig) error {
	if err := config.ValidateSyncConfig(cfg); err != nil {
		return fmt.Errorf("sync config: %w", err)
	}

	remote, err := buildAdapter(cfg, e.logger)
	if err != nil {
		return err
	}

	if err := e.storages.SyncState.SaveConfig(ctx, cfg); err != nil {
		return fmt.Errorf("persist sync config: %w", err)
	}

	e.coordinator.UpdateConfig(cfg, remote)
	e.scheduler.UpdateInterval(cfg.SyncInterval)

	e.logger.Info().
		Str("provider", string(cfg.Provider)).
		Bool("enabled", cfg.Enabled).
		Msg("sync configuration applied")
	return nil
}

// Config returns the active sync configuration.
func (e *Engine) Config() models.SyncConfig {
	return e.coordinator.Config()
}

// Status returns the current engine status snapshot.
func (e *Engine) Status() models.SyncStatus {
	return e.coordinator.Status()
}

// Stats returns cumulative transfer counters.
func (e *Engine) Stats() models.SyncStats {
	return e.coordinator.Stats()
}

// Subscribe registers a status callback and returns its token for
// Unsubscribe. Callbacks run synchronously on the publishing goroutine.
func (e *Engine) Subscribe(fn func(models.SyncStatus)) int {
	return e.publisher.Subscribe(fn)
}

// Unsubscribe removes a previously registered status callback.
func (e *Engine) Unsubscribe(id int) {
	e.publisher.Unsubscribe(id)
}

// StartSync runs one manual sync in the calling goroutine.
func (e *Engine) StartSync(ctx context.Context, direction models.SyncDirection) (models.SyncResult, error) {
	return e.coordinator.StartSync(ctx, direction)
}

// StopSync interrupts the run in flight, if any.
func (e *Engine) StopSync() {
	e.coordinator.StopSync()
}

// TestConnection probes the configured remote without transferring
// anything.
func (e *Engine) TestConnection(ctx context.Context) error {
	if !e.coordinator.Config().Enabled {
		return service.ErrSyncDisabled
	}
	return e.coordinator.TestConnection(ctx)
}

// SetOnline reports the host's connectivity. An offline-to-online edge
// triggers a sync attempt when the engine is started.
func (e *Engine) SetOnline(online bool) {
	e.mu.Lock()
	started := e.started
	e.mu.Unlock()

	if started {
		e.scheduler.SetOnline(online)
		return
	}
	e.coordinator.SetOnline(online)
}

// Conflicts lists unresolved manual-merge conflicts, oldest first.
func (e *Engine) Conflicts() []models.ConflictRecord {
	return e.coordinator.Conflicts()
}

// ResolveConflict applies the user's decision for one held conflict.
func (e *Engine) ResolveConflict(ctx context.Context, entityType models.EntityType, entityID string, resolution models.ConflictResolution) error {
	return e.coordinator.ResolveConflict(ctx, entityType, entityID, resolution)
}

// ClearCache drops every pending change record. Destructive: edits that
// were never uploaded are forgotten. The persisted merge bases survive, so
// the next run re-detects differences against the remote.
func (e *Engine) ClearCache(ctx context.Context) error {
	return e.changeLog.Clear(ctx)
}
