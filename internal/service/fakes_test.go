package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/mkravets/notesync/internal/adapter"
	"github.com/mkravets/notesync/internal/logger"
	"github.com/mkravets/notesync/internal/store"
	"github.com/mkravets/notesync/models"
	"github.com/stretchr/testify/require"
)

// ─────────────────────────────────────────────────────────────────────────────
// In-memory fakes for the repository, host store, and remote adapter seams
// ─────────────────────────────────────────────────────────────────────────────

type fakeChangeLogRepo struct {
	mu        sync.Mutex
	records   []models.ChangeRecord
	appendErr error
	listErr   error
}

func (f *fakeChangeLogRepo) Append(_ context.Context, rec models.ChangeRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeChangeLogRepo) List(_ context.Context) ([]models.ChangeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]models.ChangeRecord, len(f.records))
	copy(out, f.records)
	return out, nil
}

func (f *fakeChangeLogRepo) DeleteByIDs(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := f.records[:0]
	for _, rec := range f.records {
		if !drop[rec.ID] {
			kept = append(kept, rec)
		}
	}
	f.records = kept
	return nil
}

func (f *fakeChangeLogRepo) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = nil
	return nil
}

func (f *fakeChangeLogRepo) Count(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records), nil
}

type fakeEntityStateRepo struct {
	mu     sync.Mutex
	states map[string]models.EntityState
}

func newFakeEntityStateRepo() *fakeEntityStateRepo {
	return &fakeEntityStateRepo{states: map[string]models.EntityState{}}
}

func (f *fakeEntityStateRepo) Get(_ context.Context, path string) (models.EntityState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.states[path]
	if !ok {
		return models.EntityState{}, store.ErrEntityStateNotFound
	}
	return st, nil
}

func (f *fakeEntityStateRepo) List(_ context.Context) ([]models.EntityState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.EntityState, 0, len(f.states))
	for _, st := range f.states {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (f *fakeEntityStateRepo) Upsert(_ context.Context, st models.EntityState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[st.Path] = st
	return nil
}

func (f *fakeEntityStateRepo) Delete(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.states, path)
	return nil
}

type fakeSyncStateRepo struct {
	mu         sync.Mutex
	cfg        *models.SyncConfig
	lastSyncAt *time.Time
}

func (f *fakeSyncStateRepo) SaveConfig(_ context.Context, cfg models.SyncConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg = &cfg
	return nil
}

func (f *fakeSyncStateRepo) LoadConfig(_ context.Context) (models.SyncConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cfg == nil {
		return models.SyncConfig{}, store.ErrSyncStateNotFound
	}
	return *f.cfg, nil
}

func (f *fakeSyncStateRepo) SaveLastSyncAt(_ context.Context, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSyncAt = &at
	return nil
}

func (f *fakeSyncStateRepo) LastSyncAt(_ context.Context) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lastSyncAt == nil {
		return time.Time{}, store.ErrSyncStateNotFound
	}
	return *f.lastSyncAt, nil
}

type fakeEntityStore struct {
	mu      sync.Mutex
	applied map[string][]byte
	removed []string
}

func newFakeEntityStore() *fakeEntityStore {
	return &fakeEntityStore{applied: map[string][]byte{}}
}

func (f *fakeEntityStore) Apply(_ context.Context, entityType models.EntityType, entityID string, content []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied[string(entityType)+"/"+entityID] = content
	return nil
}

func (f *fakeEntityStore) Remove(_ context.Context, entityType models.EntityType, entityID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, string(entityType)+"/"+entityID)
	return nil
}

func (f *fakeEntityStore) appliedContent(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.applied[key]
	return content, ok
}

// fakeRemote is an in-memory RemoteAdapter with the same conditional-upload
// semantics as the real providers. Error fields inject failures; blockCh,
// when set, makes Upload wait until the channel is closed.
type fakeRemote struct {
	mu      sync.Mutex
	files   map[string][]byte
	uploads int
	deletes int

	uploadErr   error
	downloadErr error
	listErr     error
	probeErr    error
	blockCh     chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{files: map[string][]byte{}}
}

func (f *fakeRemote) Upload(ctx context.Context, path string, content []byte, prevRemoteHash string) (string, error) {
	if f.blockCh != nil {
		select {
		case <-f.blockCh:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return "", f.uploadErr
	}

	current, exists := f.files[path]
	switch {
	case exists && (prevRemoteHash == "" || contentHashHex(current) != prevRemoteHash):
		return "", fmt.Errorf("upload %s: %w", path, adapter.ErrRemoteConflict)
	case !exists && prevRemoteHash != "":
		return "", fmt.Errorf("upload %s: %w", path, adapter.ErrRemoteConflict)
	}

	f.files[path] = content
	f.uploads++
	return contentHashHex(content), nil
}

func (f *fakeRemote) Download(_ context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	content, ok := f.files[path]
	if !ok {
		return nil, fmt.Errorf("download %s: %w", path, adapter.ErrNotFound)
	}
	return content, nil
}

func (f *fakeRemote) List(_ context.Context, prefix string) ([]models.RemoteObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.RemoteObject
	for path, content := range f.files {
		if prefix != "" && !hasPathPrefix(path, prefix) {
			continue
		}
		out = append(out, models.RemoteObject{
			Path: path,
			Hash: contentHashHex(content),
			Size: int64(len(content)),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (f *fakeRemote) Delete(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, path)
	f.deletes++
	return nil
}

func (f *fakeRemote) Probe(_ context.Context) error {
	return f.probeErr
}

func (f *fakeRemote) content(path string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.files[path]
	return content, ok
}

func (f *fakeRemote) put(path string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = content
}

func hasPathPrefix(path, prefix string) bool {
	return len(path) >= len(prefix) && path[:len(prefix)] == prefix
}

// ─────────────────────────────────────────────────────────────────────────────
// Coordinator fixture
// ─────────────────────────────────────────────────────────────────────────────

type coordFixture struct {
	coord     *Coordinator
	changeLog *ChangeLog
	repo      *fakeChangeLogRepo
	states    *fakeEntityStateRepo
	syncState *fakeSyncStateRepo
	entities  *fakeEntityStore
	remote    *fakeRemote
	publisher *StatusPublisher
}

func defaultSyncConfig() models.SyncConfig {
	return models.SyncConfig{
		Enabled:          true,
		Provider:         models.ProviderLocal,
		Endpoint:         "/tmp/unused",
		RemotePath:       "/notes",
		SyncInterval:     5 * time.Minute,
		DebounceInterval: 2 * time.Second,
		RequestTimeout:   15 * time.Second,
		ConflictPolicy:   models.PolicyLocalWins,
	}
}

func newCoordFixture(t *testing.T, cfg models.SyncConfig) *coordFixture {
	t.Helper()

	repo := &fakeChangeLogRepo{}
	changeLog, err := NewChangeLog(context.Background(), repo, logger.Nop())
	require.NoError(t, err)

	states := newFakeEntityStateRepo()
	syncState := &fakeSyncStateRepo{}
	entities := newFakeEntityStore()
	remote := newFakeRemote()
	publisher := NewStatusPublisher()

	storages := &store.Storages{
		ChangeLog:   repo,
		EntityState: states,
		SyncState:   syncState,
	}

	coord, err := NewCoordinator(context.Background(), changeLog, remote, entities, storages, publisher, cfg, logger.Nop())
	require.NoError(t, err)

	return &coordFixture{
		coord:     coord,
		changeLog: changeLog,
		repo:      repo,
		states:    states,
		syncState: syncState,
		entities:  entities,
		remote:    remote,
		publisher: publisher,
	}
}

// appendChange records a local mutation and returns the created record.
func (fx *coordFixture) appendChange(t *testing.T, entityType models.EntityType, id string, content []byte) models.ChangeRecord {
	t.Helper()
	rec, err := fx.changeLog.Append(context.Background(), models.ChangeNotification{
		EntityType: entityType,
		Action:     models.ActionUpdate,
		EntityID:   id,
		Content:    content,
	})
	require.NoError(t, err)
	return rec
}

func (fx *coordFixture) appendDelete(t *testing.T, entityType models.EntityType, id string) models.ChangeRecord {
	t.Helper()
	rec, err := fx.changeLog.Append(context.Background(), models.ChangeNotification{
		EntityType: entityType,
		Action:     models.ActionDelete,
		EntityID:   id,
	})
	require.NoError(t, err)
	return rec
}

// seedSynced puts content on the remote and records the matching merge base,
// as if the entity had been synchronized before.
func (fx *coordFixture) seedSynced(t *testing.T, entityType models.EntityType, id string, content []byte) {
	t.Helper()
	path := string(entityType) + "/" + id + ".json"
	fx.remote.put(path, content)
	err := fx.states.Upsert(context.Background(), models.EntityState{
		Path:       path,
		EntityType: entityType,
		EntityID:   id,
		LocalHash:  contentHashHex(content),
		RemoteHash: contentHashHex(content),
		SyncedAt:   time.Now(),
	})
	require.NoError(t, err)
}
