package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mkravets/notesync/internal/adapter"
	"github.com/mkravets/notesync/internal/logger"
	"github.com/mkravets/notesync/internal/mock"
	"github.com/mkravets/notesync/internal/store"
	"github.com/mkravets/notesync/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// ── StartSync: happy path ────────────────────────────────────────────────────

func TestCoordinator_StartSync_UploadsPendingChange(t *testing.T) {
	fx := newCoordFixture(t, defaultSyncConfig())
	content := []byte(`{"title":"hello"}`)
	fx.appendChange(t, models.EntityNote, "abc", content)

	result, err := fx.coord.StartSync(context.Background(), models.DirectionBidirectional)

	require.NoError(t, err)
	assert.Equal(t, models.PhaseSuccess, result.Status)
	assert.Equal(t, 1, result.FilesUploaded)
	assert.Empty(t, result.Errors)

	got, ok := fx.remote.content("note/abc.json")
	require.True(t, ok)
	assert.Equal(t, content, got)

	// The committed record is gone and the merge base reflects the upload.
	assert.Equal(t, 0, fx.changeLog.Pending())
	st, err := fx.states.Get(context.Background(), "note/abc.json")
	require.NoError(t, err)
	assert.Equal(t, contentHashHex(content), st.LocalHash)
	assert.Equal(t, contentHashHex(content), st.RemoteHash)

	status := fx.coord.Status()
	assert.Equal(t, models.PhaseIdle, status.Phase)
	require.NotNil(t, status.LastSyncAt)
}

func TestCoordinator_StartSync_PublishesPhaseTransitions(t *testing.T) {
	fx := newCoordFixture(t, defaultSyncConfig())
	fx.appendChange(t, models.EntityNote, "abc", []byte("x"))

	var phases []models.SyncPhase
	fx.publisher.Subscribe(func(st models.SyncStatus) { phases = append(phases, st.Phase) })

	_, err := fx.coord.StartSync(context.Background(), models.DirectionBidirectional)
	require.NoError(t, err)

	assert.Equal(t, []models.SyncPhase{models.PhaseSyncing, models.PhaseSuccess, models.PhaseIdle}, phases)
}

func TestCoordinator_StartSync_CollapsesRecordsOfOneEntity(t *testing.T) {
	fx := newCoordFixture(t, defaultSyncConfig())
	fx.appendChange(t, models.EntityNote, "abc", []byte("v1"))
	fx.appendChange(t, models.EntityNote, "abc", []byte("v2"))
	final := []byte("v3")
	fx.appendChange(t, models.EntityNote, "abc", final)

	result, err := fx.coord.StartSync(context.Background(), models.DirectionBidirectional)

	require.NoError(t, err)
	assert.Equal(t, models.PhaseSuccess, result.Status)
	assert.Equal(t, 1, result.FilesUploaded)

	got, _ := fx.remote.content("note/abc.json")
	assert.Equal(t, final, got)
	assert.Equal(t, 0, fx.changeLog.Pending())
}

func TestCoordinator_StartSync_DeletePropagates(t *testing.T) {
	fx := newCoordFixture(t, defaultSyncConfig())
	fx.seedSynced(t, models.EntityNote, "abc", []byte("old"))
	fx.appendDelete(t, models.EntityNote, "abc")

	result, err := fx.coord.StartSync(context.Background(), models.DirectionBidirectional)

	require.NoError(t, err)
	assert.Equal(t, models.PhaseSuccess, result.Status)

	_, ok := fx.remote.content("note/abc.json")
	assert.False(t, ok)
	_, err = fx.states.Get(context.Background(), "note/abc.json")
	assert.Error(t, err)
	assert.Equal(t, 0, fx.changeLog.Pending())
}

// Re-reporting content identical to the merge base commits the record
// without a transfer.
func TestCoordinator_StartSync_IdenticalContentSkipsUpload(t *testing.T) {
	fx := newCoordFixture(t, defaultSyncConfig())
	content := []byte("same")
	fx.seedSynced(t, models.EntityNote, "abc", content)
	fx.appendChange(t, models.EntityNote, "abc", content)

	result, err := fx.coord.StartSync(context.Background(), models.DirectionBidirectional)

	require.NoError(t, err)
	assert.Equal(t, models.PhaseSuccess, result.Status)
	assert.Equal(t, 0, result.FilesUploaded)
	assert.Equal(t, 0, fx.changeLog.Pending())
}

// ── Gates ────────────────────────────────────────────────────────────────────

func TestCoordinator_StartSync_Disabled(t *testing.T) {
	cfg := defaultSyncConfig()
	cfg.Enabled = false
	fx := newCoordFixture(t, cfg)

	_, err := fx.coord.StartSync(context.Background(), models.DirectionBidirectional)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSyncDisabled)
}

func TestCoordinator_StartSync_InvalidDirection(t *testing.T) {
	fx := newCoordFixture(t, defaultSyncConfig())

	_, err := fx.coord.StartSync(context.Background(), "sideways")

	require.Error(t, err)
}

// Only one of any number of concurrent requests transitions away from idle;
// the rest get ErrSyncInProgress and cause no run.
func TestCoordinator_StartSync_AtMostOneInFlight(t *testing.T) {
	fx := newCoordFixture(t, defaultSyncConfig())
	fx.appendChange(t, models.EntityNote, "abc", []byte("x"))

	release := make(chan struct{})
	fx.remote.blockCh = release

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := fx.coord.StartSync(context.Background(), models.DirectionBidirectional)
		assert.NoError(t, err)
	}()

	// Wait until the first run holds the state machine.
	require.Eventually(t, func() bool {
		return fx.coord.Status().Phase == models.PhaseSyncing
	}, time.Second, time.Millisecond)

	_, err := fx.coord.StartSync(context.Background(), models.DirectionBidirectional)
	assert.ErrorIs(t, err, ErrSyncInProgress)

	close(release)
	wg.Wait()
	assert.Equal(t, models.PhaseIdle, fx.coord.Status().Phase)
}

// ── Conflict policies ────────────────────────────────────────────────────────

func TestCoordinator_StartSync_LocalWinsOverwritesRemote(t *testing.T) {
	fx := newCoordFixture(t, defaultSyncConfig())
	fx.seedSynced(t, models.EntityNote, "abc", []byte("base"))
	fx.remote.put("note/abc.json", []byte("remote edit"))
	local := []byte("local edit")
	fx.appendChange(t, models.EntityNote, "abc", local)

	result, err := fx.coord.StartSync(context.Background(), models.DirectionBidirectional)

	require.NoError(t, err)
	assert.Equal(t, models.PhaseSuccess, result.Status)
	got, _ := fx.remote.content("note/abc.json")
	assert.Equal(t, local, got)
}

func TestCoordinator_StartSync_RemoteWinsDiscardsLocal(t *testing.T) {
	cfg := defaultSyncConfig()
	cfg.ConflictPolicy = models.PolicyRemoteWins
	fx := newCoordFixture(t, cfg)
	fx.seedSynced(t, models.EntityNote, "abc", []byte("base"))
	remoteEdit := []byte("remote edit")
	fx.remote.put("note/abc.json", remoteEdit)
	fx.appendChange(t, models.EntityNote, "abc", []byte("local edit"))

	result, err := fx.coord.StartSync(context.Background(), models.DirectionBidirectional)

	require.NoError(t, err)
	assert.Equal(t, models.PhaseSuccess, result.Status)
	assert.Equal(t, 1, result.FilesDownloaded)

	// The remote copy is untouched and was applied locally; the local
	// change record is discarded without an upload.
	got, _ := fx.remote.content("note/abc.json")
	assert.Equal(t, remoteEdit, got)
	applied, ok := fx.entities.appliedContent("note/abc")
	require.True(t, ok)
	assert.Equal(t, remoteEdit, applied)
	assert.Equal(t, 0, fx.changeLog.Pending())
}

func TestCoordinator_StartSync_CreateBothKeepsBothCopies(t *testing.T) {
	cfg := defaultSyncConfig()
	cfg.ConflictPolicy = models.PolicyCreateBoth
	fx := newCoordFixture(t, cfg)
	fx.seedSynced(t, models.EntityNote, "abc", []byte("base"))
	remoteEdit := []byte("remote edit")
	localEdit := []byte("local edit")
	fx.remote.put("note/abc.json", remoteEdit)
	fx.appendChange(t, models.EntityNote, "abc", localEdit)

	result, err := fx.coord.StartSync(context.Background(), models.DirectionBidirectional)

	require.NoError(t, err)
	assert.Equal(t, models.PhaseSuccess, result.Status)

	// Original path keeps the remote edit; the local edit lives under the
	// disambiguated copy. Both versions exist on both sides.
	got, _ := fx.remote.content("note/abc.json")
	assert.Equal(t, remoteEdit, got)
	applied, ok := fx.entities.appliedContent("note/abc")
	require.True(t, ok)
	assert.Equal(t, remoteEdit, applied)

	objs, err := fx.remote.List(context.Background(), "")
	require.NoError(t, err)
	var altPath string
	for _, obj := range objs {
		if obj.Path != "note/abc.json" {
			altPath = obj.Path
			alt, _ := fx.remote.content(obj.Path)
			assert.Equal(t, localEdit, alt)
			assert.Contains(t, obj.Path, "conflicted copy")
		}
	}
	require.NotEmpty(t, altPath)
	altID := strings.TrimSuffix(strings.TrimPrefix(altPath, "note/"), ".json")
	altApplied, ok := fx.entities.appliedContent("note/" + altID)
	require.True(t, ok)
	assert.Equal(t, localEdit, altApplied)
	assert.Equal(t, 0, fx.changeLog.Pending())
}

// An ordinary edit after a CreateBoth fork overwrites only the copy it
// touches; the forked version stays intact.
func TestCoordinator_StartSync_CreateBothSurvivesFollowUpEdit(t *testing.T) {
	cfg := defaultSyncConfig()
	cfg.ConflictPolicy = models.PolicyCreateBoth
	fx := newCoordFixture(t, cfg)
	fx.seedSynced(t, models.EntityNote, "abc", []byte("base"))
	localEdit := []byte("local edit")
	fx.remote.put("note/abc.json", []byte("remote edit"))
	fx.appendChange(t, models.EntityNote, "abc", localEdit)

	_, err := fx.coord.StartSync(context.Background(), models.DirectionBidirectional)
	require.NoError(t, err)

	followUp := []byte("follow-up edit")
	fx.appendChange(t, models.EntityNote, "abc", followUp)
	result, err := fx.coord.StartSync(context.Background(), models.DirectionBidirectional)

	require.NoError(t, err)
	assert.Equal(t, models.PhaseSuccess, result.Status)
	got, _ := fx.remote.content("note/abc.json")
	assert.Equal(t, followUp, got)

	// The conflicted copy from the fork is untouched by the second run.
	objs, err := fx.remote.List(context.Background(), "")
	require.NoError(t, err)
	var forkSurvives bool
	for _, obj := range objs {
		if obj.Path == "note/abc.json" {
			continue
		}
		alt, _ := fx.remote.content(obj.Path)
		if string(alt) == string(localEdit) {
			forkSurvives = true
		}
	}
	assert.True(t, forkSurvives)
}

func TestCoordinator_StartSync_ManualMergeRaisesConflict(t *testing.T) {
	cfg := defaultSyncConfig()
	cfg.ConflictPolicy = models.PolicyManualMerge
	fx := newCoordFixture(t, cfg)
	fx.seedSynced(t, models.EntityNote, "abc", []byte("base"))
	fx.remote.put("note/abc.json", []byte("remote edit"))
	fx.appendChange(t, models.EntityNote, "abc", []byte("local edit"))

	result, err := fx.coord.StartSync(context.Background(), models.DirectionBidirectional)

	require.NoError(t, err)
	assert.Equal(t, models.PhaseConflict, result.Status)

	// Neither side was touched and the record stays pending.
	got, _ := fx.remote.content("note/abc.json")
	assert.Equal(t, []byte("remote edit"), got)
	assert.Equal(t, 1, fx.changeLog.Pending())

	conflicts := fx.coord.Conflicts()
	require.Len(t, conflicts, 1)
	assert.Equal(t, "abc", conflicts[0].EntityID)
	assert.Equal(t, models.ResolutionPending, conflicts[0].Resolution)
	assert.Equal(t, 1, fx.coord.Status().Conflicts)
}

// A run with several entities where one raises a manual conflict commits
// the others and leaves exactly the conflicting one pending.
func TestCoordinator_StartSync_PartialCommitOnConflict(t *testing.T) {
	cfg := defaultSyncConfig()
	cfg.ConflictPolicy = models.PolicyManualMerge
	fx := newCoordFixture(t, cfg)

	fx.seedSynced(t, models.EntityNote, "conflicted", []byte("base"))
	fx.remote.put("note/conflicted.json", []byte("remote edit"))

	for _, id := range []string{"a", "b", "c"} {
		fx.appendChange(t, models.EntityNote, id, []byte("content "+id))
	}
	fx.appendChange(t, models.EntityNote, "conflicted", []byte("local edit"))

	result, err := fx.coord.StartSync(context.Background(), models.DirectionBidirectional)

	require.NoError(t, err)
	assert.Equal(t, models.PhaseConflict, result.Status)
	assert.Equal(t, 3, result.FilesUploaded)
	assert.Equal(t, 1, fx.changeLog.Pending())
	assert.Equal(t, 1, fx.coord.Status().Conflicts)
}

// A blocked entity is skipped by subsequent runs until resolved.
func TestCoordinator_StartSync_ConflictBlocksEntity(t *testing.T) {
	cfg := defaultSyncConfig()
	cfg.ConflictPolicy = models.PolicyManualMerge
	fx := newCoordFixture(t, cfg)
	fx.seedSynced(t, models.EntityNote, "abc", []byte("base"))
	fx.remote.put("note/abc.json", []byte("remote edit"))
	fx.appendChange(t, models.EntityNote, "abc", []byte("local edit"))

	_, err := fx.coord.StartSync(context.Background(), models.DirectionBidirectional)
	require.NoError(t, err)
	require.Len(t, fx.coord.Conflicts(), 1)

	result, err := fx.coord.StartSync(context.Background(), models.DirectionBidirectional)
	require.NoError(t, err)

	assert.Equal(t, models.PhaseSuccess, result.Status)
	assert.Equal(t, 1, fx.changeLog.Pending())
	assert.Len(t, fx.coord.Conflicts(), 1)
}

// ── Failures ─────────────────────────────────────────────────────────────────

func TestCoordinator_StartSync_TransientFailureKeepsRecordPending(t *testing.T) {
	fx := newCoordFixture(t, defaultSyncConfig())
	fx.appendChange(t, models.EntityNote, "abc", []byte("x"))
	fx.remote.uploadErr = &adapter.TransientError{Op: "upload", Err: assert.AnError}

	result, err := fx.coord.StartSync(context.Background(), models.DirectionBidirectional)

	require.NoError(t, err)
	assert.Equal(t, models.PhaseFailed, result.Status)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 1, fx.changeLog.Pending())

	// The next run retries the same record.
	fx.remote.uploadErr = nil
	result, err = fx.coord.StartSync(context.Background(), models.DirectionBidirectional)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseSuccess, result.Status)
	assert.Equal(t, 0, fx.changeLog.Pending())
}

func TestCoordinator_StartSync_ListFailureAbortsRun(t *testing.T) {
	fx := newCoordFixture(t, defaultSyncConfig())
	fx.appendChange(t, models.EntityNote, "abc", []byte("x"))
	fx.remote.listErr = &adapter.TransientError{Op: "list", Err: assert.AnError}

	result, err := fx.coord.StartSync(context.Background(), models.DirectionBidirectional)

	require.NoError(t, err)
	assert.Equal(t, models.PhaseFailed, result.Status)
	assert.Equal(t, 1, fx.changeLog.Pending())
	assert.NotEmpty(t, fx.coord.Status().Error)
}

func TestCoordinator_AuthFailureSuspendsAutoSync(t *testing.T) {
	fx := newCoordFixture(t, defaultSyncConfig())
	fx.appendChange(t, models.EntityNote, "abc", []byte("x"))
	fx.remote.listErr = adapter.ErrAuthentication

	result, err := fx.coord.StartSync(context.Background(), models.DirectionBidirectional)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseFailed, result.Status)

	// Automatic triggers are now ignored.
	fx.remote.listErr = nil
	fx.coord.RequestAutoSync(context.Background())
	assert.Equal(t, 1, fx.changeLog.Pending())

	// New configuration lifts the suspension.
	fx.coord.UpdateConfig(defaultSyncConfig(), fx.remote)
	fx.coord.RequestAutoSync(context.Background())
	assert.Equal(t, 0, fx.changeLog.Pending())
}

// ── StopSync ─────────────────────────────────────────────────────────────────

func TestCoordinator_StopSync_CancelledRunCommitsNothing(t *testing.T) {
	fx := newCoordFixture(t, defaultSyncConfig())
	fx.appendChange(t, models.EntityNote, "abc", []byte("x"))

	release := make(chan struct{})
	fx.remote.blockCh = release

	done := make(chan models.SyncResult, 1)
	go func() {
		result, _ := fx.coord.StartSync(context.Background(), models.DirectionBidirectional)
		done <- result
	}()

	require.Eventually(t, func() bool {
		return fx.coord.Status().Phase == models.PhaseSyncing
	}, time.Second, time.Millisecond)

	fx.coord.StopSync()
	close(release)

	result := <-done
	assert.Equal(t, models.PhaseIdle, result.Status)
	assert.Equal(t, 1, fx.changeLog.Pending())
	assert.Equal(t, models.PhaseIdle, fx.coord.Status().Phase)
}

func TestCoordinator_StopSync_WhileIdleIsNoop(t *testing.T) {
	fx := newCoordFixture(t, defaultSyncConfig())

	assert.NotPanics(t, func() { fx.coord.StopSync() })
}

// ── Download direction ───────────────────────────────────────────────────────

func TestCoordinator_StartSync_DownloadAppliesRemoteEntities(t *testing.T) {
	fx := newCoordFixture(t, defaultSyncConfig())
	remoteContent := []byte(`{"title":"from remote"}`)
	fx.remote.put("note/xyz.json", remoteContent)

	result, err := fx.coord.StartSync(context.Background(), models.DirectionDownload)

	require.NoError(t, err)
	assert.Equal(t, models.PhaseSuccess, result.Status)
	assert.Equal(t, 1, result.FilesDownloaded)

	applied, ok := fx.entities.appliedContent("note/xyz")
	require.True(t, ok)
	assert.Equal(t, remoteContent, applied)

	st, err := fx.states.Get(context.Background(), "note/xyz.json")
	require.NoError(t, err)
	assert.Equal(t, contentHashHex(remoteContent), st.RemoteHash)
}

func TestCoordinator_StartSync_DownloadKeepsLocalRecordsPending(t *testing.T) {
	fx := newCoordFixture(t, defaultSyncConfig())
	fx.appendChange(t, models.EntityNote, "abc", []byte("local edit"))

	result, err := fx.coord.StartSync(context.Background(), models.DirectionDownload)

	require.NoError(t, err)
	assert.Equal(t, models.PhaseSuccess, result.Status)
	assert.Equal(t, 0, result.FilesUploaded)
	assert.Equal(t, 1, fx.changeLog.Pending())
	_, ok := fx.remote.content("note/abc.json")
	assert.False(t, ok)
}

func TestCoordinator_StartSync_RemoteDeletionPropagatesLocally(t *testing.T) {
	fx := newCoordFixture(t, defaultSyncConfig())
	fx.seedSynced(t, models.EntityNote, "gone", []byte("content"))
	require.NoError(t, fx.remote.Delete(context.Background(), "note/gone.json"))

	result, err := fx.coord.StartSync(context.Background(), models.DirectionBidirectional)

	require.NoError(t, err)
	assert.Equal(t, models.PhaseSuccess, result.Status)
	assert.Contains(t, fx.entities.removed, "note/gone")
	_, err = fx.states.Get(context.Background(), "note/gone.json")
	assert.Error(t, err)
}

func TestCoordinator_StartSync_UnchangedRemoteIsSkipped(t *testing.T) {
	fx := newCoordFixture(t, defaultSyncConfig())
	fx.seedSynced(t, models.EntityNote, "same", []byte("content"))

	result, err := fx.coord.StartSync(context.Background(), models.DirectionBidirectional)

	require.NoError(t, err)
	assert.Equal(t, models.PhaseSuccess, result.Status)
	assert.Equal(t, 0, result.FilesDownloaded)
	_, ok := fx.entities.appliedContent("note/same")
	assert.False(t, ok)
}

func TestCoordinator_StartSync_IgnoresForeignRemoteFiles(t *testing.T) {
	fx := newCoordFixture(t, defaultSyncConfig())
	fx.remote.put("README.md", []byte("not an entity"))
	fx.remote.put("attachment/img.png", []byte{0x89, 0x50})

	result, err := fx.coord.StartSync(context.Background(), models.DirectionBidirectional)

	require.NoError(t, err)
	assert.Equal(t, models.PhaseSuccess, result.Status)
	assert.Equal(t, 0, result.FilesDownloaded)
}

// ── ResolveConflict ──────────────────────────────────────────────────────────

func newConflictedFixture(t *testing.T) (*coordFixture, []byte, []byte) {
	t.Helper()
	cfg := defaultSyncConfig()
	cfg.ConflictPolicy = models.PolicyManualMerge
	fx := newCoordFixture(t, cfg)

	fx.seedSynced(t, models.EntityNote, "abc", []byte("base"))
	remoteEdit := []byte("remote edit")
	localEdit := []byte("local edit")
	fx.remote.put("note/abc.json", remoteEdit)
	fx.appendChange(t, models.EntityNote, "abc", localEdit)

	_, err := fx.coord.StartSync(context.Background(), models.DirectionBidirectional)
	require.NoError(t, err)
	require.Len(t, fx.coord.Conflicts(), 1)
	return fx, localEdit, remoteEdit
}

func TestCoordinator_ResolveConflict_KeepLocal(t *testing.T) {
	fx, localEdit, _ := newConflictedFixture(t)

	err := fx.coord.ResolveConflict(context.Background(), models.EntityNote, "abc", models.ResolutionKeepLocal)
	require.NoError(t, err)

	got, _ := fx.remote.content("note/abc.json")
	assert.Equal(t, localEdit, got)
	assert.Empty(t, fx.coord.Conflicts())
	assert.Equal(t, 0, fx.changeLog.Pending())
	assert.Equal(t, 0, fx.coord.Status().Conflicts)
}

func TestCoordinator_ResolveConflict_KeepRemote(t *testing.T) {
	fx, _, remoteEdit := newConflictedFixture(t)

	err := fx.coord.ResolveConflict(context.Background(), models.EntityNote, "abc", models.ResolutionKeepRemote)
	require.NoError(t, err)

	applied, ok := fx.entities.appliedContent("note/abc")
	require.True(t, ok)
	assert.Equal(t, remoteEdit, applied)
	assert.Empty(t, fx.coord.Conflicts())
	assert.Equal(t, 0, fx.changeLog.Pending())
}

func TestCoordinator_ResolveConflict_Unknown(t *testing.T) {
	fx := newCoordFixture(t, defaultSyncConfig())

	err := fx.coord.ResolveConflict(context.Background(), models.EntityNote, "nope", models.ResolutionKeepLocal)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflictNotFound)
}

func TestCoordinator_ResolveConflict_InvalidResolution(t *testing.T) {
	fx, _, _ := newConflictedFixture(t)

	err := fx.coord.ResolveConflict(context.Background(), models.EntityNote, "abc", "merge_by_hand")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidResolution)
}

// ── TestConnection / status plumbing ─────────────────────────────────────────

func TestCoordinator_TestConnection(t *testing.T) {
	ctrl := gomock.NewController(t)
	fx := newCoordFixture(t, defaultSyncConfig())

	remote := mock.NewMockRemoteAdapter(ctrl)
	remote.EXPECT().Probe(gomock.Any()).Return(nil)
	fx.coord.UpdateConfig(defaultSyncConfig(), remote)

	var phases []models.SyncPhase
	fx.publisher.Subscribe(func(st models.SyncStatus) { phases = append(phases, st.Phase) })

	require.NoError(t, fx.coord.TestConnection(context.Background()))

	assert.Equal(t, []models.SyncPhase{models.PhaseTesting, models.PhaseIdle}, phases)
	assert.Empty(t, fx.coord.Status().Error)
}

func TestCoordinator_TestConnection_Failure(t *testing.T) {
	ctrl := gomock.NewController(t)
	fx := newCoordFixture(t, defaultSyncConfig())

	remote := mock.NewMockRemoteAdapter(ctrl)
	remote.EXPECT().Probe(gomock.Any()).Return(adapter.ErrAuthentication)
	fx.coord.UpdateConfig(defaultSyncConfig(), remote)

	err := fx.coord.TestConnection(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, adapter.ErrAuthentication)
	assert.Equal(t, models.PhaseIdle, fx.coord.Status().Phase)
	assert.NotEmpty(t, fx.coord.Status().Error)
}

func TestCoordinator_Status_TracksPendingChanges(t *testing.T) {
	fx := newCoordFixture(t, defaultSyncConfig())

	assert.Equal(t, 0, fx.coord.Status().PendingChanges)
	fx.appendChange(t, models.EntityNote, "a", []byte("x"))
	fx.appendChange(t, models.EntityNote, "b", []byte("y"))
	assert.Equal(t, 2, fx.coord.Status().PendingChanges)
}

func TestCoordinator_SetOnline_Publishes(t *testing.T) {
	fx := newCoordFixture(t, defaultSyncConfig())

	var got []bool
	fx.publisher.Subscribe(func(st models.SyncStatus) { got = append(got, st.IsOnline) })

	fx.coord.SetOnline(false)
	fx.coord.SetOnline(true)

	assert.Equal(t, []bool{false, true}, got)
	assert.True(t, fx.coord.Status().IsOnline)
}

func TestCoordinator_LastSyncAtRestoredOnConstruction(t *testing.T) {
	fx := newCoordFixture(t, defaultSyncConfig())
	fx.appendChange(t, models.EntityNote, "abc", []byte("x"))

	_, err := fx.coord.StartSync(context.Background(), models.DirectionBidirectional)
	require.NoError(t, err)
	require.NotNil(t, fx.coord.Status().LastSyncAt)

	// A fresh coordinator over the same persisted state sees the timestamp.
	reopened, err := NewCoordinator(
		context.Background(), fx.changeLog, fx.remote, fx.entities,
		&store.Storages{ChangeLog: fx.repo, EntityState: fx.states, SyncState: fx.syncState},
		NewStatusPublisher(), defaultSyncConfig(), logger.Nop(),
	)
	require.NoError(t, err)
	require.NotNil(t, reopened.Status().LastSyncAt)
}

func TestCoordinator_Stats_Accumulate(t *testing.T) {
	fx := newCoordFixture(t, defaultSyncConfig())

	fx.appendChange(t, models.EntityNote, "a", []byte("x"))
	_, err := fx.coord.StartSync(context.Background(), models.DirectionBidirectional)
	require.NoError(t, err)

	fx.appendChange(t, models.EntityNote, "b", []byte("y"))
	_, err = fx.coord.StartSync(context.Background(), models.DirectionBidirectional)
	require.NoError(t, err)

	stats := fx.coord.Stats()
	assert.Equal(t, 2, stats.TotalFiles)
	assert.Equal(t, 2, stats.SyncedFiles)
	assert.Equal(t, 0, stats.FailedFiles)
}
