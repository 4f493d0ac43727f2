package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hybridtrack/attendance-backend-go/internal/domain/attendance"
	syncdomain "github.com/hybridtrack/attendance-backend-go/internal/domain/sync"
)

func localSnapshotWithEntries(dates ...string) syncdomain.Snapshot {
	snap := syncdomain.NewSnapshot()
	for _, d := range dates {
		snap.AttendanceData[d] = attendance.StatusOffice
	}
	return snap
}

func TestStartupOfflineUsesLocalMirror(t *testing.T) {
	remote := newFakeRemote()
	remote.failing = true
	mirror := newFakeMirror()
	local := localSnapshotWithEntries("2025-03-10", "2025-03-11")
	require.NoError(t, mirror.SaveSnapshot(context.Background(), "u1", local))

	engine := NewEngine(remote, mirror)
	got, err := engine.StartupReconcile(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, got.AttendanceData, 2)
}

func TestStartupMigratesLocalDataOnce(t *testing.T) {
	remote := newFakeRemote()
	mirror := newFakeMirror()
	local := localSnapshotWithEntries("2025-03-10")
	require.NoError(t, mirror.SaveSnapshot(context.Background(), "u1", local))

	engine := NewEngine(remote, mirror)
	got, err := engine.StartupReconcile(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, got.AttendanceData, 1)

	// Every merge unit uploaded, idempotency flag set.
	assert.Len(t, remote.patchedUnits(), len(syncdomain.AllUnits()))
	assert.True(t, remote.snapshot.Migrated)

	// Second startup with the flag set must not re-upload.
	before := remote.patchCount()
	_, err = engine.StartupReconcile(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, before, remote.patchCount())
}

func TestStartupNoMigrationForFreshRemote(t *testing.T) {
	remote := newFakeRemote()
	now := time.Now()
	remote.snapshot = localSnapshotWithEntries("2025-03-09")
	remote.snapshot.LastUpdated = &now

	mirror := newFakeMirror()
	require.NoError(t, mirror.SaveSnapshot(context.Background(), "u1", localSnapshotWithEntries("2025-03-09")))

	engine := NewEngine(remote, mirror)
	_, err := engine.StartupReconcile(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, remote.patchCount())
}

func TestStartupRicherLocalWinsDivergence(t *testing.T) {
	remote := newFakeRemote()
	now := time.Now()
	remote.snapshot = localSnapshotWithEntries("2025-03-09")
	remote.snapshot.LastUpdated = &now
	remote.snapshot.Migrated = true

	mirror := newFakeMirror()
	local := localSnapshotWithEntries("2025-03-09", "2025-03-10", "2025-03-11")
	require.NoError(t, mirror.SaveSnapshot(context.Background(), "u1", local))

	engine := NewEngine(remote, mirror)
	got, err := engine.StartupReconcile(context.Background(), "u1")
	require.NoError(t, err)

	// Local had more entries: they survive and a repair write is queued.
	assert.Len(t, got.AttendanceData, 3)
	assert.Equal(t, 1, engine.QueueLength())
}

func TestStartupRicherRemoteWinsDivergence(t *testing.T) {
	remote := newFakeRemote()
	now := time.Now()
	remote.snapshot = localSnapshotWithEntries("2025-03-09", "2025-03-10")
	remote.snapshot.LastUpdated = &now
	remote.snapshot.Migrated = true

	mirror := newFakeMirror()
	require.NoError(t, mirror.SaveSnapshot(context.Background(), "u1", localSnapshotWithEntries("2025-03-09")))

	engine := NewEngine(remote, mirror)
	got, err := engine.StartupReconcile(context.Background(), "u1")
	require.NoError(t, err)

	assert.Len(t, got.AttendanceData, 2)
	assert.Equal(t, 0, engine.QueueLength())

	// The mirror was refreshed with the winning snapshot.
	saved, ok, err := mirror.LoadSnapshot(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, saved.AttendanceData, 2)
}

func TestStartupEmptyBothSides(t *testing.T) {
	engine := NewEngine(newFakeRemote(), newFakeMirror())
	got, err := engine.StartupReconcile(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, got.AttendanceData)
	assert.Equal(t, 0, engine.QueueLength())
}

func TestStartupChecksFastTableConsistency(t *testing.T) {
	remote := newFakeRemote()
	mirror := newFakeMirror()
	local := localSnapshotWithEntries("2025-03-10", "2025-03-11")
	require.NoError(t, mirror.SaveSnapshot(context.Background(), "u1", local))
	require.NoError(t, mirror.SetFastStatus(context.Background(), "u1", "2025-03-10", attendance.StatusOffice))

	engine := NewEngine(remote, mirror)
	_, err := engine.StartupReconcile(context.Background(), "u1")
	require.NoError(t, err)

	mirror.mu.Lock()
	defer mirror.mu.Unlock()
	assert.Equal(t, 1, mirror.countCalls)
}
