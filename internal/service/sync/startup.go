package sync

import (
	"context"
	"log/slog"
	"time"

	syncdomain "github.com/hybridtrack/attendance-backend-go/internal/domain/sync"
)

// migrationStaleness: a remote document whose lastUpdated is missing or
// older than this while the local mirror holds populated data is assumed
// never to have received the local writes.
const migrationStaleness = 24 * time.Hour

// StartupReconcile compares the local mirror against the remote store and
// returns the snapshot the in-memory state should seed from.
//
// Two repairs can happen along the way:
//   - one-time migration: local data that never reached the remote store
//     is uploaded, guarded by the remote migrated flag so it cannot rerun;
//   - divergence repair: when the two sides disagree on attendance entry
//     counts, the richer side wins. A sparse remote snapshot is never
//     allowed to blow away a populated local mirror.
func (e *Engine) StartupReconcile(ctx context.Context, userID string) (syncdomain.Snapshot, error) {
	local, hasLocal, err := e.mirror.LoadSnapshot(ctx, userID)
	if err != nil {
		slog.Warn("Local mirror unreadable, treating as empty", "user_id", userID, "error", err)
		local, hasLocal = syncdomain.NewSnapshot(), false
	}

	// The fast lookup table is written alongside the blob; a count
	// mismatch means one of the two mirror writes was lost.
	if fastN, err := e.mirror.CountFastStatuses(ctx, userID); err == nil && fastN != len(local.AttendanceData) {
		slog.Warn("Mirror blob and fast lookup table disagree",
			"user_id", userID, "blob_entries", len(local.AttendanceData), "fast_entries", fastN)
	}

	rctx, cancel := context.WithTimeout(ctx, e.timeout)
	remote, remoteErr := e.remote.Load(rctx, userID)
	cancel()
	if remoteErr != nil {
		// Offline start: local mirror is authoritative until connectivity
		// returns and the queue drains.
		slog.Warn("Remote unreachable at startup, using local mirror",
			"user_id", userID, "error", remoteErr)
		return local, nil
	}

	if hasLocal && !local.Empty() && e.needsMigration(local, remote) {
		if err := e.migrate(ctx, userID, local); err != nil {
			slog.Error("Migration upload failed, continuing with local data",
				"user_id", userID, "error", err)
			return local, nil
		}
		return local, nil
	}

	merged := e.resolveDivergence(userID, local, hasLocal, remote)
	if err := e.mirror.SaveSnapshot(ctx, userID, merged); err != nil {
		slog.Error("Failed to persist startup snapshot to mirror", "user_id", userID, "error", err)
	}
	return merged, nil
}

func (e *Engine) needsMigration(local, remote syncdomain.Snapshot) bool {
	if remote.Migrated {
		return false
	}
	if len(local.AttendanceData) == 0 && len(local.PlannedDays) == 0 {
		return false
	}
	if remote.LastUpdated == nil {
		return true
	}
	return time.Since(*remote.LastUpdated) > migrationStaleness && len(remote.AttendanceData) == 0
}

// migrate uploads every unit of the local snapshot and sets the remote
// idempotency flag.
func (e *Engine) migrate(ctx context.Context, userID string, local syncdomain.Snapshot) error {
	slog.Info("Migrating local data to remote store",
		"user_id", userID,
		"attendance_entries", len(local.AttendanceData),
		"planned_days", len(local.PlannedDays))

	for _, unit := range syncdomain.AllUnits() {
		payload, err := local.UnitPayload(unit)
		if err != nil {
			return err
		}
		m := syncdomain.Mutation{
			UserID:  userID,
			Unit:    unit,
			Payload: payload,
			WriteID: NewWriteID(),
			At:      time.Now(),
		}
		e.rememberPending(m.WriteID)

		wctx, cancel := context.WithTimeout(ctx, e.timeout)
		err = e.remote.PatchUnit(wctx, m)
		cancel()
		if err != nil {
			return err
		}
	}

	mctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.remote.SetMigrated(mctx, userID)
}

// resolveDivergence picks between local and remote state when their entry
// counts disagree. Never a blind overwrite: the side with more entries is
// preferred and the loser is logged.
func (e *Engine) resolveDivergence(userID string, local syncdomain.Snapshot, hasLocal bool, remote syncdomain.Snapshot) syncdomain.Snapshot {
	if !hasLocal {
		return remote
	}

	localN, remoteN := len(local.AttendanceData), len(remote.AttendanceData)
	if localN == remoteN {
		return remote
	}

	slog.Warn("Local/remote attendance divergence",
		"user_id", userID, "local_entries", localN, "remote_entries", remoteN)

	if localN > remoteN {
		// Local is richer; reconcile the remote asynchronously through
		// the normal persist path so the repair survives failures.
		payload, err := local.UnitPayload(syncdomain.UnitAttendanceData)
		if err == nil {
			e.enqueue(syncdomain.Mutation{
				UserID:  userID,
				Unit:    syncdomain.UnitAttendanceData,
				Payload: payload,
				WriteID: NewWriteID(),
				At:      time.Now(),
			})
		}
		merged := remote
		merged.AttendanceData = local.AttendanceData
		return merged
	}
	return remote
}
