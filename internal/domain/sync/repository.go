package sync

import (
	"context"

	"github.com/hybridtrack/attendance-backend-go/internal/domain/attendance"
)

// RemoteStore is the authoritative keyed-value document store, one
// document per device-derived user id.
type RemoteStore interface {
	// Load reads the full snapshot for a user. A user with no document
	// yet yields an empty snapshot, not an error.
	Load(ctx context.Context, userID string) (Snapshot, error)

	// PatchUnit replaces one merge unit. Last writer wins per unit; the
	// store records the mutation's WriteID and timestamp and emits a
	// change event to subscribers.
	PatchUnit(ctx context.Context, m Mutation) error

	// SetMigrated sets the one-time migration idempotency flag.
	SetMigrated(ctx context.Context, userID string) error

	// Subscribe opens a realtime change feed for a user. The cancel
	// function releases the subscription.
	Subscribe(ctx context.Context, userID string) (<-chan ChangeEvent, func(), error)

	// ListUserIDs enumerates every known user, for the server-side
	// scheduled push jobs.
	ListUserIDs(ctx context.Context) ([]string, error)
}

// LocalMirror is the read-through/write-through cache: a serialized
// snapshot blob per user plus a fast attendance lookup table used on the
// geofence and notification hot paths.
type LocalMirror interface {
	LoadSnapshot(ctx context.Context, userID string) (Snapshot, bool, error)
	SaveSnapshot(ctx context.Context, userID string, snap Snapshot) error

	// Fast lookup cache, maintained alongside the blob.
	FastStatus(ctx context.Context, userID, date string) (attendance.Status, bool, error)
	SetFastStatus(ctx context.Context, userID, date string, status attendance.Status) error
	DeleteFastStatus(ctx context.Context, userID, date string) error
	CountFastStatuses(ctx context.Context, userID string) (int, error)
}
