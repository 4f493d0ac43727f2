package attendance

import "context"

// Store is the single writer of attendance records and planned days.
// Every mutation in the system goes through this interface; no component
// touches the underlying maps directly.
type Store interface {
	// Mark sets the status for a date, writing through the local cache and
	// scheduling a remote persist. Marking today cancels today's reminders.
	Mark(ctx context.Context, userID, date string, status Status) error

	// Clear removes the record for a date. Symmetric side effects to Mark.
	Clear(ctx context.Context, userID, date string) error

	// Get returns the status for a date, or ErrNotFound when unlogged.
	Get(ctx context.Context, userID, date string) (Status, error)

	// BulkMark applies Mark semantics across a set of dates. The local
	// cache always succeeds; remote persistence is a single batched
	// mutation that the sync queue retries as one unit. Reminders for
	// today are cancelled once after the batch, not per date.
	BulkMark(ctx context.Context, userID string, dates []string, status Status) error

	// All returns a copy of the date -> status map for a user.
	All(ctx context.Context, userID string) (map[string]Status, error)

	// PlanDay records or updates an office/wfh intent for a future date.
	PlanDay(ctx context.Context, userID, date string, intent Intent) error

	// UnplanDay removes a planned day.
	UnplanDay(ctx context.Context, userID, date string) error

	// PlannedDays returns a copy of the date -> intent map for a user.
	PlannedDays(ctx context.Context, userID string) (map[string]Intent, error)

	// PrunePlanned drops planned days older than PlannedRetentionDays
	// relative to today and persists the shrunken map if anything changed.
	PrunePlanned(ctx context.Context, userID, today string) (int, error)
}
