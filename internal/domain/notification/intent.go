package notification

import "github.com/hybridtrack/attendance-backend-go/internal/domain/attendance"

// UserIntent is the closed set of actions a user can take from a
// notification. Handlers dispatch on the concrete type; adding a variant
// without handling it everywhere is a compile-time error at the
// exhaustive switches.
type UserIntent interface {
	isUserIntent()
}

// ConfirmStatus logs the given status for a date.
type ConfirmStatus struct {
	Date   string
	Status attendance.Status
}

// EnableLocation switches the user to auto tracking mode.
type EnableLocation struct{}

// CheckLocationNow triggers an immediate geofence check.
type CheckLocationNow struct{}

// DismissDay suppresses further reminders for the date without logging.
type DismissDay struct {
	Date string
}

func (ConfirmStatus) isUserIntent()    {}
func (EnableLocation) isUserIntent()   {}
func (CheckLocationNow) isUserIntent() {}
func (DismissDay) isUserIntent()       {}
