package notification

import "time"

// Category partitions the notification surface. Manual-reminder and
// planned-day schedules belong to exactly one tracking mode; a mode
// switch tears down the previous mode's categories wholesale.
type Category string

const (
	CategoryManualReminder Category = "manual_reminder"
	CategoryPlannedOffice  Category = "planned_office"
	CategoryWeeklySummary  Category = "weekly_summary"
	CategoryAutoLogged     Category = "auto_logged"
	CategoryAutoWFH        Category = "auto_wfh"
)

// AllCategories returns every notification category.
func AllCategories() []Category {
	return []Category{
		CategoryManualReminder,
		CategoryPlannedOffice,
		CategoryWeeklySummary,
		CategoryAutoLogged,
		CategoryAutoWFH,
	}
}

// Spec is one notification that should exist in the schedule. ID is
// deterministic per (category, date) so reconciliation can diff the
// desired set against the currently scheduled set.
type Spec struct {
	ID       string    `json:"id"`
	Category Category  `json:"category"`
	Date     string    `json:"date,omitempty"` // day the notification is about
	FireAt   time.Time `json:"fireAt"`
	Title    string    `json:"title"`
	Message  string    `json:"message"`
}

// Push is a delivered notification event fanned out to a user's devices.
type Push struct {
	UserID   string      `json:"userId"`
	Category Category    `json:"category"`
	Title    string      `json:"title"`
	Message  string      `json:"message"`
	Data     interface{} `json:"data,omitempty"`
	SentAt   time.Time   `json:"sentAt"`
}
