package attendance

import "time"

// Status is the attendance outcome for a single calendar day.
type Status string

const (
	StatusOffice Status = "office"
	StatusWFH    Status = "wfh"
	StatusLeave  Status = "leave"
)

// AllStatuses returns every valid attendance status.
func AllStatuses() []Status {
	return []Status{StatusOffice, StatusWFH, StatusLeave}
}

// Valid reports whether s is one of the closed set of statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusOffice, StatusWFH, StatusLeave:
		return true
	}
	return false
}

// ParseStatus converts a wire string into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", ErrInvalidStatus
	}
	return s, nil
}

// Record is one logged day. Date is the canonical YYYY-MM-DD key in the
// user's local calendar; absence of a record means the day is unlogged.
type Record struct {
	Date   string `json:"date"`
	Status Status `json:"status"`
}

// Intent is a planned-day hint. Only office and wfh are meaningful as
// intents; leave is always logged directly.
type Intent = Status

// PlannedDay is a stated intention for a future date, independent of any
// actual attendance record.
type PlannedDay struct {
	Date   string `json:"date"`
	Intent Intent `json:"intent"`
}

// PlannedRetentionDays is how far into the past planned days are kept
// before being pruned.
const PlannedRetentionDays = 7

// MonthSummary aggregates logged days for a YYYY-MM month.
type MonthSummary struct {
	Month         string  `json:"month"`
	OfficeDays    int     `json:"officeDays"`
	WFHDays       int     `json:"wfhDays"`
	LeaveDays     int     `json:"leaveDays"`
	MonthlyTarget int     `json:"monthlyTarget"`
	TargetMet     bool    `json:"targetMet"`
	OfficePercent float64 `json:"officePercent"`
}

// WeekSummary aggregates logged days for a calendar week, used by the
// weekly summary pushes.
type WeekSummary struct {
	WeekStart  string `json:"weekStart"`
	OfficeDays int    `json:"officeDays"`
	WFHDays    int    `json:"wfhDays"`
	LeaveDays  int    `json:"leaveDays"`
	Unlogged   int    `json:"unlogged"`
}

// Event describes a store mutation delivered to observers.
type Event struct {
	UserID string
	Date   string
	Status *Status // nil on clear
	At     time.Time
}
