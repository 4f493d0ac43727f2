package dateutil

import (
	"fmt"
	"time"
)

// DateKey is the canonical YYYY-MM-DD layout used for every attendance,
// planned-day and holiday map key.
const DateKey = "2006-01-02"

// LocalDateString formats t as YYYY-MM-DD using its own calendar fields.
// No UTC conversion happens here; near-midnight dates in non-UTC zones
// must not shift by a day.
func LocalDateString(t time.Time) string {
	return fmt.Sprintf("%04d-%02d-%02d", t.Year(), int(t.Month()), t.Day())
}

// TodayString returns the current date in loc as YYYY-MM-DD.
func TodayString(loc *time.Location) string {
	return LocalDateString(time.Now().In(loc))
}

// ParseLocalDate is the inverse of LocalDateString. The date is constructed
// from year/month/day components in loc rather than parsed as an ISO
// instant, which would imply UTC.
func ParseLocalDate(dateStr string, loc *time.Location) (time.Time, error) {
	var y, m, d int
	if _, err := fmt.Sscanf(dateStr, "%4d-%2d-%2d", &y, &m, &d); err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", dateStr, err)
	}
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, fmt.Errorf("invalid date %q: out of range", dateStr)
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, loc)
	// time.Date normalizes overflowing components (Feb 31 becomes Mar 3);
	// a date that doesn't round-trip never existed.
	if t.Year() != y || t.Month() != time.Month(m) || t.Day() != d {
		return time.Time{}, fmt.Errorf("invalid date %q: no such day", dateStr)
	}
	return t, nil
}

// IsWeekend reports whether dateStr falls on a Saturday or Sunday.
// The caller guarantees a well-formed YYYY-MM-DD string; malformed input
// is treated as a weekday.
func IsWeekend(dateStr string) bool {
	t, err := ParseLocalDate(dateStr, time.Local)
	if err != nil {
		return false
	}
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// AddDays returns dateStr shifted by n calendar days.
func AddDays(dateStr string, n int) (string, error) {
	t, err := ParseLocalDate(dateStr, time.Local)
	if err != nil {
		return "", err
	}
	return LocalDateString(t.AddDate(0, 0, n)), nil
}

// DaysBetween returns the number of whole calendar days from a to b
// (positive when b is after a).
func DaysBetween(a, b string) (int, error) {
	ta, err := ParseLocalDate(a, time.UTC)
	if err != nil {
		return 0, err
	}
	tb, err := ParseLocalDate(b, time.UTC)
	if err != nil {
		return 0, err
	}
	return int(tb.Sub(ta).Hours() / 24), nil
}

// YearOf extracts the calendar year from a YYYY-MM-DD key.
func YearOf(dateStr string) (int, error) {
	t, err := ParseLocalDate(dateStr, time.UTC)
	if err != nil {
		return 0, err
	}
	return t.Year(), nil
}

// MonthKey returns the YYYY-MM prefix of a date key.
func MonthKey(dateStr string) string {
	if len(dateStr) < 7 {
		return dateStr
	}
	return dateStr[:7]
}
