package user

import (
	"time"

	"github.com/hybridtrack/attendance-backend-go/internal/pkg/geo"
)

// TrackingMode selects how attendance gets logged.
type TrackingMode string

const (
	// ModeManual relies on scheduled reminder pushes and self-reporting.
	ModeManual TrackingMode = "manual"
	// ModeAuto enables geofencing and location-based auto-logging.
	ModeAuto TrackingMode = "auto"
)

// Valid reports whether m is a known tracking mode.
func (m TrackingMode) Valid() bool {
	return m == ModeManual || m == ModeAuto
}

// ParseTrackingMode converts a wire string into a TrackingMode.
func ParseTrackingMode(raw string) (TrackingMode, error) {
	m := TrackingMode(raw)
	if !m.Valid() {
		return "", ErrInvalidTrackingMode
	}
	return m, nil
}

// TargetMode selects how the monthly office target is interpreted.
type TargetMode string

const (
	TargetDays    TargetMode = "days"
	TargetPercent TargetMode = "percent"
)

// Valid reports whether t is a known target mode.
func (t TargetMode) Valid() bool {
	return t == TargetDays || t == TargetPercent
}

// ParseTargetMode converts a wire string into a TargetMode.
func ParseTargetMode(raw string) (TargetMode, error) {
	t := TargetMode(raw)
	if !t.Valid() {
		return "", ErrInvalidTargetMode
	}
	return t, nil
}

// DefaultCountry is used when no country could be resolved for a user.
const DefaultCountry = "AU"

// DefaultTimezone anchors reminder schedules when a user has no explicit
// timezone configured.
const DefaultTimezone = "Australia/Sydney"

// Profile is the per-user configuration document. A device-derived user
// id keys everything; there is no account system.
type Profile struct {
	CompanyName     string       `json:"companyName,omitempty"`
	CompanyAddress  string       `json:"companyAddress,omitempty"`
	CompanyLocation *geo.Point   `json:"companyLocation,omitempty"`
	TrackingMode    TrackingMode `json:"trackingMode"`
	Country         string       `json:"country"`
	Timezone        string       `json:"timezone,omitempty"`
	// SetupCompletedAt gates the auto-WFH fallback: brand-new users and
	// users inside their first 24 hours are never auto-marked.
	SetupCompletedAt *time.Time `json:"setupCompletedAt,omitempty"`
}

// Location returns the timezone of the user, falling back to the default
// when unset or unknown.
func (p Profile) Location() *time.Location {
	tz := p.Timezone
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc, _ = time.LoadLocation(DefaultTimezone)
	}
	return loc
}

// SetupOlderThan reports whether setup completed at least d ago.
func (p Profile) SetupOlderThan(d time.Duration, now time.Time) bool {
	if p.SetupCompletedAt == nil {
		return false
	}
	return now.Sub(*p.SetupCompletedAt) >= d
}

// Settings holds the monthly target configuration and notification
// opt-ins.
type Settings struct {
	MonthlyTarget int        `json:"monthlyTarget"`
	TargetMode    TargetMode `json:"targetMode"`
	// WeeklySummary opts in to the start-of-week plan overview and the
	// end-of-week recap pushes.
	WeeklySummary bool `json:"weeklySummary"`
}
