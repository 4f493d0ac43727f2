package sync

import (
	"encoding/json"
	"time"

	"github.com/hybridtrack/attendance-backend-go/internal/domain/attendance"
	"github.com/hybridtrack/attendance-backend-go/internal/domain/user"
)

// Unit is a top-level merge unit of the per-user remote document.
// Concurrent edits to different units never conflict; edits to the same
// unit resolve last-writer-wins.
type Unit string

const (
	UnitAttendanceData     Unit = "attendanceData"
	UnitPlannedDays        Unit = "plannedDays"
	UnitUserData           Unit = "userData"
	UnitSettings           Unit = "settings"
	UnitCachedHolidays     Unit = "cachedHolidays"
	UnitHolidayLastUpdated Unit = "holidayLastUpdated"
)

// AllUnits returns every merge unit.
func AllUnits() []Unit {
	return []Unit{
		UnitAttendanceData,
		UnitPlannedDays,
		UnitUserData,
		UnitSettings,
		UnitCachedHolidays,
		UnitHolidayLastUpdated,
	}
}

// Valid reports whether u names a known merge unit.
func (u Unit) Valid() bool {
	switch u {
	case UnitAttendanceData, UnitPlannedDays, UnitUserData,
		UnitSettings, UnitCachedHolidays, UnitHolidayLastUpdated:
		return true
	}
	return false
}

// Mutation describes one remote write: the full replacement payload for a
// single unit. WriteID is a UUIDv7 tagging the write so its echo on the
// realtime feed can be recognized and suppressed, and so simultaneous
// writes to the same unit have a deterministic tie-break (higher id wins).
type Mutation struct {
	UserID  string          `json:"userId"`
	Unit    Unit            `json:"unit"`
	Payload json.RawMessage `json:"payload"`
	WriteID string          `json:"writeId"`
	At      time.Time       `json:"at"`
}

// QueueItem is a mutation awaiting replay after a transient remote
// failure. Items replay strictly FIFO and leave the queue only after the
// remote write succeeds.
type QueueItem struct {
	Mutation   Mutation  `json:"mutation"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// ChangeEvent is one inbound realtime change from the remote store.
type ChangeEvent struct {
	UserID  string    `json:"userId"`
	Unit    Unit      `json:"unit"`
	WriteID string    `json:"writeId"`
	At      time.Time `json:"at"`
}

// HolidayPartition maps date keys to holiday names within one
// countryCode_year cache partition. Older documents stored a bare array
// of dates with no names; both shapes decode.
type HolidayPartition map[string]string

func (p *HolidayPartition) UnmarshalJSON(data []byte) error {
	var named map[string]string
	if err := json.Unmarshal(data, &named); err == nil {
		*p = named
		return nil
	}
	var legacy []string
	if err := json.Unmarshal(data, &legacy); err != nil {
		return err
	}
	out := make(map[string]string, len(legacy))
	for _, d := range legacy {
		out[d] = ""
	}
	*p = out
	return nil
}

// Snapshot is the full per-user document, partitioned by merge unit.
type Snapshot struct {
	AttendanceData     map[string]attendance.Status `json:"attendanceData"`
	PlannedDays        map[string]attendance.Intent `json:"plannedDays"`
	UserData           user.Profile                 `json:"userData"`
	Settings           user.Settings                `json:"settings"`
	CachedHolidays     map[string]HolidayPartition  `json:"cachedHolidays"`
	HolidayLastUpdated map[string]time.Time         `json:"holidayLastUpdated"`
	LastUpdated        *time.Time                   `json:"lastUpdated,omitempty"`
	// Migrated is the remote idempotency flag guarding the one-time
	// local-to-remote migration upload.
	Migrated bool `json:"migrated"`
}

// NewSnapshot returns an empty snapshot with all maps allocated.
func NewSnapshot() Snapshot {
	return Snapshot{
		AttendanceData:     make(map[string]attendance.Status),
		PlannedDays:        make(map[string]attendance.Intent),
		CachedHolidays:     make(map[string]HolidayPartition),
		HolidayLastUpdated: make(map[string]time.Time),
	}
}

// Empty reports whether the snapshot carries no user content at all.
func (s Snapshot) Empty() bool {
	return len(s.AttendanceData) == 0 &&
		len(s.PlannedDays) == 0 &&
		s.UserData.TrackingMode == "" &&
		s.LastUpdated == nil
}

// UnitPayload marshals the named unit of the snapshot.
func (s Snapshot) UnitPayload(u Unit) (json.RawMessage, error) {
	switch u {
	case UnitAttendanceData:
		return json.Marshal(s.AttendanceData)
	case UnitPlannedDays:
		return json.Marshal(s.PlannedDays)
	case UnitUserData:
		return json.Marshal(s.UserData)
	case UnitSettings:
		return json.Marshal(s.Settings)
	case UnitCachedHolidays:
		return json.Marshal(s.CachedHolidays)
	case UnitHolidayLastUpdated:
		return json.Marshal(s.HolidayLastUpdated)
	}
	return nil, ErrUnknownUnit
}

// ApplyUnit unmarshals payload into the named unit of the snapshot.
func (s *Snapshot) ApplyUnit(u Unit, payload json.RawMessage) error {
	switch u {
	case UnitAttendanceData:
		return json.Unmarshal(payload, &s.AttendanceData)
	case UnitPlannedDays:
		return json.Unmarshal(payload, &s.PlannedDays)
	case UnitUserData:
		return json.Unmarshal(payload, &s.UserData)
	case UnitSettings:
		return json.Unmarshal(payload, &s.Settings)
	case UnitCachedHolidays:
		return json.Unmarshal(payload, &s.CachedHolidays)
	case UnitHolidayLastUpdated:
		return json.Unmarshal(payload, &s.HolidayLastUpdated)
	}
	return ErrUnknownUnit
}
