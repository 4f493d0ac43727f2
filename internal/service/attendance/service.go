package attendance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hybridtrack/attendance-backend-go/internal/domain/attendance"
	syncdomain "github.com/hybridtrack/attendance-backend-go/internal/domain/sync"
	"github.com/hybridtrack/attendance-backend-go/internal/domain/user"
	"github.com/hybridtrack/attendance-backend-go/internal/pkg/dateutil"
)

// Persister pushes a mutation toward the remote store. The sync engine
// implements it; failures are absorbed there (queue and retry), so the
// store treats persistence as fire-and-queue.
type Persister interface {
	Persist(ctx context.Context, m syncdomain.Mutation) error
}

// ReminderCanceller is notified when attendance lands for a date so
// reminders that are now moot can be torn down. The notification
// scheduler implements it.
type ReminderCanceller interface {
	OnAttendanceMarked(userID, date string)
}

type userState struct {
	attendance map[string]attendance.Status
	planned    map[string]attendance.Intent
	profile    user.Profile
	settings   user.Settings
	holidays   map[string]syncdomain.HolidayPartition
	holidayAge map[string]time.Time
	migrated   bool
}

// Service is the authoritative attendance store: an in-memory map per
// user, written through to the sqlite mirror synchronously and persisted to
// the remote store via the sync engine.
type Service struct {
	mirror    syncdomain.LocalMirror
	persister Persister

	mu     sync.Mutex
	states map[string]*userState

	cancellerMu sync.RWMutex
	canceller   ReminderCanceller

	now func() time.Time
}

// NewService creates the attendance store.
func NewService(mirror syncdomain.LocalMirror, persister Persister) *Service {
	return &Service{
		mirror:    mirror,
		persister: persister,
		states:    make(map[string]*userState),
		now:       time.Now,
	}
}

// SetNow overrides the clock (tests).
func (s *Service) SetNow(fn func() time.Time) { s.now = fn }

// SetReminderCanceller installs the scheduler hook. Set after wiring;
// the store and scheduler reference each other.
func (s *Service) SetReminderCanceller(c ReminderCanceller) {
	s.cancellerMu.Lock()
	defer s.cancellerMu.Unlock()
	s.canceller = c
}

func (s *Service) notifyMarked(userID, date string) {
	s.cancellerMu.RLock()
	c := s.canceller
	s.cancellerMu.RUnlock()
	if c != nil {
		c.OnAttendanceMarked(userID, date)
	}
}

// Seed installs a reconciled snapshot as the in-memory state for a user.
func (s *Service) Seed(userID string, snap syncdomain.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[userID] = stateFromSnapshot(snap)
}

func stateFromSnapshot(snap syncdomain.Snapshot) *userState {
	st := &userState{
		attendance: make(map[string]attendance.Status, len(snap.AttendanceData)),
		planned:    make(map[string]attendance.Intent, len(snap.PlannedDays)),
		profile:    snap.UserData,
		settings:   snap.Settings,
		holidays:   snap.CachedHolidays,
		holidayAge: snap.HolidayLastUpdated,
		migrated:   snap.Migrated,
	}
	for k, v := range snap.AttendanceData {
		st.attendance[k] = v
	}
	for k, v := range snap.PlannedDays {
		st.planned[k] = v
	}
	if st.holidays == nil {
		st.holidays = make(map[string]syncdomain.HolidayPartition)
	}
	if st.holidayAge == nil {
		st.holidayAge = make(map[string]time.Time)
	}
	return st
}

func (st *userState) snapshot(now time.Time) syncdomain.Snapshot {
	snap := syncdomain.NewSnapshot()
	for k, v := range st.attendance {
		snap.AttendanceData[k] = v
	}
	for k, v := range st.planned {
		snap.PlannedDays[k] = v
	}
	snap.UserData = st.profile
	snap.Settings = st.settings
	snap.CachedHolidays = st.holidays
	snap.HolidayLastUpdated = st.holidayAge
	snap.Migrated = st.migrated
	snap.LastUpdated = &now
	return snap
}

// state returns the in-memory state for a user, lazily loading the local
// mirror on first touch. Caller must hold s.mu.
func (s *Service) state(ctx context.Context, userID string) *userState {
	if st, ok := s.states[userID]; ok {
		return st
	}
	snap, _, err := s.mirror.LoadSnapshot(ctx, userID)
	if err != nil {
		slog.Warn("Local mirror load failed, starting empty", "user_id", userID, "error", err)
		snap = syncdomain.NewSnapshot()
	}
	st := stateFromSnapshot(snap)
	s.states[userID] = st
	return st
}

func (s *Service) today(st *userState) string {
	return dateutil.LocalDateString(s.now().In(st.profile.Location()))
}

func validDate(date string) error {
	if _, err := dateutil.ParseLocalDate(date, time.UTC); err != nil {
		return attendance.ErrInvalidDate
	}
	return nil
}

// persistUnit writes the mirror and marshals one unit of the state while
// the caller holds s.mu, returning the mutation to hand to the sync
// engine once the lock is released. The remote write can block for its
// full timeout during an outage; holding the store lock across it would
// stall every user.
func (s *Service) persistUnit(ctx context.Context, userID string, st *userState, unit syncdomain.Unit) []syncdomain.Mutation {
	snap := st.snapshot(s.now())
	payload, err := snap.UnitPayload(unit)
	if err != nil {
		slog.Error("Failed to encode unit", "unit", unit, "error", err)
		return nil
	}
	if err := s.mirror.SaveSnapshot(ctx, userID, snap); err != nil {
		slog.Error("Failed to write local mirror", "user_id", userID, "error", err)
	}
	return []syncdomain.Mutation{{
		UserID:  userID,
		Unit:    unit,
		Payload: payload,
		At:      s.now(),
	}}
}

// persist hands mutations to the sync engine. Must be called without
// s.mu held.
func (s *Service) persist(ctx context.Context, muts []syncdomain.Mutation) {
	for _, m := range muts {
		if err := s.persister.Persist(ctx, m); err != nil {
			slog.Error("Persist rejected mutation", "user_id", m.UserID, "unit", m.Unit, "error", err)
		}
	}
}

// Mark implements attendance.Store.
func (s *Service) Mark(ctx context.Context, userID, date string, status attendance.Status) error {
	if !status.Valid() {
		return attendance.ErrInvalidStatus
	}
	if err := validDate(date); err != nil {
		return err
	}

	s.mu.Lock()
	st := s.state(ctx, userID)
	if st.attendance[date] == status {
		// Idempotent: same mark twice produces no second round of side
		// effects.
		s.mu.Unlock()
		return nil
	}
	st.attendance[date] = status
	isToday := date == s.today(st)
	muts := s.persistUnit(ctx, userID, st, syncdomain.UnitAttendanceData)
	s.mu.Unlock()

	s.persist(ctx, muts)

	if err := s.mirror.SetFastStatus(ctx, userID, date, status); err != nil {
		slog.Warn("Fast lookup cache write failed", "user_id", userID, "error", err)
	}

	if isToday {
		s.notifyMarked(userID, date)
	}
	return nil
}

// Clear implements attendance.Store. Clearing is key removal, never a
// soft delete.
func (s *Service) Clear(ctx context.Context, userID, date string) error {
	if err := validDate(date); err != nil {
		return err
	}

	s.mu.Lock()
	st := s.state(ctx, userID)
	if _, ok := st.attendance[date]; !ok {
		s.mu.Unlock()
		return nil
	}
	delete(st.attendance, date)
	muts := s.persistUnit(ctx, userID, st, syncdomain.UnitAttendanceData)
	s.mu.Unlock()

	s.persist(ctx, muts)

	if err := s.mirror.DeleteFastStatus(ctx, userID, date); err != nil {
		slog.Warn("Fast lookup cache delete failed", "user_id", userID, "error", err)
	}
	return nil
}

// Get implements attendance.Store.
func (s *Service) Get(ctx context.Context, userID, date string) (attendance.Status, error) {
	if err := validDate(date); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(ctx, userID)
	status, ok := st.attendance[date]
	if !ok {
		return "", attendance.ErrNotFound
	}
	return status, nil
}

// BulkMark implements attendance.Store. All dates land in the local
// cache; the remote sees one batched mutation. Reminders for today are
// cancelled once after the batch.
func (s *Service) BulkMark(ctx context.Context, userID string, dates []string, status attendance.Status) error {
	if !status.Valid() {
		return attendance.ErrInvalidStatus
	}
	for _, d := range dates {
		if err := validDate(d); err != nil {
			return fmt.Errorf("%w: %s", attendance.ErrInvalidDate, d)
		}
	}
	if len(dates) == 0 {
		return nil
	}

	s.mu.Lock()
	st := s.state(ctx, userID)
	today := s.today(st)
	changed := false
	todayMarked := false
	for _, d := range dates {
		if st.attendance[d] != status {
			st.attendance[d] = status
			changed = true
		}
		if d == today {
			todayMarked = true
		}
	}
	var muts []syncdomain.Mutation
	if changed {
		muts = s.persistUnit(ctx, userID, st, syncdomain.UnitAttendanceData)
	}
	s.mu.Unlock()

	s.persist(ctx, muts)

	for _, d := range dates {
		if err := s.mirror.SetFastStatus(ctx, userID, d, status); err != nil {
			slog.Warn("Fast lookup cache write failed", "user_id", userID, "error", err)
		}
	}

	if todayMarked && changed {
		s.notifyMarked(userID, today)
	}
	return nil
}

// All implements attendance.Store.
func (s *Service) All(ctx context.Context, userID string) (map[string]attendance.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(ctx, userID)
	out := make(map[string]attendance.Status, len(st.attendance))
	for k, v := range st.attendance {
		out[k] = v
	}
	return out, nil
}

// HasAnyHistory reports whether the user has ever logged a day, locally
// or in the seeded snapshot. Used to guard the auto-WFH fallback.
func (s *Service) HasAnyHistory(ctx context.Context, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(ctx, userID)
	return len(st.attendance) > 0
}

// PlanDay implements attendance.Store.
func (s *Service) PlanDay(ctx context.Context, userID, date string, intent attendance.Intent) error {
	if intent != attendance.StatusOffice && intent != attendance.StatusWFH {
		return attendance.ErrInvalidIntent
	}
	if err := validDate(date); err != nil {
		return err
	}

	s.mu.Lock()
	st := s.state(ctx, userID)
	if st.planned[date] == intent {
		s.mu.Unlock()
		return nil
	}
	st.planned[date] = intent
	muts := s.persistUnit(ctx, userID, st, syncdomain.UnitPlannedDays)
	s.mu.Unlock()

	s.persist(ctx, muts)
	return nil
}

// UnplanDay implements attendance.Store.
func (s *Service) UnplanDay(ctx context.Context, userID, date string) error {
	if err := validDate(date); err != nil {
		return err
	}
	s.mu.Lock()
	st := s.state(ctx, userID)
	if _, ok := st.planned[date]; !ok {
		s.mu.Unlock()
		return nil
	}
	delete(st.planned, date)
	muts := s.persistUnit(ctx, userID, st, syncdomain.UnitPlannedDays)
	s.mu.Unlock()

	s.persist(ctx, muts)
	return nil
}

// PlannedDays implements attendance.Store.
func (s *Service) PlannedDays(ctx context.Context, userID string) (map[string]attendance.Intent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(ctx, userID)
	out := make(map[string]attendance.Intent, len(st.planned))
	for k, v := range st.planned {
		out[k] = v
	}
	return out, nil
}

// PrunePlanned implements attendance.Store: planned days never accumulate
// unbounded history.
func (s *Service) PrunePlanned(ctx context.Context, userID, today string) (int, error) {
	if err := validDate(today); err != nil {
		return 0, err
	}
	cutoff, err := dateutil.AddDays(today, -attendance.PlannedRetentionDays)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	st := s.state(ctx, userID)
	pruned := 0
	for d := range st.planned {
		if d < cutoff {
			delete(st.planned, d)
			pruned++
		}
	}
	var muts []syncdomain.Mutation
	if pruned > 0 {
		muts = s.persistUnit(ctx, userID, st, syncdomain.UnitPlannedDays)
	}
	s.mu.Unlock()

	s.persist(ctx, muts)
	return pruned, nil
}

// Profile returns the user's profile.
func (s *Service) Profile(ctx context.Context, userID string) (user.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(ctx, userID)
	return st.profile, nil
}

// SetProfile replaces the user's profile and persists the userData unit.
func (s *Service) SetProfile(ctx context.Context, userID string, p user.Profile) error {
	if p.TrackingMode != "" && !p.TrackingMode.Valid() {
		return user.ErrInvalidTrackingMode
	}
	if p.Country == "" {
		p.Country = user.DefaultCountry
	}
	s.mu.Lock()
	st := s.state(ctx, userID)
	st.profile = p
	muts := s.persistUnit(ctx, userID, st, syncdomain.UnitUserData)
	s.mu.Unlock()

	s.persist(ctx, muts)
	return nil
}

// Settings returns the monthly-target settings.
func (s *Service) Settings(ctx context.Context, userID string) (user.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(ctx, userID)
	return st.settings, nil
}

// SetSettings replaces the settings unit.
func (s *Service) SetSettings(ctx context.Context, userID string, set user.Settings) error {
	if set.TargetMode != "" && !set.TargetMode.Valid() {
		return user.ErrInvalidTargetMode
	}
	s.mu.Lock()
	st := s.state(ctx, userID)
	st.settings = set
	muts := s.persistUnit(ctx, userID, st, syncdomain.UnitSettings)
	s.mu.Unlock()

	s.persist(ctx, muts)
	return nil
}

// SetHolidayCache stores a refreshed holiday partition and persists both
// holiday units.
func (s *Service) SetHolidayCache(ctx context.Context, userID, key string, dates map[string]string, at time.Time) error {
	s.mu.Lock()
	st := s.state(ctx, userID)
	st.holidays[key] = syncdomain.HolidayPartition(dates)
	st.holidayAge[key] = at
	muts := s.persistUnit(ctx, userID, st, syncdomain.UnitCachedHolidays)
	muts = append(muts, s.persistUnit(ctx, userID, st, syncdomain.UnitHolidayLastUpdated)...)
	s.mu.Unlock()

	s.persist(ctx, muts)
	return nil
}

// HolidayCache returns the cached partition and its timestamp.
func (s *Service) HolidayCache(ctx context.Context, userID, key string) (map[string]string, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(ctx, userID)
	dates, ok := st.holidays[key]
	if !ok {
		return nil, time.Time{}, false
	}
	return map[string]string(dates), st.holidayAge[key], true
}

// ApplyRemote implements the sync engine's merge callback: a genuine
// remote change replaces the affected unit in memory.
func (s *Service) ApplyRemote(userID string, unit syncdomain.Unit, snap syncdomain.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[userID]
	if !ok {
		s.states[userID] = stateFromSnapshot(snap)
		return
	}
	switch unit {
	case syncdomain.UnitAttendanceData:
		st.attendance = make(map[string]attendance.Status, len(snap.AttendanceData))
		for k, v := range snap.AttendanceData {
			st.attendance[k] = v
		}
	case syncdomain.UnitPlannedDays:
		st.planned = make(map[string]attendance.Intent, len(snap.PlannedDays))
		for k, v := range snap.PlannedDays {
			st.planned[k] = v
		}
	case syncdomain.UnitUserData:
		st.profile = snap.UserData
	case syncdomain.UnitSettings:
		st.settings = snap.Settings
	case syncdomain.UnitCachedHolidays:
		st.holidays = snap.CachedHolidays
	case syncdomain.UnitHolidayLastUpdated:
		st.holidayAge = snap.HolidayLastUpdated
	}
}

// MonthSummary computes logged-day counts and target progress for a
// YYYY-MM month.
func (s *Service) MonthSummary(ctx context.Context, userID, month string) (attendance.MonthSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(ctx, userID)

	sum := attendance.MonthSummary{
		Month:         month,
		MonthlyTarget: st.settings.MonthlyTarget,
	}
	logged := 0
	for d, status := range st.attendance {
		if dateutil.MonthKey(d) != month {
			continue
		}
		logged++
		switch status {
		case attendance.StatusOffice:
			sum.OfficeDays++
		case attendance.StatusWFH:
			sum.WFHDays++
		case attendance.StatusLeave:
			sum.LeaveDays++
		}
	}
	if logged > 0 {
		sum.OfficePercent = float64(sum.OfficeDays) / float64(logged) * 100
	}
	switch st.settings.TargetMode {
	case user.TargetPercent:
		sum.TargetMet = sum.OfficePercent >= float64(st.settings.MonthlyTarget)
	default:
		sum.TargetMet = sum.OfficeDays >= st.settings.MonthlyTarget
	}
	return sum, nil
}

// WeekSummary counts statuses over the five weekdays starting at
// weekStart (expected to be a Monday).
func (s *Service) WeekSummary(ctx context.Context, userID, weekStart string) (attendance.WeekSummary, error) {
	if err := validDate(weekStart); err != nil {
		return attendance.WeekSummary{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(ctx, userID)

	sum := attendance.WeekSummary{WeekStart: weekStart}
	day := weekStart
	for i := 0; i < 5; i++ {
		switch st.attendance[day] {
		case attendance.StatusOffice:
			sum.OfficeDays++
		case attendance.StatusWFH:
			sum.WFHDays++
		case attendance.StatusLeave:
			sum.LeaveDays++
		default:
			sum.Unlogged++
		}
		next, err := dateutil.AddDays(day, 1)
		if err != nil {
			return attendance.WeekSummary{}, err
		}
		day = next
	}
	return sum, nil
}

var _ attendance.Store = (*Service)(nil)
