package geofence

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hybridtrack/attendance-backend-go/internal/domain/attendance"
	"github.com/hybridtrack/attendance-backend-go/internal/domain/notification"
	"github.com/hybridtrack/attendance-backend-go/internal/domain/user"
	"github.com/hybridtrack/attendance-backend-go/internal/pkg/geo"
)

// sydneyOffice is the reference office position used across the tests.
var sydneyOffice = geo.Point{Lat: -33.8688, Lon: 151.2093}

type stubStore struct {
	mu      sync.Mutex
	records map[string]attendance.Status // date keyed, single user
	profile user.Profile
	marks   int
	gets    int
}

func (s *stubStore) Get(ctx context.Context, userID, date string) (attendance.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	st, ok := s.records[date]
	if !ok {
		return "", attendance.ErrNotFound
	}
	return st, nil
}

func (s *stubStore) Mark(ctx context.Context, userID, date string, status attendance.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.records == nil {
		s.records = make(map[string]attendance.Status)
	}
	s.records[date] = status
	s.marks++
	return nil
}

func (s *stubStore) Profile(ctx context.Context, userID string) (user.Profile, error) {
	return s.profile, nil
}

type stubLocations struct {
	mu    sync.Mutex
	point geo.Point
	err   error
	calls int
}

func (l *stubLocations) Current(ctx context.Context, userID string) (geo.Point, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return geo.Point{}, l.err
	}
	return l.point, nil
}

func (l *stubLocations) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

type stubHolidays struct {
	holidays map[string]bool
}

func (h *stubHolidays) Get(ctx context.Context, userID, countryCode string, year int) map[string]string {
	return nil
}

func (h *stubHolidays) Refresh(ctx context.Context, userID, countryCode string, year int) (map[string]string, error) {
	return nil, nil
}

func (h *stubHolidays) IsHoliday(ctx context.Context, userID, dateStr, countryCode string, year int) bool {
	return h.holidays[dateStr]
}

type capturingPublisher struct {
	mu     sync.Mutex
	pushes []notification.Push
}

func (p *capturingPublisher) Publish(push notification.Push) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes = append(p.pushes, push)
}

func (p *capturingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pushes)
}

func autoProfile() user.Profile {
	office := sydneyOffice
	return user.Profile{
		TrackingMode:    user.ModeAuto,
		CompanyLocation: &office,
		Country:         "AU",
		Timezone:        "Australia/Sydney",
	}
}

// Tuesday morning, Sydney.
func tuesdayClock() func() time.Time {
	loc, _ := time.LoadLocation("Australia/Sydney")
	return func() time.Time {
		return time.Date(2025, 3, 11, 9, 0, 0, 0, loc)
	}
}

func newTestReconciler(store *stubStore, locations *stubLocations) (*Reconciler, *capturingPublisher) {
	pub := &capturingPublisher{}
	r := NewReconciler(store, &stubHolidays{}, locations, pub)
	r.SetNow(tuesdayClock())
	return r, pub
}

func TestCheckNowAutoLogsInsideRadius(t *testing.T) {
	store := &stubStore{profile: autoProfile()}
	// ~50m north of the office, inside the 0.1km fence.
	locations := &stubLocations{point: geo.Point{Lat: -33.86835, Lon: 151.2093}}
	r, pub := newTestReconciler(store, locations)

	outcome := r.CheckNow(context.Background(), "u1")
	assert.Equal(t, OutcomeAutoLogged, outcome)

	got, err := store.Get(context.Background(), "u1", "2025-03-11")
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusOffice, got)
	assert.Equal(t, 1, pub.count())
}

func TestCheckNowOutsideRadiusNoMatch(t *testing.T) {
	store := &stubStore{profile: autoProfile()}
	// ~140m away: clearly outside the strict <0.1km threshold.
	locations := &stubLocations{point: geo.Point{Lat: -33.87006, Lon: 151.2093}}
	r, _ := newTestReconciler(store, locations)

	outcome := r.CheckNow(context.Background(), "u1")
	assert.Equal(t, OutcomeNoMatch, outcome)
	assert.Equal(t, 0, store.marks)
}

func TestCheckNowSkipsWhenAlreadyLogged(t *testing.T) {
	store := &stubStore{
		profile: autoProfile(),
		records: map[string]attendance.Status{"2025-03-11": attendance.StatusWFH},
	}
	locations := &stubLocations{point: sydneyOffice}
	r, pub := newTestReconciler(store, locations)

	outcome := r.CheckNow(context.Background(), "u1")
	assert.Equal(t, OutcomeAlreadyLogged, outcome)
	// No location fetch once a record exists.
	assert.Equal(t, 0, locations.callCount())
	assert.Equal(t, 0, pub.count())

	// A manual WFH entry is never overwritten.
	got, _ := store.Get(context.Background(), "u1", "2025-03-11")
	assert.Equal(t, attendance.StatusWFH, got)
}

func TestCheckNowTerminalAfterAutoLog(t *testing.T) {
	store := &stubStore{profile: autoProfile()}
	locations := &stubLocations{point: sydneyOffice}
	r, pub := newTestReconciler(store, locations)

	assert.Equal(t, OutcomeAutoLogged, r.CheckNow(context.Background(), "u1"))
	assert.Equal(t, OutcomeAlreadyLogged, r.CheckNow(context.Background(), "u1"))

	// The second trigger did not fetch or push again.
	assert.Equal(t, 1, locations.callCount())
	assert.Equal(t, 1, pub.count())
	assert.Equal(t, 1, store.marks)
}

func TestCheckNowSkipsManualMode(t *testing.T) {
	profile := autoProfile()
	profile.TrackingMode = user.ModeManual
	store := &stubStore{profile: profile}
	locations := &stubLocations{point: sydneyOffice}
	r, _ := newTestReconciler(store, locations)

	assert.Equal(t, OutcomeSkipped, r.CheckNow(context.Background(), "u1"))
	assert.Equal(t, 0, locations.callCount())
}

func TestCheckNowSkipsWithoutOfficeLocation(t *testing.T) {
	profile := autoProfile()
	profile.CompanyLocation = nil
	store := &stubStore{profile: profile}
	locations := &stubLocations{point: sydneyOffice}
	r, _ := newTestReconciler(store, locations)

	assert.Equal(t, OutcomeSkipped, r.CheckNow(context.Background(), "u1"))
	assert.Equal(t, 0, locations.callCount())
}

func TestCheckNowSkipsWeekend(t *testing.T) {
	store := &stubStore{profile: autoProfile()}
	locations := &stubLocations{point: sydneyOffice}
	r, _ := newTestReconciler(store, locations)
	loc, _ := time.LoadLocation("Australia/Sydney")
	r.SetNow(func() time.Time {
		return time.Date(2025, 3, 15, 9, 0, 0, 0, loc) // Saturday
	})

	assert.Equal(t, OutcomeSkipped, r.CheckNow(context.Background(), "u1"))
	assert.Equal(t, 0, locations.callCount())
}

func TestCheckNowSkipsPublicHoliday(t *testing.T) {
	store := &stubStore{profile: autoProfile()}
	locations := &stubLocations{point: sydneyOffice}
	pub := &capturingPublisher{}
	r := NewReconciler(store, &stubHolidays{holidays: map[string]bool{"2025-03-11": true}}, locations, pub)
	r.SetNow(tuesdayClock())

	assert.Equal(t, OutcomeSkipped, r.CheckNow(context.Background(), "u1"))
	assert.Equal(t, 0, locations.callCount())
}

func TestCheckNowFetchFailureIsSwallowed(t *testing.T) {
	store := &stubStore{profile: autoProfile()}
	locations := &stubLocations{err: errors.New("gps unavailable")}
	r, _ := newTestReconciler(store, locations)

	assert.Equal(t, OutcomeFetchFailed, r.CheckNow(context.Background(), "u1"))

	// The day is not terminal: the next trigger tries again.
	locations.mu.Lock()
	locations.err = nil
	locations.point = sydneyOffice
	locations.mu.Unlock()
	assert.Equal(t, OutcomeAutoLogged, r.CheckNow(context.Background(), "u1"))
}

func TestCheckNowNewDayResetsState(t *testing.T) {
	store := &stubStore{profile: autoProfile()}
	locations := &stubLocations{point: sydneyOffice}
	r, _ := newTestReconciler(store, locations)

	assert.Equal(t, OutcomeAutoLogged, r.CheckNow(context.Background(), "u1"))

	loc, _ := time.LoadLocation("Australia/Sydney")
	r.SetNow(func() time.Time {
		return time.Date(2025, 3, 12, 9, 0, 0, 0, loc) // Wednesday
	})
	assert.Equal(t, OutcomeAutoLogged, r.CheckNow(context.Background(), "u1"))
	assert.Equal(t, 2, store.marks)
}

func TestReportedPositionsExpire(t *testing.T) {
	p := NewReportedPositions()
	base := time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC)
	now := base
	p.now = func() time.Time { return now }

	_, err := p.Current(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrNoPosition)

	p.Report("u1", sydneyOffice)
	got, err := p.Current(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, sydneyOffice, got)

	now = base.Add(3 * time.Minute)
	_, err = p.Current(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrNoPosition)
}

type stubFastLookup struct {
	statuses map[string]attendance.Status // date keyed
}

func (f *stubFastLookup) FastStatus(ctx context.Context, userID, date string) (attendance.Status, bool, error) {
	st, ok := f.statuses[date]
	return st, ok, nil
}

func TestCheckNowFastLookupShortCircuits(t *testing.T) {
	store := &stubStore{profile: autoProfile()}
	locations := &stubLocations{}
	r, _ := newTestReconciler(store, locations)
	r.SetFastLookup(&stubFastLookup{statuses: map[string]attendance.Status{
		"2025-03-11": attendance.StatusWFH,
	}})

	outcome := r.CheckNow(context.Background(), "u1")
	assert.Equal(t, OutcomeAlreadyLogged, outcome)

	// The fast table answered; neither the store nor the location
	// provider was touched.
	store.mu.Lock()
	assert.Equal(t, 0, store.gets)
	store.mu.Unlock()
	assert.Equal(t, 0, locations.callCount())
}

// degrees of latitude per kilometer along a meridian, matching the
// haversine Earth radius.
const latDegreesPerKm = 180 / (6371 * math.Pi)

func TestCheckNowThresholdDistanceDoesNotTrigger(t *testing.T) {
	store := &stubStore{profile: autoProfile()}
	// Exactly the fence radius due north: arrival requires strictly
	// less than the threshold.
	locations := &stubLocations{point: geo.Point{
		Lat: sydneyOffice.Lat + 0.1*latDegreesPerKm,
		Lon: sydneyOffice.Lon,
	}}
	r, pub := newTestReconciler(store, locations)

	outcome := r.CheckNow(context.Background(), "u1")
	assert.Equal(t, OutcomeNoMatch, outcome)
	store.mu.Lock()
	assert.Equal(t, 0, store.marks)
	store.mu.Unlock()
	assert.Equal(t, 0, pub.count())
}

func TestCheckNowJustInsideThresholdTriggers(t *testing.T) {
	store := &stubStore{profile: autoProfile()}
	locations := &stubLocations{point: geo.Point{
		Lat: sydneyOffice.Lat + 0.0999*latDegreesPerKm,
		Lon: sydneyOffice.Lon,
	}}
	r, pub := newTestReconciler(store, locations)

	outcome := r.CheckNow(context.Background(), "u1")
	assert.Equal(t, OutcomeAutoLogged, outcome)
	store.mu.Lock()
	assert.Equal(t, 1, store.marks)
	store.mu.Unlock()
	assert.Equal(t, 1, pub.count())
}

// racingLocations logs the day manually while the position fix is in
// flight, exercising the re-read before the auto-log commits.
type racingLocations struct {
	store *stubStore
	date  string
	point geo.Point
}

func (l *racingLocations) Current(ctx context.Context, userID string) (geo.Point, error) {
	l.store.mu.Lock()
	if l.store.records == nil {
		l.store.records = make(map[string]attendance.Status)
	}
	l.store.records[l.date] = attendance.StatusWFH
	l.store.mu.Unlock()
	return l.point, nil
}

func TestCheckNowDiscardsFixWhenRecordAppearsMidFlight(t *testing.T) {
	store := &stubStore{profile: autoProfile()}
	inside := geo.Point{Lat: sydneyOffice.Lat + 0.05*latDegreesPerKm, Lon: sydneyOffice.Lon}
	pub := &capturingPublisher{}
	r := NewReconciler(store, &stubHolidays{}, &racingLocations{store: store, date: "2025-03-11", point: inside}, pub)
	r.SetNow(tuesdayClock())

	outcome := r.CheckNow(context.Background(), "u1")
	assert.Equal(t, OutcomeAlreadyLogged, outcome)

	// The manual record that appeared mid-flight wins; the matching fix
	// is discarded.
	got, err := store.Get(context.Background(), "u1", "2025-03-11")
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusWFH, got)
	store.mu.Lock()
	assert.Equal(t, 0, store.marks)
	store.mu.Unlock()
	assert.Equal(t, 0, pub.count())
}
