package geofence

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hybridtrack/attendance-backend-go/internal/domain/attendance"
	"github.com/hybridtrack/attendance-backend-go/internal/domain/holiday"
	"github.com/hybridtrack/attendance-backend-go/internal/domain/notification"
	"github.com/hybridtrack/attendance-backend-go/internal/domain/user"
	"github.com/hybridtrack/attendance-backend-go/internal/pkg/dateutil"
	"github.com/hybridtrack/attendance-backend-go/internal/pkg/geo"
)

// OfficeRadiusKm is the geofence threshold. A distance of exactly this
// value does not count as arrival; the comparison is strictly less-than.
const OfficeRadiusKm = 0.1

// locationTimeout bounds a position fix; a timeout behaves exactly like a
// failed fetch.
const locationTimeout = 15 * time.Second

// Store is the slice of the attendance store the reconciler needs.
type Store interface {
	Get(ctx context.Context, userID, date string) (attendance.Status, error)
	Mark(ctx context.Context, userID, date string, status attendance.Status) error
	Profile(ctx context.Context, userID string) (user.Profile, error)
}

// LocationProvider yields the device's current position. Retrieval is
// asynchronous and may be arbitrarily slow or fail.
type LocationProvider interface {
	Current(ctx context.Context, userID string) (geo.Point, error)
}

// FastLookup is the mirror's fast attendance table. A hit answers the
// already-logged check without going through the store.
type FastLookup interface {
	FastStatus(ctx context.Context, userID, date string) (attendance.Status, bool, error)
}

// Publisher delivers the auto-logged push.
type Publisher interface {
	Publish(p notification.Push)
}

// Outcome reports what a geofence check did.
type Outcome int

const (
	// OutcomeSkipped: preconditions failed or a check was already in
	// flight; no location fetch happened.
	OutcomeSkipped Outcome = iota
	// OutcomeAlreadyLogged: today already has a record from any source;
	// terminal for the day, no location fetch.
	OutcomeAlreadyLogged
	// OutcomeNoMatch: position fetched, outside the office radius.
	OutcomeNoMatch
	// OutcomeAutoLogged: office arrival detected and logged.
	OutcomeAutoLogged
	// OutcomeFetchFailed: the location fetch errored; swallowed, the next
	// trigger retries naturally.
	OutcomeFetchFailed
)

type phase int

const (
	phaseUnchecked phase = iota
	phaseChecking
	phaseAutoLogged
)

type dayState struct {
	date  string
	phase phase
}

// Reconciler runs the per-day geofence state machine. Each calendar day
// starts Unchecked; a trigger moves it to Checking while a fix is in
// flight; a match (or any existing record) parks it at AutoLogged, which
// is terminal until local midnight.
type Reconciler struct {
	store     Store
	holidays  holiday.Cache
	locations LocationProvider
	publisher Publisher
	fast      FastLookup
	now       func() time.Time

	mu    sync.Mutex
	state map[string]*dayState
}

// NewReconciler creates the geofence reconciler.
func NewReconciler(store Store, holidays holiday.Cache, locations LocationProvider, publisher Publisher) *Reconciler {
	return &Reconciler{
		store:     store,
		holidays:  holidays,
		locations: locations,
		publisher: publisher,
		now:       time.Now,
		state:     make(map[string]*dayState),
	}
}

// SetNow overrides the clock (tests).
func (r *Reconciler) SetNow(fn func() time.Time) { r.now = fn }

// SetFastLookup installs the mirror's fast attendance table. Optional;
// without it every already-logged check reads the store.
func (r *Reconciler) SetFastLookup(fl FastLookup) { r.fast = fl }

// CheckNow handles a geofence-enter event or manual location check.
// Location errors never propagate; the next scheduled check or app
// foreground retries naturally.
func (r *Reconciler) CheckNow(ctx context.Context, userID string) Outcome {
	profile, err := r.store.Profile(ctx, userID)
	if err != nil {
		slog.Warn("Geofence: profile unavailable", "user_id", userID, "error", err)
		return OutcomeSkipped
	}

	today := dateutil.LocalDateString(r.now().In(profile.Location()))

	r.mu.Lock()
	st, ok := r.state[userID]
	if !ok || st.date != today {
		// New calendar day resets the machine.
		st = &dayState{date: today}
		r.state[userID] = st
	}
	switch st.phase {
	case phaseAutoLogged:
		r.mu.Unlock()
		return OutcomeAlreadyLogged
	case phaseChecking:
		// A fix is already in flight.
		r.mu.Unlock()
		return OutcomeSkipped
	}

	// Short-circuit before any location fetch: a record from any source
	// makes today terminal. The fast lookup table answers without the
	// store lock; a miss still consults the store, since the table can
	// lag the blob.
	if r.fast != nil {
		if _, ok, err := r.fast.FastStatus(ctx, userID, today); err == nil && ok {
			st.phase = phaseAutoLogged
			r.mu.Unlock()
			return OutcomeAlreadyLogged
		}
	}
	if _, err := r.store.Get(ctx, userID, today); err == nil {
		st.phase = phaseAutoLogged
		r.mu.Unlock()
		return OutcomeAlreadyLogged
	} else if !errors.Is(err, attendance.ErrNotFound) {
		r.mu.Unlock()
		slog.Warn("Geofence: store read failed", "user_id", userID, "error", err)
		return OutcomeSkipped
	}

	if !r.preconditionsMet(ctx, userID, profile, today) {
		r.mu.Unlock()
		return OutcomeSkipped
	}

	st.phase = phaseChecking
	r.mu.Unlock()

	outcome := r.check(ctx, userID, profile, today)

	r.mu.Lock()
	if st.date == today {
		if outcome == OutcomeAutoLogged || outcome == OutcomeAlreadyLogged {
			st.phase = phaseAutoLogged
		} else {
			st.phase = phaseUnchecked
		}
	}
	r.mu.Unlock()
	return outcome
}

func (r *Reconciler) preconditionsMet(ctx context.Context, userID string, profile user.Profile, today string) bool {
	if profile.TrackingMode != user.ModeAuto {
		return false
	}
	if profile.CompanyLocation == nil {
		// Auto mode without an office location degrades to reminders
		// only.
		return false
	}
	if dateutil.IsWeekend(today) {
		return false
	}
	year, err := dateutil.YearOf(today)
	if err != nil {
		return false
	}
	country := profile.Country
	if country == "" {
		country = user.DefaultCountry
	}
	if r.holidays.IsHoliday(ctx, userID, today, country, year) {
		return false
	}
	return true
}

func (r *Reconciler) check(ctx context.Context, userID string, profile user.Profile, today string) Outcome {
	fctx, cancel := context.WithTimeout(ctx, locationTimeout)
	defer cancel()

	pos, err := r.locations.Current(fctx, userID)
	if err != nil {
		slog.Warn("Geofence: location fetch failed", "user_id", userID, "error", err)
		return OutcomeFetchFailed
	}

	dist := geo.HaversineKm(pos, *profile.CompanyLocation)
	if dist >= OfficeRadiusKm {
		return OutcomeNoMatch
	}

	// The fix was in flight while the user could have logged manually;
	// re-read before committing and discard the result if a record
	// appeared.
	if _, err := r.store.Get(ctx, userID, today); err == nil {
		return OutcomeAlreadyLogged
	}

	if err := r.store.Mark(ctx, userID, today, attendance.StatusOffice); err != nil {
		slog.Error("Geofence: auto-log failed", "user_id", userID, "error", err)
		return OutcomeFetchFailed
	}

	slog.Info("Geofence: office arrival auto-logged",
		"user_id", userID, "date", today, "distance_km", dist)

	if r.publisher != nil {
		r.publisher.Publish(notification.Push{
			UserID:   userID,
			Category: notification.CategoryAutoLogged,
			Title:    "Office day logged",
			Message:  "Looks like you're at the office, so today was marked as an office day.",
			Data:     map[string]string{"date": today},
		})
	}
	return OutcomeAutoLogged
}
