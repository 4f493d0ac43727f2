package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hybridtrack/attendance-backend-go/internal/domain/attendance"
	"github.com/hybridtrack/attendance-backend-go/internal/domain/notification"
	"github.com/hybridtrack/attendance-backend-go/internal/domain/user"
	"github.com/hybridtrack/attendance-backend-go/internal/pkg/dateutil"
)

// PlannedReminderWindowDays bounds how far out a planned office day gets
// an advance reminder.
const PlannedReminderWindowDays = 30

// plannedReminderHour is the local hour one-shot planned-day reminders
// fire at.
const plannedReminderHour = 7
const plannedReminderMinute = 30

const (
	reconcileIdle int32 = iota
	reconcileInProgress
)

// Store is the slice of the attendance store the scheduler reads.
type Store interface {
	All(ctx context.Context, userID string) (map[string]attendance.Status, error)
	PlannedDays(ctx context.Context, userID string) (map[string]attendance.Intent, error)
	Profile(ctx context.Context, userID string) (user.Profile, error)
}

// Publisher delivers due notifications to the user's devices.
type Publisher interface {
	Publish(p notification.Push)
}

// Scheduler maintains the minimal correct set of scheduled notifications
// for each user. Reconcile diffs the desired set against what is
// currently scheduled and cancels/creates the difference; it never
// appends blindly.
type Scheduler struct {
	store     Store
	publisher Publisher
	now       func() time.Time

	mu        sync.Mutex
	scheduled map[string]map[string]notification.Spec // userID -> spec id -> spec

	// reconcileState guards the reconciliation routine per user: a typed
	// idle/in-progress marker so rapid consecutive state changes cannot
	// run the routine concurrently with itself.
	stateMu        sync.Mutex
	reconcileState map[string]*int32

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler creates the notification scheduler.
func NewScheduler(store Store, publisher Publisher) *Scheduler {
	return &Scheduler{
		store:          store,
		publisher:      publisher,
		now:            time.Now,
		scheduled:      make(map[string]map[string]notification.Spec),
		reconcileState: make(map[string]*int32),
		stopCh:         make(chan struct{}),
	}
}

// SetNow overrides the clock (tests).
func (s *Scheduler) SetNow(fn func() time.Time) { s.now = fn }

func plannedSpecID(date string) string {
	return fmt.Sprintf("%s:%s", notification.CategoryPlannedOffice, date)
}

// DesiredSet computes the set of notifications that should exist for the
// given state. Pure: no scheduling side effects.
//
// Manual-mode fixed weekday reminders are deliberately absent; those are
// dispatched by the server-side cron predicate, not the client schedule.
func DesiredSet(mode user.TrackingMode, planned map[string]attendance.Intent, logged map[string]attendance.Status, today string, loc *time.Location) []notification.Spec {
	var specs []notification.Spec

	for date, intent := range planned {
		if intent != attendance.StatusOffice {
			continue
		}
		if date == today {
			// Today needs no advance reminder.
			continue
		}
		days, err := dateutil.DaysBetween(today, date)
		if err != nil || days < 1 || days > PlannedReminderWindowDays {
			continue
		}
		if _, ok := logged[date]; ok {
			continue
		}
		fireDay, err := dateutil.ParseLocalDate(date, loc)
		if err != nil {
			continue
		}
		fireAt := time.Date(fireDay.Year(), fireDay.Month(), fireDay.Day(),
			plannedReminderHour, plannedReminderMinute, 0, 0, loc)
		specs = append(specs, notification.Spec{
			ID:       plannedSpecID(date),
			Category: notification.CategoryPlannedOffice,
			Date:     date,
			FireAt:   fireAt,
			Title:    "Office day planned",
			Message:  fmt.Sprintf("You planned to be in the office today (%s).", date),
		})
	}

	return specs
}

func (s *Scheduler) guard(userID string) *int32 {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	g, ok := s.reconcileState[userID]
	if !ok {
		g = new(int32)
		s.reconcileState[userID] = g
	}
	return g
}

// Reconcile recomputes the desired set for a user and applies the diff.
// Overlapping invocations for the same user short-circuit.
func (s *Scheduler) Reconcile(ctx context.Context, userID string) error {
	g := s.guard(userID)
	if !atomic.CompareAndSwapInt32(g, reconcileIdle, reconcileInProgress) {
		return nil
	}
	defer atomic.StoreInt32(g, reconcileIdle)

	profile, err := s.store.Profile(ctx, userID)
	if err != nil {
		return err
	}
	planned, err := s.store.PlannedDays(ctx, userID)
	if err != nil {
		return err
	}
	logged, err := s.store.All(ctx, userID)
	if err != nil {
		return err
	}

	loc := profile.Location()
	today := dateutil.LocalDateString(s.now().In(loc))
	desired := DesiredSet(profile.TrackingMode, planned, logged, today, loc)

	desiredByID := make(map[string]notification.Spec, len(desired))
	for _, spec := range desired {
		desiredByID[spec.ID] = spec
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.scheduled[userID]
	if current == nil {
		current = make(map[string]notification.Spec)
		s.scheduled[userID] = current
	}

	cancelled, created := 0, 0
	// Cancel anything scheduled that the desired set no longer contains,
	// restricted to the categories reconciliation owns.
	for id, spec := range current {
		if spec.Category != notification.CategoryPlannedOffice {
			continue
		}
		if _, want := desiredByID[id]; !want {
			delete(current, id)
			cancelled++
		}
	}
	// Create or replace the rest. Replacing an existing id is the
	// cancel-then-reschedule de-duplication: a changed planned day never
	// produces duplicate deliveries.
	for id, spec := range desiredByID {
		if existing, ok := current[id]; !ok || existing != spec {
			current[id] = spec
			created++
		}
	}

	if cancelled > 0 || created > 0 {
		slog.Debug("Notification schedule reconciled",
			"user_id", userID, "cancelled", cancelled, "scheduled", created)
	}
	return nil
}

// Schedule inserts a spec directly (weekly summaries and other
// non-reconciled one-shots). Replaces any existing spec with the same id.
func (s *Scheduler) Schedule(userID string, spec notification.Spec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduled[userID] == nil {
		s.scheduled[userID] = make(map[string]notification.Spec)
	}
	s.scheduled[userID][spec.ID] = spec
}

// Cancel removes a scheduled notification. Cancelling an unknown id is a
// no-op, never an error.
func (s *Scheduler) Cancel(userID, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.scheduled[userID], id)
}

// Scheduled returns a copy of the user's current schedule.
func (s *Scheduler) Scheduled(userID string) []notification.Spec {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]notification.Spec, 0, len(s.scheduled[userID]))
	for _, spec := range s.scheduled[userID] {
		out = append(out, spec)
	}
	return out
}

// OnAttendanceMarked implements the attendance store's reminder hook:
// marking today makes every reminder scoped to today moot.
func (s *Scheduler) OnAttendanceMarked(userID, date string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, spec := range s.scheduled[userID] {
		if spec.Date != date {
			continue
		}
		switch spec.Category {
		case notification.CategoryManualReminder, notification.CategoryPlannedOffice:
			delete(s.scheduled[userID], id)
		}
	}
}

// modeCategories returns the notification categories a tracking mode
// owns. The two modes are mutually exclusive consumers of the
// notification surface.
func modeCategories(mode user.TrackingMode) []notification.Category {
	switch mode {
	case user.ModeManual:
		return []notification.Category{notification.CategoryManualReminder}
	case user.ModeAuto:
		return []notification.Category{notification.CategoryAutoLogged}
	}
	return nil
}

// OnModeChange tears down the previous mode's notifications before the
// new mode's schedule is established.
func (s *Scheduler) OnModeChange(ctx context.Context, userID string, previous user.TrackingMode) error {
	s.mu.Lock()
	for _, cat := range modeCategories(previous) {
		for id, spec := range s.scheduled[userID] {
			if spec.Category == cat {
				delete(s.scheduled[userID], id)
			}
		}
	}
	s.mu.Unlock()

	return s.Reconcile(ctx, userID)
}

// Start runs the delivery loop: due specs fire through the publisher and
// leave the schedule.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.fireDue()
			}
		}
	}()
}

func (s *Scheduler) fireDue() {
	now := s.now()

	s.mu.Lock()
	var due []struct {
		userID string
		spec   notification.Spec
	}
	for userID, specs := range s.scheduled {
		for id, spec := range specs {
			if !spec.FireAt.After(now) {
				due = append(due, struct {
					userID string
					spec   notification.Spec
				}{userID, spec})
				delete(specs, id)
			}
		}
	}
	s.mu.Unlock()

	for _, d := range due {
		s.publisher.Publish(notification.Push{
			UserID:   d.userID,
			Category: d.spec.Category,
			Title:    d.spec.Title,
			Message:  d.spec.Message,
			Data:     map[string]string{"date": d.spec.Date},
		})
	}
}

// Stop halts the delivery loop.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}
