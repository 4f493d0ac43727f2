package notification

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hybridtrack/attendance-backend-go/internal/domain/attendance"
	"github.com/hybridtrack/attendance-backend-go/internal/domain/notification"
	"github.com/hybridtrack/attendance-backend-go/internal/domain/user"
)

type stubStore struct {
	mu      sync.Mutex
	logged  map[string]attendance.Status
	planned map[string]attendance.Intent
	profile user.Profile
}

func (s *stubStore) All(ctx context.Context, userID string) (map[string]attendance.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]attendance.Status, len(s.logged))
	for k, v := range s.logged {
		out[k] = v
	}
	return out, nil
}

func (s *stubStore) PlannedDays(ctx context.Context, userID string) (map[string]attendance.Intent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]attendance.Intent, len(s.planned))
	for k, v := range s.planned {
		out[k] = v
	}
	return out, nil
}

func (s *stubStore) Profile(ctx context.Context, userID string) (user.Profile, error) {
	return s.profile, nil
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

var sydney, _ = time.LoadLocation("Australia/Sydney")

// Tuesday 2025-03-11.
func fixedClock() func() time.Time {
	return func() time.Time {
		return time.Date(2025, 3, 11, 8, 0, 0, 0, sydney)
	}
}

func newTestScheduler(store *stubStore) (*Scheduler, *capturingPublisher) {
	pub := &capturingPublisher{}
	s := NewScheduler(store, pub)
	s.SetNow(fixedClock())
	return s, pub
}

func TestDesiredSetWindow(t *testing.T) {
	planned := map[string]attendance.Intent{
		"2025-03-11": attendance.StatusOffice, // today: excluded
		"2025-03-12": attendance.StatusOffice, // tomorrow: included
		"2025-03-25": attendance.StatusOffice, // 14 days out: included
		"2025-04-11": attendance.StatusOffice, // 31 days out: excluded
		"2025-03-10": attendance.StatusOffice, // past: excluded
		"2025-03-14": attendance.StatusWFH,    // wfh intent: no reminder
	}
	specs := DesiredSet(user.ModeManual, planned, nil, "2025-03-11", sydney)

	ids := make(map[string]bool, len(specs))
	for _, spec := range specs {
		ids[spec.ID] = true
	}
	assert.Len(t, specs, 2)
	assert.True(t, ids["planned_office:2025-03-12"])
	assert.True(t, ids["planned_office:2025-03-25"])
}

func TestDesiredSetSkipsLoggedDays(t *testing.T) {
	planned := map[string]attendance.Intent{
		"2025-03-12": attendance.StatusOffice,
		"2025-03-13": attendance.StatusOffice,
	}
	logged := map[string]attendance.Status{
		"2025-03-12": attendance.StatusLeave,
	}
	specs := DesiredSet(user.ModeManual, planned, logged, "2025-03-11", sydney)

	require.Len(t, specs, 1)
	assert.Equal(t, "2025-03-13", specs[0].Date)
}

func TestDesiredSetFireTime(t *testing.T) {
	planned := map[string]attendance.Intent{"2025-03-12": attendance.StatusOffice}
	specs := DesiredSet(user.ModeManual, planned, nil, "2025-03-11", sydney)

	require.Len(t, specs, 1)
	fireAt := specs[0].FireAt
	assert.Equal(t, 7, fireAt.Hour())
	assert.Equal(t, 30, fireAt.Minute())
	assert.Equal(t, "2025-03-12", fireAt.Format("2006-01-02"))
}

func TestReconcileCreatesAndCancels(t *testing.T) {
	store := &stubStore{
		planned: map[string]attendance.Intent{"2025-03-12": attendance.StatusOffice},
		profile: user.Profile{TrackingMode: user.ModeManual, Timezone: "Australia/Sydney"},
	}
	s, _ := newTestScheduler(store)
	ctx := context.Background()

	require.NoError(t, s.Reconcile(ctx, "u1"))
	assert.Len(t, s.Scheduled("u1"), 1)

	// The plan moves to another day: old reminder cancelled, new created.
	store.mu.Lock()
	store.planned = map[string]attendance.Intent{"2025-03-13": attendance.StatusOffice}
	store.mu.Unlock()

	require.NoError(t, s.Reconcile(ctx, "u1"))
	specs := s.Scheduled("u1")
	require.Len(t, specs, 1)
	assert.Equal(t, "2025-03-13", specs[0].Date)
}

func TestReconcileIsIdempotent(t *testing.T) {
	store := &stubStore{
		planned: map[string]attendance.Intent{"2025-03-12": attendance.StatusOffice},
		profile: user.Profile{TrackingMode: user.ModeManual, Timezone: "Australia/Sydney"},
	}
	s, _ := newTestScheduler(store)
	ctx := context.Background()

	require.NoError(t, s.Reconcile(ctx, "u1"))
	require.NoError(t, s.Reconcile(ctx, "u1"))
	require.NoError(t, s.Reconcile(ctx, "u1"))

	// Re-running with unchanged state never duplicates.
	assert.Len(t, s.Scheduled("u1"), 1)
}

func TestOnAttendanceMarkedCancelsDateReminders(t *testing.T) {
	s, _ := newTestScheduler(&stubStore{})

	s.Schedule("u1", notification.Spec{
		ID:       "planned_office:2025-03-12",
		Category: notification.CategoryPlannedOffice,
		Date:     "2025-03-12",
	})
	s.Schedule("u1", notification.Spec{
		ID:       "weekly:2025-03-14",
		Category: notification.CategoryWeeklySummary,
		Date:     "2025-03-14",
	})

	s.OnAttendanceMarked("u1", "2025-03-12")

	specs := s.Scheduled("u1")
	require.Len(t, specs, 1)
	assert.Equal(t, notification.CategoryWeeklySummary, specs[0].Category)
}

func TestCancelUnknownIDIsNoop(t *testing.T) {
	s, _ := newTestScheduler(&stubStore{})
	s.Cancel("u1", "does-not-exist")
	assert.Empty(t, s.Scheduled("u1"))
}

func TestOnModeChangeTearsDownPreviousMode(t *testing.T) {
	store := &stubStore{
		profile: user.Profile{TrackingMode: user.ModeAuto, Timezone: "Australia/Sydney"},
	}
	s, _ := newTestScheduler(store)

	// Leftover from the manual-mode era.
	s.Schedule("u1", notification.Spec{
		ID:       "manual:2025-03-11",
		Category: notification.CategoryManualReminder,
		Date:     "2025-03-11",
	})

	require.NoError(t, s.OnModeChange(context.Background(), "u1", user.ModeManual))
	assert.Empty(t, s.Scheduled("u1"))
}

func TestFireDuePublishesAndRemoves(t *testing.T) {
	s, pub := newTestScheduler(&stubStore{})

	now := fixedClock()()
	s.Schedule("u1", notification.Spec{
		ID:       "planned_office:2025-03-11",
		Category: notification.CategoryPlannedOffice,
		Date:     "2025-03-11",
		FireAt:   now.Add(-time.Minute),
		Title:    "Office day planned",
	})
	s.Schedule("u1", notification.Spec{
		ID:       "planned_office:2025-03-12",
		Category: notification.CategoryPlannedOffice,
		Date:     "2025-03-12",
		FireAt:   now.Add(24 * time.Hour),
	})

	s.fireDue()

	pub.mu.Lock()
	require.Len(t, pub.pushes, 1)
	assert.Equal(t, notification.CategoryPlannedOffice, pub.pushes[0].Category)
	assert.Equal(t, "u1", pub.pushes[0].UserID)
	pub.mu.Unlock()

	specs := s.Scheduled("u1")
	require.Len(t, specs, 1)
	assert.Equal(t, "2025-03-12", specs[0].Date)
}
