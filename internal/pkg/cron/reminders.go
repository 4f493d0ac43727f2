package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hybridtrack/attendance-backend-go/internal/domain/attendance"
	"github.com/hybridtrack/attendance-backend-go/internal/domain/holiday"
	"github.com/hybridtrack/attendance-backend-go/internal/domain/notification"
	"github.com/hybridtrack/attendance-backend-go/internal/domain/user"
	"github.com/hybridtrack/attendance-backend-go/internal/pkg/dateutil"
)

// Manual-reminder local hours (morning, midday, afternoon).
var manualReminderHours = []int{10, 13, 16}

// Auto-mode fallback hour: auto users whose day never got logged are
// nudged once late in the afternoon.
const autoFallbackHour = 17

const (
	weeklyStartWeekday = time.Monday
	weeklyStartHour    = 9
	weeklyEndWeekday   = time.Friday
	weeklyEndHour      = 17
)

// autoWFHSetupGrace: no auto-marking inside the first 24h after setup.
const autoWFHSetupGrace = 24 * time.Hour

// Store is the slice of the attendance store the reminder jobs need.
type Store interface {
	Get(ctx context.Context, userID, date string) (attendance.Status, error)
	Mark(ctx context.Context, userID, date string, status attendance.Status) error
	Profile(ctx context.Context, userID string) (user.Profile, error)
	Settings(ctx context.Context, userID string) (user.Settings, error)
	HasAnyHistory(ctx context.Context, userID string) bool
	PlannedDays(ctx context.Context, userID string) (map[string]attendance.Intent, error)
	PrunePlanned(ctx context.Context, userID, today string) (int, error)
	WeekSummary(ctx context.Context, userID, weekStart string) (attendance.WeekSummary, error)
}

// UserLister enumerates users for predicate fan-out.
type UserLister interface {
	ListUserIDs(ctx context.Context) ([]string, error)
}

// Publisher delivers pushes.
type Publisher interface {
	Publish(p notification.Push)
}

// QueueDrainer replays the pending remote sync queue.
type QueueDrainer interface {
	DrainQueue(ctx context.Context) error
}

// ReminderJobs holds the server-side scheduled pushes: predicate-driven
// reminder fan-out, weekly summaries, the auto-WFH end-of-day fallback,
// planned-day pruning and periodic sync-queue drains.
type ReminderJobs struct {
	store    Store
	holidays holiday.Cache
	users    UserLister
	pub      Publisher
	drainer  QueueDrainer
	now      func() time.Time

	// sent de-duplicates pushes within a slot: user|date|slot -> sent.
	sentMu   sync.Mutex
	sent     map[string]bool
	sentDate string
}

// NewReminderJobs creates the job set.
func NewReminderJobs(store Store, holidays holiday.Cache, users UserLister, pub Publisher, drainer QueueDrainer) *ReminderJobs {
	return &ReminderJobs{
		store:    store,
		holidays: holidays,
		users:    users,
		pub:      pub,
		drainer:  drainer,
		now:      time.Now,
		sent:     make(map[string]bool),
	}
}

// SetNow overrides the clock (tests).
func (j *ReminderJobs) SetNow(fn func() time.Time) { j.now = fn }

// RegisterJobs wires every job into the scheduler.
func (j *ReminderJobs) RegisterJobs(s *Scheduler) {
	s.AddJob("manual_reminders", 15*time.Minute, j.ManualReminders)
	s.AddJob("auto_mode_fallback", 15*time.Minute, j.AutoModeFallback)
	s.AddJob("weekly_summaries", 30*time.Minute, j.WeeklySummaries)
	s.AddJob("auto_wfh_fallback", 1*time.Hour, j.AutoWFHFallback)
	s.AddJob("prune_planned_days", 6*time.Hour, j.PrunePlannedDays)
	s.AddJob("drain_sync_queue", 1*time.Minute, j.DrainSyncQueue)
}

// markSent records a slot delivery; returns false if already sent. The
// map resets when the UTC date rolls over so it cannot grow unbounded.
func (j *ReminderJobs) markSent(userID, date, slot string) bool {
	j.sentMu.Lock()
	defer j.sentMu.Unlock()
	utcDay := dateutil.LocalDateString(j.now().UTC())
	if j.sentDate != utcDay {
		j.sent = make(map[string]bool)
		j.sentDate = utcDay
	}
	key := fmt.Sprintf("%s|%s|%s", userID, date, slot)
	if j.sent[key] {
		return false
	}
	j.sent[key] = true
	return true
}

// EligibleForManualReminder evaluates the reminder predicate for one
// user: manual mode, nothing logged for their local today, and today is a
// working day. Returns the user's local today alongside.
func (j *ReminderJobs) EligibleForManualReminder(ctx context.Context, userID string) (bool, string, error) {
	return j.eligible(ctx, userID, user.ModeManual)
}

func (j *ReminderJobs) eligible(ctx context.Context, userID string, mode user.TrackingMode) (bool, string, error) {
	profile, err := j.store.Profile(ctx, userID)
	if err != nil {
		return false, "", err
	}
	if profile.TrackingMode != mode {
		return false, "", nil
	}

	today := dateutil.LocalDateString(j.now().In(profile.Location()))
	if dateutil.IsWeekend(today) {
		return false, today, nil
	}
	year, err := dateutil.YearOf(today)
	if err != nil {
		return false, today, nil
	}
	country := profile.Country
	if country == "" {
		country = user.DefaultCountry
	}
	if j.holidays.IsHoliday(ctx, userID, today, country, year) {
		return false, today, nil
	}
	if _, err := j.store.Get(ctx, userID, today); err == nil {
		// Already logged.
		return false, today, nil
	}
	return true, today, nil
}

// ManualReminders sends the morning/midday/afternoon reminder to every
// eligible manual-mode user whose local clock is inside a reminder hour.
func (j *ReminderJobs) ManualReminders(ctx context.Context) error {
	userIDs, err := j.users.ListUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	sentCount := 0
	for _, userID := range userIDs {
		profile, err := j.store.Profile(ctx, userID)
		if err != nil {
			continue
		}
		localHour := j.now().In(profile.Location()).Hour()
		slot := -1
		for _, h := range manualReminderHours {
			if localHour == h {
				slot = h
				break
			}
		}
		if slot == -1 {
			continue
		}

		ok, today, err := j.EligibleForManualReminder(ctx, userID)
		if err != nil || !ok {
			continue
		}
		if !j.markSent(userID, today, fmt.Sprintf("manual-%d", slot)) {
			continue
		}

		j.pub.Publish(notification.Push{
			UserID:   userID,
			Category: notification.CategoryManualReminder,
			Title:    "Where are you working today?",
			Message:  "Log today as office, home or leave.",
			Data:     map[string]string{"date": today},
		})
		sentCount++
	}

	if sentCount > 0 {
		slog.Info("Cron: manual reminders sent", "count", sentCount)
	}
	return nil
}

// AutoModeFallback nudges auto-mode users whose day never got logged;
// same predicate shape as the manual reminder with mode and hour swapped.
func (j *ReminderJobs) AutoModeFallback(ctx context.Context) error {
	userIDs, err := j.users.ListUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	for _, userID := range userIDs {
		profile, err := j.store.Profile(ctx, userID)
		if err != nil {
			continue
		}
		if j.now().In(profile.Location()).Hour() != autoFallbackHour {
			continue
		}

		ok, today, err := j.eligible(ctx, userID, user.ModeAuto)
		if err != nil || !ok {
			continue
		}
		if !j.markSent(userID, today, "auto-fallback") {
			continue
		}

		j.pub.Publish(notification.Push{
			UserID:   userID,
			Category: notification.CategoryManualReminder,
			Title:    "Today isn't logged yet",
			Message:  "Location tracking didn't catch today. Log it manually?",
			Data:     map[string]string{"date": today},
		})
	}
	return nil
}

// WeeklySummaries sends the start-of-week plan overview and the
// end-of-week recap.
func (j *ReminderJobs) WeeklySummaries(ctx context.Context) error {
	userIDs, err := j.users.ListUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	for _, userID := range userIDs {
		profile, err := j.store.Profile(ctx, userID)
		if err != nil {
			continue
		}
		settings, err := j.store.Settings(ctx, userID)
		if err != nil || !settings.WeeklySummary {
			// Weekly summaries are opt-in.
			continue
		}
		local := j.now().In(profile.Location())
		today := dateutil.LocalDateString(local)

		switch {
		case local.Weekday() == weeklyStartWeekday && local.Hour() == weeklyStartHour:
			if !j.markSent(userID, today, "week-start") {
				continue
			}
			j.sendWeekStart(ctx, userID, today)
		case local.Weekday() == weeklyEndWeekday && local.Hour() == weeklyEndHour:
			if !j.markSent(userID, today, "week-end") {
				continue
			}
			j.sendWeekEnd(ctx, userID, today)
		}
	}
	return nil
}

func (j *ReminderJobs) sendWeekStart(ctx context.Context, userID, monday string) {
	planned, err := j.store.PlannedDays(ctx, userID)
	if err != nil {
		return
	}
	officePlanned := 0
	for date, intent := range planned {
		days, err := dateutil.DaysBetween(monday, date)
		if err == nil && days >= 0 && days < 5 && intent == attendance.StatusOffice {
			officePlanned++
		}
	}
	j.pub.Publish(notification.Push{
		UserID:   userID,
		Category: notification.CategoryWeeklySummary,
		Title:    "Your week ahead",
		Message:  fmt.Sprintf("You have %d office day(s) planned this week.", officePlanned),
		Data:     map[string]string{"weekStart": monday},
	})
}

func (j *ReminderJobs) sendWeekEnd(ctx context.Context, userID, friday string) {
	monday, err := dateutil.AddDays(friday, -4)
	if err != nil {
		return
	}
	sum, err := j.store.WeekSummary(ctx, userID, monday)
	if err != nil {
		return
	}
	j.pub.Publish(notification.Push{
		UserID:   userID,
		Category: notification.CategoryWeeklySummary,
		Title:    "Your week in review",
		Message: fmt.Sprintf("%d office, %d home, %d leave, %d unlogged.",
			sum.OfficeDays, sum.WFHDays, sum.LeaveDays, sum.Unlogged),
		Data: sum,
	})
}

// AutoWFHFallback inspects yesterday for every user after 06:00 local:
// an unlogged weekday that wasn't a holiday is auto-marked wfh and the
// user is told. Brand-new users (no history) and users inside 24h of
// setup completion are never auto-marked.
func (j *ReminderJobs) AutoWFHFallback(ctx context.Context) error {
	userIDs, err := j.users.ListUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	marked := 0
	for _, userID := range userIDs {
		profile, err := j.store.Profile(ctx, userID)
		if err != nil {
			continue
		}
		local := j.now().In(profile.Location())
		if local.Hour() < 6 {
			continue
		}
		if !profile.SetupOlderThan(autoWFHSetupGrace, j.now()) {
			continue
		}
		if !j.store.HasAnyHistory(ctx, userID) {
			continue
		}

		yesterday, err := dateutil.AddDays(dateutil.LocalDateString(local), -1)
		if err != nil {
			continue
		}
		if dateutil.IsWeekend(yesterday) {
			continue
		}
		year, err := dateutil.YearOf(yesterday)
		if err != nil {
			continue
		}
		country := profile.Country
		if country == "" {
			country = user.DefaultCountry
		}
		if j.holidays.IsHoliday(ctx, userID, yesterday, country, year) {
			continue
		}
		if _, err := j.store.Get(ctx, userID, yesterday); err == nil {
			continue
		}

		if err := j.store.Mark(ctx, userID, yesterday, attendance.StatusWFH); err != nil {
			slog.Error("Cron: auto-WFH mark failed", "user_id", userID, "date", yesterday, "error", err)
			continue
		}
		marked++

		j.pub.Publish(notification.Push{
			UserID:   userID,
			Category: notification.CategoryAutoWFH,
			Title:    "Yesterday marked as home",
			Message:  fmt.Sprintf("%s had no entry, so it was logged as a work-from-home day.", yesterday),
			Data:     map[string]string{"date": yesterday},
		})
	}

	if marked > 0 {
		slog.Info("Cron: auto-WFH fallback applied", "count", marked)
	}
	return nil
}

// PrunePlannedDays garbage-collects planned days older than the
// retention window for every user.
func (j *ReminderJobs) PrunePlannedDays(ctx context.Context) error {
	userIDs, err := j.users.ListUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	total := 0
	for _, userID := range userIDs {
		profile, err := j.store.Profile(ctx, userID)
		if err != nil {
			continue
		}
		today := dateutil.LocalDateString(j.now().In(profile.Location()))
		n, err := j.store.PrunePlanned(ctx, userID, today)
		if err != nil {
			continue
		}
		total += n
	}
	if total > 0 {
		slog.Info("Cron: pruned planned days", "count", total)
	}
	return nil
}

// DrainSyncQueue periodically replays queued remote writes. An
// in-flight drain is not an error.
func (j *ReminderJobs) DrainSyncQueue(ctx context.Context) error {
	if err := j.drainer.DrainQueue(ctx); err != nil {
		// Overlap with another drain; next tick retries.
		return nil
	}
	return nil
}
