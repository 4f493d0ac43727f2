package attendance

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hybridtrack/attendance-backend-go/internal/domain/attendance"
	syncdomain "github.com/hybridtrack/attendance-backend-go/internal/domain/sync"
	"github.com/hybridtrack/attendance-backend-go/internal/domain/user"
)

type memMirror struct {
	mu        sync.Mutex
	snapshots map[string]syncdomain.Snapshot
	fast      map[string]attendance.Status
}

func newMemMirror() *memMirror {
	return &memMirror{
		snapshots: make(map[string]syncdomain.Snapshot),
		fast:      make(map[string]attendance.Status),
	}
}

func (m *memMirror) LoadSnapshot(ctx context.Context, userID string) (syncdomain.Snapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snapshots[userID]
	if !ok {
		return syncdomain.NewSnapshot(), false, nil
	}
	return snap, true, nil
}

func (m *memMirror) SaveSnapshot(ctx context.Context, userID string, snap syncdomain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[userID] = snap
	return nil
}

func (m *memMirror) FastStatus(ctx context.Context, userID, date string) (attendance.Status, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.fast[userID+"|"+date]
	return st, ok, nil
}

func (m *memMirror) SetFastStatus(ctx context.Context, userID, date string, status attendance.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fast[userID+"|"+date] = status
	return nil
}

func (m *memMirror) DeleteFastStatus(ctx context.Context, userID, date string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.fast, userID+"|"+date)
	return nil
}

func (m *memMirror) CountFastStatuses(ctx context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.fast {
		if len(k) > len(userID) && k[:len(userID)] == userID {
			n++
		}
	}
	return n, nil
}

type countingPersister struct {
	mu        sync.Mutex
	mutations []syncdomain.Mutation
}

func (p *countingPersister) Persist(ctx context.Context, m syncdomain.Mutation) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mutations = append(p.mutations, m)
	return nil
}

func (p *countingPersister) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.mutations)
}

func (p *countingPersister) countUnit(unit syncdomain.Unit) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, m := range p.mutations {
		if m.Unit == unit {
			n++
		}
	}
	return n
}

type recordingCanceller struct {
	mu    sync.Mutex
	calls []string
}

func (c *recordingCanceller) OnAttendanceMarked(userID, date string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, userID+"|"+date)
}

func (c *recordingCanceller) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func newTestService(t *testing.T) (*Service, *countingPersister, *recordingCanceller) {
	t.Helper()
	persister := &countingPersister{}
	canceller := &recordingCanceller{}
	svc := NewService(newMemMirror(), persister)
	svc.SetReminderCanceller(canceller)
	// Fixed clock: Tuesday 2025-03-11 10:00 Sydney time.
	loc, err := time.LoadLocation("Australia/Sydney")
	require.NoError(t, err)
	svc.SetNow(func() time.Time {
		return time.Date(2025, 3, 11, 10, 0, 0, 0, loc)
	})
	return svc, persister, canceller
}

func TestMarkIsIdempotent(t *testing.T) {
	svc, persister, canceller := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Mark(ctx, "u1", "2025-03-11", attendance.StatusOffice))
	require.NoError(t, svc.Mark(ctx, "u1", "2025-03-11", attendance.StatusOffice))

	assert.Equal(t, 1, persister.count())
	assert.Equal(t, 1, canceller.count())

	got, err := svc.Get(ctx, "u1", "2025-03-11")
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusOffice, got)
}

func TestMarkPastDateDoesNotCancelReminders(t *testing.T) {
	svc, _, canceller := newTestService(t)

	require.NoError(t, svc.Mark(context.Background(), "u1", "2025-03-05", attendance.StatusWFH))
	assert.Equal(t, 0, canceller.count())
}

func TestMarkRejectsBadInput(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Mark(ctx, "u1", "2025-03-11", attendance.Status("vacation")), attendance.ErrInvalidStatus)
	assert.ErrorIs(t, svc.Mark(ctx, "u1", "11/03/2025", attendance.StatusOffice), attendance.ErrInvalidDate)
}

func TestClearRemovesRecord(t *testing.T) {
	svc, persister, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Mark(ctx, "u1", "2025-03-10", attendance.StatusLeave))
	require.NoError(t, svc.Clear(ctx, "u1", "2025-03-10"))

	_, err := svc.Get(ctx, "u1", "2025-03-10")
	assert.ErrorIs(t, err, attendance.ErrNotFound)

	// Clearing an absent record is a no-op, not a third persist.
	require.NoError(t, svc.Clear(ctx, "u1", "2025-03-10"))
	assert.Equal(t, 2, persister.count())
}

func TestBulkMarkBatchesSideEffects(t *testing.T) {
	svc, persister, canceller := newTestService(t)
	ctx := context.Background()

	dates := []string{"2025-03-10", "2025-03-11", "2025-03-12"}
	require.NoError(t, svc.BulkMark(ctx, "u1", dates, attendance.StatusOffice))

	// One batched remote mutation and one reminder cancellation even
	// though today is among the dates.
	assert.Equal(t, 1, persister.count())
	assert.Equal(t, 1, canceller.count())

	all, err := svc.All(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestPlanDayRejectsLeave(t *testing.T) {
	svc, _, _ := newTestService(t)

	err := svc.PlanDay(context.Background(), "u1", "2025-03-20", attendance.StatusLeave)
	assert.ErrorIs(t, err, attendance.ErrInvalidIntent)
}

func TestPrunePlannedKeepsRecentWindow(t *testing.T) {
	svc, persister, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.PlanDay(ctx, "u1", "2025-03-01", attendance.StatusOffice)) // 10 days old
	require.NoError(t, svc.PlanDay(ctx, "u1", "2025-03-04", attendance.StatusWFH))    // exactly 7 days old
	require.NoError(t, svc.PlanDay(ctx, "u1", "2025-03-20", attendance.StatusOffice))

	pruned, err := svc.PrunePlanned(ctx, "u1", "2025-03-11")
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	planned, err := svc.PlannedDays(ctx, "u1")
	require.NoError(t, err)
	assert.Contains(t, planned, "2025-03-04")
	assert.Contains(t, planned, "2025-03-20")
	assert.NotContains(t, planned, "2025-03-01")

	// No second persist when nothing else falls out of the window.
	before := persister.countUnit(syncdomain.UnitPlannedDays)
	pruned, err = svc.PrunePlanned(ctx, "u1", "2025-03-11")
	require.NoError(t, err)
	assert.Equal(t, 0, pruned)
	assert.Equal(t, before, persister.countUnit(syncdomain.UnitPlannedDays))
}

func TestMonthSummaryDaysTarget(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.SetSettings(ctx, "u1", user.Settings{MonthlyTarget: 2, TargetMode: user.TargetDays}))
	require.NoError(t, svc.Mark(ctx, "u1", "2025-03-03", attendance.StatusOffice))
	require.NoError(t, svc.Mark(ctx, "u1", "2025-03-04", attendance.StatusOffice))
	require.NoError(t, svc.Mark(ctx, "u1", "2025-03-05", attendance.StatusWFH))
	require.NoError(t, svc.Mark(ctx, "u1", "2025-02-28", attendance.StatusOffice)) // previous month

	sum, err := svc.MonthSummary(ctx, "u1", "2025-03")
	require.NoError(t, err)
	assert.Equal(t, 2, sum.OfficeDays)
	assert.Equal(t, 1, sum.WFHDays)
	assert.True(t, sum.TargetMet)
	assert.InDelta(t, 66.7, sum.OfficePercent, 0.1)
}

func TestMonthSummaryPercentTarget(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.SetSettings(ctx, "u1", user.Settings{MonthlyTarget: 80, TargetMode: user.TargetPercent}))
	require.NoError(t, svc.Mark(ctx, "u1", "2025-03-03", attendance.StatusOffice))
	require.NoError(t, svc.Mark(ctx, "u1", "2025-03-04", attendance.StatusWFH))

	sum, err := svc.MonthSummary(ctx, "u1", "2025-03")
	require.NoError(t, err)
	assert.False(t, sum.TargetMet)
	assert.InDelta(t, 50.0, sum.OfficePercent, 0.1)
}

func TestWeekSummaryCountsUnlogged(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Mark(ctx, "u1", "2025-03-10", attendance.StatusOffice)) // Mon
	require.NoError(t, svc.Mark(ctx, "u1", "2025-03-12", attendance.StatusWFH))    // Wed

	sum, err := svc.WeekSummary(ctx, "u1", "2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.OfficeDays)
	assert.Equal(t, 1, sum.WFHDays)
	assert.Equal(t, 3, sum.Unlogged)
}

func TestApplyRemoteReplacesSingleUnit(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Mark(ctx, "u1", "2025-03-10", attendance.StatusOffice))
	require.NoError(t, svc.PlanDay(ctx, "u1", "2025-03-20", attendance.StatusWFH))

	snap := syncdomain.NewSnapshot()
	snap.AttendanceData["2025-03-10"] = attendance.StatusLeave
	svc.ApplyRemote("u1", syncdomain.UnitAttendanceData, snap)

	got, err := svc.Get(ctx, "u1", "2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusLeave, got)

	// Other units untouched by an attendanceData change.
	planned, err := svc.PlannedDays(ctx, "u1")
	require.NoError(t, err)
	assert.Contains(t, planned, "2025-03-20")
}

func TestSeedLoadsSnapshot(t *testing.T) {
	svc, _, _ := newTestService(t)

	snap := syncdomain.NewSnapshot()
	snap.AttendanceData["2025-03-01"] = attendance.StatusWFH
	snap.UserData = user.Profile{TrackingMode: user.ModeManual, Country: "AU"}
	svc.Seed("u1", snap)

	got, err := svc.Get(context.Background(), "u1", "2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusWFH, got)

	profile, err := svc.Profile(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, user.ModeManual, profile.TrackingMode)
}

func TestHolidayCacheRoundTrip(t *testing.T) {
	svc, persister, _ := newTestService(t)
	ctx := context.Background()

	at := time.Now()
	require.NoError(t, svc.SetHolidayCache(ctx, "u1", "AU_2025", map[string]string{"2025-12-25": "Christmas Day"}, at))

	dates, gotAt, ok := svc.HolidayCache(ctx, "u1", "AU_2025")
	require.True(t, ok)
	assert.Equal(t, "Christmas Day", dates["2025-12-25"])
	assert.Equal(t, at, gotAt)

	// Both holiday units persisted.
	assert.Equal(t, 1, persister.countUnit(syncdomain.UnitCachedHolidays))
	assert.Equal(t, 1, persister.countUnit(syncdomain.UnitHolidayLastUpdated))

	_, _, ok = svc.HolidayCache(ctx, "u1", "US_2025")
	assert.False(t, ok)
}

// blockingPersister stalls inside Persist until released, standing in
// for a remote outage burning its full timeout.
type blockingPersister struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingPersister() *blockingPersister {
	return &blockingPersister{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (p *blockingPersister) Persist(ctx context.Context, m syncdomain.Mutation) error {
	p.once.Do(func() { close(p.started) })
	<-p.release
	return nil
}

func TestMarkDoesNotHoldLockDuringRemotePersist(t *testing.T) {
	persister := newBlockingPersister()
	svc := NewService(newMemMirror(), persister)
	loc, err := time.LoadLocation("Australia/Sydney")
	require.NoError(t, err)
	svc.SetNow(func() time.Time {
		return time.Date(2025, 3, 11, 10, 0, 0, 0, loc)
	})
	ctx := context.Background()

	markDone := make(chan struct{})
	go func() {
		defer close(markDone)
		_ = svc.Mark(ctx, "userA", "2025-03-11", attendance.StatusOffice)
	}()
	<-persister.started

	// With the remote write in flight, every other user must still be
	// served from the local cache.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		_, err := svc.Get(ctx, "userB", "2025-03-11")
		assert.ErrorIs(t, err, attendance.ErrNotFound)
	}()
	select {
	case <-readDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Get blocked behind an in-flight remote persist")
	}

	// userA's own write is already visible locally too.
	status, err := svc.Get(ctx, "userA", "2025-03-11")
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusOffice, status)

	close(persister.release)
	<-markDone
}
