package postgresql

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	syncdomain "github.com/hybridtrack/attendance-backend-go/internal/domain/sync"
	"github.com/hybridtrack/attendance-backend-go/internal/pkg/database"
	"github.com/jackc/pgx/v5"
)

const changeChannel = "user_document_changes"

type remoteStore struct {
	db *database.DB

	mu          sync.RWMutex
	subscribers map[string]map[chan syncdomain.ChangeEvent]struct{}

	listenCtx    context.Context
	listenCancel context.CancelFunc
	listenDone   chan struct{}
}

// NewRemoteStore creates the PostgreSQL-backed document store and starts
// the LISTEN loop that feeds realtime subscriptions.
func NewRemoteStore(db *database.DB) (syncdomain.RemoteStore, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &remoteStore{
		db:           db,
		subscribers:  make(map[string]map[chan syncdomain.ChangeEvent]struct{}),
		listenCtx:    ctx,
		listenCancel: cancel,
		listenDone:   make(chan struct{}),
	}
	if err := s.migrate(context.Background()); err != nil {
		cancel()
		return nil, err
	}
	go s.listenLoop()
	return s, nil
}

func (s *remoteStore) migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS user_documents (
			user_id              TEXT PRIMARY KEY,
			attendance_data      JSONB NOT NULL DEFAULT '{}'::jsonb,
			planned_days         JSONB NOT NULL DEFAULT '{}'::jsonb,
			user_data            JSONB NOT NULL DEFAULT '{}'::jsonb,
			settings             JSONB NOT NULL DEFAULT '{}'::jsonb,
			cached_holidays      JSONB NOT NULL DEFAULT '{}'::jsonb,
			holiday_last_updated JSONB NOT NULL DEFAULT '{}'::jsonb,
			last_updated         TIMESTAMPTZ,
			last_write_id        TEXT,
			migrated             BOOLEAN NOT NULL DEFAULT FALSE,
			created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to migrate user_documents: %w", err)
	}
	return nil
}

// unitColumn maps a merge unit to its column. Units are a closed set, so
// the column name is never attacker-controlled.
func unitColumn(u syncdomain.Unit) (string, error) {
	switch u {
	case syncdomain.UnitAttendanceData:
		return "attendance_data", nil
	case syncdomain.UnitPlannedDays:
		return "planned_days", nil
	case syncdomain.UnitUserData:
		return "user_data", nil
	case syncdomain.UnitSettings:
		return "settings", nil
	case syncdomain.UnitCachedHolidays:
		return "cached_holidays", nil
	case syncdomain.UnitHolidayLastUpdated:
		return "holiday_last_updated", nil
	}
	return "", syncdomain.ErrUnknownUnit
}

// Load implements sync.RemoteStore.
func (s *remoteStore) Load(ctx context.Context, userID string) (syncdomain.Snapshot, error) {
	query := `
		SELECT attendance_data, planned_days, user_data, settings,
		       cached_holidays, holiday_last_updated, last_updated, migrated
		FROM user_documents
		WHERE user_id = $1
	`

	var (
		attendanceData, plannedDays, userData       []byte
		settings, cachedHolidays, holidayUpdated    []byte
		lastUpdated                                 *time.Time
		migrated                                    bool
	)

	err := s.db.QueryRow(ctx, query, userID).Scan(
		&attendanceData, &plannedDays, &userData,
		&settings, &cachedHolidays, &holidayUpdated,
		&lastUpdated, &migrated,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return syncdomain.NewSnapshot(), nil
		}
		return syncdomain.Snapshot{}, fmt.Errorf("failed to load user document: %w", err)
	}

	snap := syncdomain.NewSnapshot()
	snap.LastUpdated = lastUpdated
	snap.Migrated = migrated

	decode := func(raw []byte, dst interface{}) error {
		if len(raw) == 0 {
			return nil
		}
		return json.Unmarshal(raw, dst)
	}

	if err := decode(attendanceData, &snap.AttendanceData); err != nil {
		return syncdomain.Snapshot{}, fmt.Errorf("failed to decode attendance data: %w", err)
	}
	if err := decode(plannedDays, &snap.PlannedDays); err != nil {
		return syncdomain.Snapshot{}, fmt.Errorf("failed to decode planned days: %w", err)
	}
	if err := decode(userData, &snap.UserData); err != nil {
		return syncdomain.Snapshot{}, fmt.Errorf("failed to decode user data: %w", err)
	}
	if err := decode(settings, &snap.Settings); err != nil {
		return syncdomain.Snapshot{}, fmt.Errorf("failed to decode settings: %w", err)
	}
	if err := decode(cachedHolidays, &snap.CachedHolidays); err != nil {
		return syncdomain.Snapshot{}, fmt.Errorf("failed to decode cached holidays: %w", err)
	}
	if err := decode(holidayUpdated, &snap.HolidayLastUpdated); err != nil {
		return syncdomain.Snapshot{}, fmt.Errorf("failed to decode holiday timestamps: %w", err)
	}

	return snap, nil
}

// PatchUnit implements sync.RemoteStore. Whole-unit replacement: the last
// write to arrive wins the unit.
func (s *remoteStore) PatchUnit(ctx context.Context, m syncdomain.Mutation) error {
	col, err := unitColumn(m.Unit)
	if err != nil {
		return err
	}

	at := m.At
	if at.IsZero() {
		at = time.Now()
	}

	notifyPayload, err := json.Marshal(syncdomain.ChangeEvent{
		UserID:  m.UserID,
		Unit:    m.Unit,
		WriteID: m.WriteID,
		At:      at,
	})
	if err != nil {
		return fmt.Errorf("failed to encode change event: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO user_documents (user_id, %s, last_updated, last_write_id)
		VALUES ($1, $2::jsonb, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			%s = EXCLUDED.%s,
			last_updated = EXCLUDED.last_updated,
			last_write_id = EXCLUDED.last_write_id
	`, col, col, col)

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin patch tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, query, m.UserID, []byte(m.Payload), at, m.WriteID); err != nil {
		return fmt.Errorf("failed to patch unit %s: %w", m.Unit, err)
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, changeChannel, string(notifyPayload)); err != nil {
		return fmt.Errorf("failed to notify change: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit patch: %w", err)
	}
	return nil
}

// SetMigrated implements sync.RemoteStore.
func (s *remoteStore) SetMigrated(ctx context.Context, userID string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO user_documents (user_id, migrated) VALUES ($1, TRUE)
		ON CONFLICT (user_id) DO UPDATE SET migrated = TRUE
	`, userID)
	if err != nil {
		return fmt.Errorf("failed to set migrated flag: %w", err)
	}
	return nil
}

// ListUserIDs implements sync.RemoteStore.
func (s *remoteStore) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT user_id FROM user_documents ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Subscribe implements sync.RemoteStore.
func (s *remoteStore) Subscribe(ctx context.Context, userID string) (<-chan syncdomain.ChangeEvent, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan syncdomain.ChangeEvent, 16)
	if s.subscribers[userID] == nil {
		s.subscribers[userID] = make(map[chan syncdomain.ChangeEvent]struct{})
	}
	s.subscribers[userID][ch] = struct{}{}

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subscribers[userID][ch]; !ok {
			return
		}
		delete(s.subscribers[userID], ch)
		close(ch)
		if len(s.subscribers[userID]) == 0 {
			delete(s.subscribers, userID)
		}
	}

	return ch, cancel, nil
}

// listenLoop holds a dedicated connection on LISTEN and demuxes
// notifications to per-user subscriber channels. The connection is
// re-acquired after any error.
func (s *remoteStore) listenLoop() {
	defer close(s.listenDone)

	for {
		if s.listenCtx.Err() != nil {
			return
		}
		if err := s.listenOnce(); err != nil {
			if s.listenCtx.Err() != nil {
				return
			}
			slog.Error("Realtime listener failed, reconnecting", "error", err)
			select {
			case <-time.After(2 * time.Second):
			case <-s.listenCtx.Done():
				return
			}
		}
	}
}

func (s *remoteStore) listenOnce() error {
	conn, err := s.db.Acquire(s.listenCtx)
	if err != nil {
		return fmt.Errorf("failed to acquire listen connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(s.listenCtx, `LISTEN `+changeChannel); err != nil {
		return fmt.Errorf("failed to LISTEN: %w", err)
	}

	for {
		n, err := conn.Conn().WaitForNotification(s.listenCtx)
		if err != nil {
			return err
		}

		var ev syncdomain.ChangeEvent
		if err := json.Unmarshal([]byte(n.Payload), &ev); err != nil {
			slog.Warn("Dropping malformed change notification", "error", err)
			continue
		}

		s.mu.RLock()
		for ch := range s.subscribers[ev.UserID] {
			select {
			case ch <- ev:
			default:
				// Slow subscriber; the next startup reconciliation
				// will repair anything missed.
				slog.Warn("Dropping change event for slow subscriber", "user_id", ev.UserID)
			}
		}
		s.mu.RUnlock()
	}
}

// Close stops the listener loop.
func (s *remoteStore) Close() {
	s.listenCancel()
	<-s.listenDone
}
