package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hybridtrack/attendance-backend-go/internal/domain/attendance"
	syncdomain "github.com/hybridtrack/attendance-backend-go/internal/domain/sync"
)

// Mirror is the sqlite-backed local cache: one serialized snapshot blob
// per user plus a lightweight attendance lookup table so the geofence and
// notification paths never deserialize the full document.
type Mirror struct {
	db *sqlx.DB
}

// NewMirror opens (or creates) the local mirror database at path.
func NewMirror(path string) (*Mirror, error) {
	db, err := sqlx.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open local mirror: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping local mirror: %w", err)
	}

	m := &Mirror{db: db}
	if err := m.migrate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Mirror) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		user_id    TEXT PRIMARY KEY,
		data       BLOB NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS fast_attendance (
		user_id TEXT NOT NULL,
		date    TEXT NOT NULL,
		status  TEXT NOT NULL,
		PRIMARY KEY (user_id, date)
	);`
	if _, err := m.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to migrate local mirror: %w", err)
	}
	return nil
}

// LoadSnapshot implements sync.LocalMirror.
func (m *Mirror) LoadSnapshot(ctx context.Context, userID string) (syncdomain.Snapshot, bool, error) {
	var blob []byte
	err := m.db.QueryRowxContext(ctx,
		`SELECT data FROM snapshots WHERE user_id = ?`, userID).Scan(&blob)
	if err != nil {
		if err == sql.ErrNoRows {
			return syncdomain.NewSnapshot(), false, nil
		}
		return syncdomain.Snapshot{}, false, fmt.Errorf("failed to load snapshot: %w", err)
	}

	snap := syncdomain.NewSnapshot()
	if err := json.Unmarshal(blob, &snap); err != nil {
		return syncdomain.Snapshot{}, false, fmt.Errorf("%w: %v", syncdomain.ErrSnapshotCorrupt, err)
	}
	return snap, true, nil
}

// SaveSnapshot implements sync.LocalMirror.
func (m *Mirror) SaveSnapshot(ctx context.Context, userID string, snap syncdomain.Snapshot) error {
	blob, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	_, err = m.db.ExecContext(ctx, `
		INSERT INTO snapshots (user_id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, userID, blob, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// FastStatus implements sync.LocalMirror.
func (m *Mirror) FastStatus(ctx context.Context, userID, date string) (attendance.Status, bool, error) {
	var raw string
	err := m.db.QueryRowxContext(ctx,
		`SELECT status FROM fast_attendance WHERE user_id = ? AND date = ?`, userID, date).Scan(&raw)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read fast attendance: %w", err)
	}
	return attendance.Status(raw), true, nil
}

// SetFastStatus implements sync.LocalMirror.
func (m *Mirror) SetFastStatus(ctx context.Context, userID, date string, status attendance.Status) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO fast_attendance (user_id, date, status) VALUES (?, ?, ?)
		ON CONFLICT (user_id, date) DO UPDATE SET status = excluded.status
	`, userID, date, string(status))
	if err != nil {
		return fmt.Errorf("failed to write fast attendance: %w", err)
	}
	return nil
}

// DeleteFastStatus implements sync.LocalMirror.
func (m *Mirror) DeleteFastStatus(ctx context.Context, userID, date string) error {
	_, err := m.db.ExecContext(ctx,
		`DELETE FROM fast_attendance WHERE user_id = ? AND date = ?`, userID, date)
	if err != nil {
		return fmt.Errorf("failed to delete fast attendance: %w", err)
	}
	return nil
}

// CountFastStatuses implements sync.LocalMirror.
func (m *Mirror) CountFastStatuses(ctx context.Context, userID string) (int, error) {
	var n int
	err := m.db.QueryRowxContext(ctx,
		`SELECT COUNT(*) FROM fast_attendance WHERE user_id = ?`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count fast attendance: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (m *Mirror) Close() error {
	return m.db.Close()
}
