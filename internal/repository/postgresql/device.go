package postgresql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hybridtrack/attendance-backend-go/internal/pkg/database"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrDeviceNotFound   = errors.New("device not registered")
	ErrDeviceBadSecret  = errors.New("device secret mismatch")
	ErrDeviceRegistered = errors.New("device already registered")
)

// DeviceRepository stores device registrations. A device registers once
// with a self-generated secret; the user id is derived from the device id
// and the secret hash gates token issuance afterwards.
type DeviceRepository struct {
	db *database.DB
}

func NewDeviceRepository(db *database.DB) (*DeviceRepository, error) {
	r := &DeviceRepository{db: db}
	if err := r.migrate(context.Background()); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *DeviceRepository) migrate(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS devices (
			device_id   TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL,
			secret_hash TEXT NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_seen   TIMESTAMPTZ
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to migrate devices: %w", err)
	}
	return nil
}

// Register stores a new device with a bcrypt-hashed secret.
func (r *DeviceRepository) Register(ctx context.Context, deviceID, userID, secret string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash device secret: %w", err)
	}

	tag, err := r.db.Exec(ctx, `
		INSERT INTO devices (device_id, user_id, secret_hash)
		VALUES ($1, $2, $3)
		ON CONFLICT (device_id) DO NOTHING
	`, deviceID, userID, string(hash))
	if err != nil {
		return fmt.Errorf("failed to register device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDeviceRegistered
	}
	return nil
}

// Verify checks the device secret and returns the user id on success.
func (r *DeviceRepository) Verify(ctx context.Context, deviceID, secret string) (string, error) {
	var userID, hash string
	err := r.db.QueryRow(ctx, `
		SELECT user_id, secret_hash FROM devices WHERE device_id = $1
	`, deviceID).Scan(&userID, &hash)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", ErrDeviceNotFound
		}
		return "", fmt.Errorf("failed to look up device: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
		return "", ErrDeviceBadSecret
	}

	now := time.Now()
	_, _ = r.db.Exec(ctx, `UPDATE devices SET last_seen = $1 WHERE device_id = $2`, now, deviceID)

	return userID, nil
}
