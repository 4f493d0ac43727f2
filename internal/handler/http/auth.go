package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	syncdomain "github.com/hybridtrack/attendance-backend-go/internal/domain/sync"
	"github.com/hybridtrack/attendance-backend-go/internal/handler/http/response"
	"github.com/hybridtrack/attendance-backend-go/internal/pkg/jwt"
	"github.com/hybridtrack/attendance-backend-go/internal/repository/postgresql"
)

type AuthHandler interface {
	RegisterDevice(w http.ResponseWriter, r *http.Request)
	DeviceToken(w http.ResponseWriter, r *http.Request)
}

// DeviceRegistry is the persistence slice the auth handler needs.
type DeviceRegistry interface {
	Register(ctx context.Context, deviceID, userID, secret string) error
	Verify(ctx context.Context, deviceID, secret string) (string, error)
}

// Bootstrapper reconciles local mirror against remote state when a
// device comes back. Token issuance is the app-launch moment, so the
// reconciled snapshot is seeded into the in-memory store here.
type Bootstrapper interface {
	StartupReconcile(ctx context.Context, userID string) (syncdomain.Snapshot, error)
}

// Seeder installs a reconciled snapshot as in-memory state.
type Seeder interface {
	Seed(userID string, snap syncdomain.Snapshot)
}

type authHandlerImpl struct {
	devices    DeviceRegistry
	jwtService jwt.Service
	bootstrap  Bootstrapper
	seeder     Seeder
}

func NewAuthHandler(devices DeviceRegistry, jwtService jwt.Service, bootstrap Bootstrapper, seeder Seeder) AuthHandler {
	return &authHandlerImpl{
		devices:    devices,
		jwtService: jwtService,
		bootstrap:  bootstrap,
		seeder:     seeder,
	}
}

func (h *authHandlerImpl) seedFromRemote(ctx context.Context, userID string) {
	snap, err := h.bootstrap.StartupReconcile(ctx, userID)
	if err != nil {
		slog.Warn("Startup reconcile failed", "user_id", userID, "error", err)
		return
	}
	h.seeder.Seed(userID, snap)
}

type registerDeviceRequest struct {
	DeviceID string `json:"deviceId"`
	Secret   string `json:"secret"`
	// UserID links a second device to an existing user. Empty means a
	// fresh user is minted for this device.
	UserID string `json:"userId,omitempty"`
}

type deviceTokenRequest struct {
	DeviceID string `json:"deviceId"`
	Secret   string `json:"secret"`
}

type deviceTokenResponse struct {
	UserID    string `json:"userId"`
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
}

// RegisterDevice implements AuthHandler.
func (h *authHandlerImpl) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req registerDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request format", nil)
		return
	}
	if req.DeviceID == "" || req.Secret == "" {
		response.BadRequest(w, "deviceId and secret are required", nil)
		return
	}

	userID := req.UserID
	if userID == "" {
		userID = uuid.NewString()
	}

	if err := h.devices.Register(r.Context(), req.DeviceID, userID, req.Secret); err != nil {
		if errors.Is(err, postgresql.ErrDeviceRegistered) {
			response.Conflict(w, "Device already registered")
			return
		}
		slog.Error("Failed to register device", "error", err)
		response.InternalServerError(w, "Something went wrong")
		return
	}

	token, expiresAt, err := h.jwtService.GenerateDeviceToken(userID, req.DeviceID)
	if err != nil {
		slog.Error("Failed to issue device token", "error", err)
		response.InternalServerError(w, "Something went wrong")
		return
	}

	response.Created(w, "Device registered", deviceTokenResponse{
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

// DeviceToken implements AuthHandler.
func (h *authHandlerImpl) DeviceToken(w http.ResponseWriter, r *http.Request) {
	var req deviceTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request format", nil)
		return
	}
	if req.DeviceID == "" || req.Secret == "" {
		response.BadRequest(w, "deviceId and secret are required", nil)
		return
	}

	userID, err := h.devices.Verify(r.Context(), req.DeviceID, req.Secret)
	if err != nil {
		if errors.Is(err, postgresql.ErrDeviceNotFound) || errors.Is(err, postgresql.ErrDeviceBadSecret) {
			response.Unauthorized(w, "Unknown device or bad secret")
			return
		}
		slog.Error("Failed to verify device", "error", err)
		response.InternalServerError(w, "Something went wrong")
		return
	}

	token, expiresAt, err := h.jwtService.GenerateDeviceToken(userID, req.DeviceID)
	if err != nil {
		slog.Error("Failed to issue device token", "error", err)
		response.InternalServerError(w, "Something went wrong")
		return
	}

	h.seedFromRemote(r.Context(), userID)

	response.Success(w, deviceTokenResponse{
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt,
	})
}
