package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/hybridtrack/attendance-backend-go/internal/domain/user"
	"github.com/hybridtrack/attendance-backend-go/internal/handler/http/middleware"
	"github.com/hybridtrack/attendance-backend-go/internal/handler/http/response"
	"github.com/hybridtrack/attendance-backend-go/internal/pkg/geo"
)

type ProfileHandler interface {
	GetProfile(w http.ResponseWriter, r *http.Request)
	UpdateProfile(w http.ResponseWriter, r *http.Request)
	GetSettings(w http.ResponseWriter, r *http.Request)
	UpdateSettings(w http.ResponseWriter, r *http.Request)
}

// ProfileService is the slice of the store the profile handler needs.
type ProfileService interface {
	Profile(ctx context.Context, userID string) (user.Profile, error)
	SetProfile(ctx context.Context, userID string, p user.Profile) error
	Settings(ctx context.Context, userID string) (user.Settings, error)
	SetSettings(ctx context.Context, userID string, set user.Settings) error
}

// ModeObserver reacts to a tracking-mode switch: tearing down the old
// mode's notifications and rebuilding the new mode's schedule.
type ModeObserver interface {
	OnModeChange(ctx context.Context, userID string, previous user.TrackingMode) error
}

type profileHandlerImpl struct {
	profileService ProfileService
	modeObserver   ModeObserver
}

func NewProfileHandler(profileService ProfileService, modeObserver ModeObserver) ProfileHandler {
	return &profileHandlerImpl{
		profileService: profileService,
		modeObserver:   modeObserver,
	}
}

type updateProfileRequest struct {
	CompanyName     string     `json:"companyName"`
	CompanyAddress  string     `json:"companyAddress"`
	CompanyLocation *geo.Point `json:"companyLocation"`
	TrackingMode    string     `json:"trackingMode"`
	Country         string     `json:"country"`
	Timezone        string     `json:"timezone"`
	SetupCompleted  bool       `json:"setupCompleted"`
}

// GetProfile implements ProfileHandler.
func (h *profileHandlerImpl) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	profile, err := h.profileService.Profile(r.Context(), userID)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, profile)
}

// UpdateProfile implements ProfileHandler.
func (h *profileHandlerImpl) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request format", nil)
		return
	}

	mode, err := user.ParseTrackingMode(req.TrackingMode)
	if err != nil {
		response.HandleError(w, err)
		return
	}
	if mode == user.ModeAuto && req.CompanyLocation == nil {
		response.HandleError(w, user.ErrMissingLocation)
		return
	}

	userID := middleware.UserID(r.Context())
	previous, err := h.profileService.Profile(r.Context(), userID)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	updated := user.Profile{
		CompanyName:      req.CompanyName,
		CompanyAddress:   req.CompanyAddress,
		CompanyLocation:  req.CompanyLocation,
		TrackingMode:     mode,
		Country:          req.Country,
		Timezone:         req.Timezone,
		SetupCompletedAt: previous.SetupCompletedAt,
	}
	if updated.Country == "" {
		updated.Country = user.DefaultCountry
	}
	if req.SetupCompleted && updated.SetupCompletedAt == nil {
		now := time.Now()
		updated.SetupCompletedAt = &now
	}

	if err := h.profileService.SetProfile(r.Context(), userID, updated); err != nil {
		response.HandleError(w, err)
		return
	}

	if previous.TrackingMode != mode {
		if err := h.modeObserver.OnModeChange(r.Context(), userID, previous.TrackingMode); err != nil {
			slog.Warn("Mode change reconcile failed", "user_id", userID, "error", err)
		}
	}

	response.Success(w, updated)
}

// GetSettings implements ProfileHandler.
func (h *profileHandlerImpl) GetSettings(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	settings, err := h.profileService.Settings(r.Context(), userID)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, settings)
}

type updateSettingsRequest struct {
	MonthlyTarget int    `json:"monthlyTarget"`
	TargetMode    string `json:"targetMode"`
	WeeklySummary bool   `json:"weeklySummary"`
}

// UpdateSettings implements ProfileHandler.
func (h *profileHandlerImpl) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req updateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request format", nil)
		return
	}

	targetMode, err := user.ParseTargetMode(req.TargetMode)
	if err != nil {
		response.HandleError(w, err)
		return
	}
	if req.MonthlyTarget < 0 {
		response.BadRequest(w, "monthlyTarget must not be negative", nil)
		return
	}

	userID := middleware.UserID(r.Context())
	settings := user.Settings{
		MonthlyTarget: req.MonthlyTarget,
		TargetMode:    targetMode,
		WeeklySummary: req.WeeklySummary,
	}
	if err := h.profileService.SetSettings(r.Context(), userID, settings); err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, settings)
}
