package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hybridtrack/attendance-backend-go/internal/handler/http/middleware"
	"github.com/hybridtrack/attendance-backend-go/internal/handler/http/response"
	"github.com/hybridtrack/attendance-backend-go/internal/pkg/geo"
	"github.com/hybridtrack/attendance-backend-go/internal/service/geofence"
)

type LocationHandler interface {
	CheckIn(w http.ResponseWriter, r *http.Request)
}

// PositionSink receives device-reported coordinates.
type PositionSink interface {
	Report(userID string, pt geo.Point)
}

// GeofenceChecker runs the arrival state machine for a user.
type GeofenceChecker interface {
	CheckNow(ctx context.Context, userID string) geofence.Outcome
}

type locationHandlerImpl struct {
	positions PositionSink
	checker   GeofenceChecker
}

func NewLocationHandler(positions PositionSink, checker GeofenceChecker) LocationHandler {
	return &locationHandlerImpl{
		positions: positions,
		checker:   checker,
	}
}

type checkInRequest struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type checkInResponse struct {
	Outcome string `json:"outcome"`
}

func outcomeString(o geofence.Outcome) string {
	switch o {
	case geofence.OutcomeAlreadyLogged:
		return "already_logged"
	case geofence.OutcomeNoMatch:
		return "no_match"
	case geofence.OutcomeAutoLogged:
		return "auto_logged"
	case geofence.OutcomeFetchFailed:
		return "fetch_failed"
	default:
		return "skipped"
	}
}

// CheckIn implements LocationHandler. The device reports its current
// position and the geofence reconciler decides whether this counts as an
// office arrival.
func (h *locationHandlerImpl) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req checkInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request format", nil)
		return
	}
	if req.Lat < -90 || req.Lat > 90 || req.Lon < -180 || req.Lon > 180 {
		response.BadRequest(w, "Coordinates out of range", nil)
		return
	}

	userID := middleware.UserID(r.Context())
	h.positions.Report(userID, geo.Point{Lat: req.Lat, Lon: req.Lon})
	outcome := h.checker.CheckNow(r.Context(), userID)

	response.Success(w, checkInResponse{Outcome: outcomeString(outcome)})
}
