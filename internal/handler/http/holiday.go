package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hybridtrack/attendance-backend-go/internal/domain/holiday"
	"github.com/hybridtrack/attendance-backend-go/internal/handler/http/middleware"
	"github.com/hybridtrack/attendance-backend-go/internal/handler/http/response"
)

type HolidayHandler interface {
	List(w http.ResponseWriter, r *http.Request)
	Refresh(w http.ResponseWriter, r *http.Request)
}

// HolidayService serves cached holiday maps and forces refreshes.
type HolidayService interface {
	Get(ctx context.Context, userID, countryCode string, year int) map[string]string
	Refresh(ctx context.Context, userID, countryCode string, year int) (map[string]string, error)
}

type holidayHandlerImpl struct {
	holidayService HolidayService
}

func NewHolidayHandler(holidayService HolidayService) HolidayHandler {
	return &holidayHandlerImpl{
		holidayService: holidayService,
	}
}

func holidayParams(r *http.Request) (string, int, bool) {
	country := strings.ToUpper(chi.URLParam(r, "country"))
	if len(country) != 2 {
		return "", 0, false
	}
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil || year < 2000 || year > 2100 {
		return "", 0, false
	}
	return country, year, true
}

// List implements HolidayHandler. The response is served from cache;
// stale entries trigger a background refresh but are still returned.
func (h *holidayHandlerImpl) List(w http.ResponseWriter, r *http.Request) {
	country, year, ok := holidayParams(r)
	if !ok {
		response.BadRequest(w, "Country must be ISO-3166 alpha-2 and year a 4-digit number", nil)
		return
	}

	userID := middleware.UserID(r.Context())
	holidays := h.holidayService.Get(r.Context(), userID, country, year)
	response.Success(w, holidays)
}

// Refresh implements HolidayHandler. It fetches synchronously, bypassing
// the staleness check.
func (h *holidayHandlerImpl) Refresh(w http.ResponseWriter, r *http.Request) {
	country, year, ok := holidayParams(r)
	if !ok {
		response.BadRequest(w, "Country must be ISO-3166 alpha-2 and year a 4-digit number", nil)
		return
	}

	userID := middleware.UserID(r.Context())
	holidays, err := h.holidayService.Refresh(r.Context(), userID, country, year)
	if err != nil {
		if errors.Is(err, holiday.ErrNoData) {
			response.NotFound(w, err.Error())
			return
		}
		response.InternalServerError(w, "Holiday refresh failed")
		return
	}

	response.Success(w, holidays)
}
