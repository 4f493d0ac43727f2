package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"
	"github.com/hybridtrack/attendance-backend-go/internal/domain/attendance"
	"github.com/hybridtrack/attendance-backend-go/internal/handler/http/middleware"
	"github.com/hybridtrack/attendance-backend-go/internal/handler/http/response"
)

var (
	dateRe  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	monthRe = regexp.MustCompile(`^\d{4}-\d{2}$`)
)

type AttendanceHandler interface {
	Mark(w http.ResponseWriter, r *http.Request)
	Clear(w http.ResponseWriter, r *http.Request)
	Get(w http.ResponseWriter, r *http.Request)
	All(w http.ResponseWriter, r *http.Request)
	BulkMark(w http.ResponseWriter, r *http.Request)
	MonthSummary(w http.ResponseWriter, r *http.Request)
	WeekSummary(w http.ResponseWriter, r *http.Request)
	PlanDay(w http.ResponseWriter, r *http.Request)
	UnplanDay(w http.ResponseWriter, r *http.Request)
	PlannedDays(w http.ResponseWriter, r *http.Request)
}

// AttendanceService extends the store with the read-side aggregates the
// API exposes.
type AttendanceService interface {
	attendance.Store
	MonthSummary(ctx context.Context, userID, month string) (attendance.MonthSummary, error)
	WeekSummary(ctx context.Context, userID, weekStart string) (attendance.WeekSummary, error)
}

// ReminderReconciler re-derives the user's scheduled reminders after a
// mutation changes what should exist.
type ReminderReconciler interface {
	Reconcile(ctx context.Context, userID string) error
}

type attendanceHandlerImpl struct {
	attendanceService AttendanceService
	reminders         ReminderReconciler
}

func NewAttendanceHandler(attendanceService AttendanceService, reminders ReminderReconciler) AttendanceHandler {
	return &attendanceHandlerImpl{
		attendanceService: attendanceService,
		reminders:         reminders,
	}
}

func (h *attendanceHandlerImpl) reconcileReminders(ctx context.Context, userID string) {
	if err := h.reminders.Reconcile(ctx, userID); err != nil {
		slog.Warn("Reminder reconcile failed", "user_id", userID, "error", err)
	}
}

func dateParam(r *http.Request) (string, bool) {
	date := chi.URLParam(r, "date")
	return date, dateRe.MatchString(date)
}

type markRequest struct {
	Status string `json:"status"`
}

type bulkMarkRequest struct {
	Dates  []string `json:"dates"`
	Status string   `json:"status"`
}

type planDayRequest struct {
	Intent string `json:"intent"`
}

// Mark implements AttendanceHandler.
func (h *attendanceHandlerImpl) Mark(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(r)
	if !ok {
		response.BadRequest(w, "Date must be YYYY-MM-DD", nil)
		return
	}

	var req markRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request format", nil)
		return
	}
	status, err := attendance.ParseStatus(req.Status)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	userID := middleware.UserID(r.Context())
	if err := h.attendanceService.Mark(r.Context(), userID, date, status); err != nil {
		response.HandleError(w, err)
		return
	}

	h.reconcileReminders(r.Context(), userID)
	response.Success(w, attendance.Record{Date: date, Status: status})
}

// Clear implements AttendanceHandler.
func (h *attendanceHandlerImpl) Clear(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(r)
	if !ok {
		response.BadRequest(w, "Date must be YYYY-MM-DD", nil)
		return
	}

	userID := middleware.UserID(r.Context())
	if err := h.attendanceService.Clear(r.Context(), userID, date); err != nil {
		response.HandleError(w, err)
		return
	}

	h.reconcileReminders(r.Context(), userID)
	response.SuccessWithMessage(w, "Record cleared", nil)
}

// Get implements AttendanceHandler.
func (h *attendanceHandlerImpl) Get(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(r)
	if !ok {
		response.BadRequest(w, "Date must be YYYY-MM-DD", nil)
		return
	}

	userID := middleware.UserID(r.Context())
	status, err := h.attendanceService.Get(r.Context(), userID, date)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, attendance.Record{Date: date, Status: status})
}

// All implements AttendanceHandler.
func (h *attendanceHandlerImpl) All(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	records, err := h.attendanceService.All(r.Context(), userID)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, records)
}

// BulkMark implements AttendanceHandler.
func (h *attendanceHandlerImpl) BulkMark(w http.ResponseWriter, r *http.Request) {
	var req bulkMarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request format", nil)
		return
	}
	if len(req.Dates) == 0 {
		response.BadRequest(w, "At least one date is required", nil)
		return
	}
	for _, d := range req.Dates {
		if !dateRe.MatchString(d) {
			response.BadRequest(w, "Dates must be YYYY-MM-DD", nil)
			return
		}
	}
	status, err := attendance.ParseStatus(req.Status)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	userID := middleware.UserID(r.Context())
	if err := h.attendanceService.BulkMark(r.Context(), userID, req.Dates, status); err != nil {
		response.HandleError(w, err)
		return
	}

	h.reconcileReminders(r.Context(), userID)
	response.SuccessWithMessage(w, "Records marked", map[string]int{"count": len(req.Dates)})
}

// MonthSummary implements AttendanceHandler.
func (h *attendanceHandlerImpl) MonthSummary(w http.ResponseWriter, r *http.Request) {
	month := chi.URLParam(r, "month")
	if !monthRe.MatchString(month) {
		response.BadRequest(w, "Month must be YYYY-MM", nil)
		return
	}

	userID := middleware.UserID(r.Context())
	summary, err := h.attendanceService.MonthSummary(r.Context(), userID, month)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, summary)
}

// WeekSummary implements AttendanceHandler.
func (h *attendanceHandlerImpl) WeekSummary(w http.ResponseWriter, r *http.Request) {
	weekStart := chi.URLParam(r, "date")
	if !dateRe.MatchString(weekStart) {
		response.BadRequest(w, "Week start must be YYYY-MM-DD", nil)
		return
	}

	userID := middleware.UserID(r.Context())
	summary, err := h.attendanceService.WeekSummary(r.Context(), userID, weekStart)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, summary)
}

// PlanDay implements AttendanceHandler.
func (h *attendanceHandlerImpl) PlanDay(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(r)
	if !ok {
		response.BadRequest(w, "Date must be YYYY-MM-DD", nil)
		return
	}

	var req planDayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request format", nil)
		return
	}
	intent, err := attendance.ParseStatus(req.Intent)
	if err != nil {
		response.HandleError(w, attendance.ErrInvalidIntent)
		return
	}

	userID := middleware.UserID(r.Context())
	if err := h.attendanceService.PlanDay(r.Context(), userID, date, intent); err != nil {
		response.HandleError(w, err)
		return
	}

	h.reconcileReminders(r.Context(), userID)
	response.Success(w, attendance.PlannedDay{Date: date, Intent: intent})
}

// UnplanDay implements AttendanceHandler.
func (h *attendanceHandlerImpl) UnplanDay(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(r)
	if !ok {
		response.BadRequest(w, "Date must be YYYY-MM-DD", nil)
		return
	}

	userID := middleware.UserID(r.Context())
	if err := h.attendanceService.UnplanDay(r.Context(), userID, date); err != nil {
		response.HandleError(w, err)
		return
	}

	h.reconcileReminders(r.Context(), userID)
	response.SuccessWithMessage(w, "Planned day removed", nil)
}

// PlannedDays implements AttendanceHandler.
func (h *attendanceHandlerImpl) PlannedDays(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	planned, err := h.attendanceService.PlannedDays(r.Context(), userID)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, planned)
}
