package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hybridtrack/attendance-backend-go/internal/domain/attendance"
	"github.com/hybridtrack/attendance-backend-go/internal/domain/notification"
	"github.com/hybridtrack/attendance-backend-go/internal/domain/user"
	"github.com/hybridtrack/attendance-backend-go/internal/handler/http/middleware"
	"github.com/hybridtrack/attendance-backend-go/internal/handler/http/response"
)

type NotificationHandler interface {
	Stream(w http.ResponseWriter, r *http.Request)
	Scheduled(w http.ResponseWriter, r *http.Request)
	Respond(w http.ResponseWriter, r *http.Request)
}

// PushHub fans delivered notifications out to a user's open streams.
type PushHub interface {
	Subscribe(userID string) (chan notification.Push, func())
	SubscriberCount(userID string) int
}

// RealtimeFeed tracks which users need live remote-change delivery.
type RealtimeFeed interface {
	Subscribe(ctx context.Context, userID string) error
	Unsubscribe(userID string)
}

// ReminderSchedule exposes the scheduler's pending set and per-day
// cancellation.
type ReminderSchedule interface {
	Scheduled(userID string) []notification.Spec
	OnAttendanceMarked(userID, date string)
}

// IntentStore is the mutation slice notification responses need.
type IntentStore interface {
	Mark(ctx context.Context, userID, date string, status attendance.Status) error
	Profile(ctx context.Context, userID string) (user.Profile, error)
	SetProfile(ctx context.Context, userID string, p user.Profile) error
}

type notificationHandlerImpl struct {
	hub          PushHub
	feed         RealtimeFeed
	schedule     ReminderSchedule
	store        IntentStore
	checker      GeofenceChecker
	modeObserver ModeObserver
}

func NewNotificationHandler(hub PushHub, feed RealtimeFeed, schedule ReminderSchedule, store IntentStore, checker GeofenceChecker, modeObserver ModeObserver) NotificationHandler {
	return &notificationHandlerImpl{
		hub:          hub,
		feed:         feed,
		schedule:     schedule,
		store:        store,
		checker:      checker,
		modeObserver: modeObserver,
	}
}

// Stream implements NotificationHandler. While at least one stream is
// open for a user, the sync engine keeps a realtime subscription to their
// remote document.
func (h *notificationHandlerImpl) Stream(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	events, cleanup := h.hub.Subscribe(userID)
	defer cleanup()

	if err := h.feed.Subscribe(context.Background(), userID); err != nil {
		slog.Warn("Realtime subscribe failed, stream continues without remote feed",
			"user_id", userID, "error", err)
	}
	defer func() {
		if h.hub.SubscriberCount(userID) == 0 {
			h.feed.Unsubscribe(userID)
		}
	}()

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\"}\n\n")
	flusher.Flush()

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case push, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(push)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", push.Category, data)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

// Scheduled implements NotificationHandler.
func (h *notificationHandlerImpl) Scheduled(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	response.Success(w, h.schedule.Scheduled(userID))
}

type respondRequest struct {
	Action string `json:"action"`
	Date   string `json:"date,omitempty"`
	Status string `json:"status,omitempty"`
}

// parseIntent maps the wire action onto the closed intent set.
func parseIntent(req respondRequest) (notification.UserIntent, error) {
	switch req.Action {
	case "confirm_status":
		if !dateRe.MatchString(req.Date) {
			return nil, attendance.ErrInvalidDate
		}
		status, err := attendance.ParseStatus(req.Status)
		if err != nil {
			return nil, err
		}
		return notification.ConfirmStatus{Date: req.Date, Status: status}, nil
	case "enable_location":
		return notification.EnableLocation{}, nil
	case "check_location_now":
		return notification.CheckLocationNow{}, nil
	case "dismiss_day":
		if !dateRe.MatchString(req.Date) {
			return nil, attendance.ErrInvalidDate
		}
		return notification.DismissDay{Date: req.Date}, nil
	default:
		return nil, notification.ErrUnknownAction
	}
}

// Respond implements NotificationHandler. It dispatches the action a user
// took on a delivered notification.
func (h *notificationHandlerImpl) Respond(w http.ResponseWriter, r *http.Request) {
	var req respondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request format", nil)
		return
	}

	intent, err := parseIntent(req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	userID := middleware.UserID(r.Context())
	if err := h.dispatch(r.Context(), userID, intent); err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Action applied", nil)
}

func (h *notificationHandlerImpl) dispatch(ctx context.Context, userID string, intent notification.UserIntent) error {
	switch it := intent.(type) {
	case notification.ConfirmStatus:
		return h.store.Mark(ctx, userID, it.Date, it.Status)
	case notification.EnableLocation:
		profile, err := h.store.Profile(ctx, userID)
		if err != nil {
			return err
		}
		if profile.TrackingMode == user.ModeAuto {
			return nil
		}
		if profile.CompanyLocation == nil {
			return user.ErrMissingLocation
		}
		previous := profile.TrackingMode
		profile.TrackingMode = user.ModeAuto
		if err := h.store.SetProfile(ctx, userID, profile); err != nil {
			return err
		}
		return h.modeObserver.OnModeChange(ctx, userID, previous)
	case notification.CheckLocationNow:
		h.checker.CheckNow(ctx, userID)
		return nil
	case notification.DismissDay:
		h.schedule.OnAttendanceMarked(userID, it.Date)
		return nil
	default:
		return notification.ErrUnknownAction
	}
}
