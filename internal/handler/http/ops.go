package http

import (
	"context"
	"net/http"

	"github.com/hybridtrack/attendance-backend-go/internal/handler/http/middleware"
	"github.com/hybridtrack/attendance-backend-go/internal/handler/http/response"
)

type OpsHandler interface {
	ReminderEligibility(w http.ResponseWriter, r *http.Request)
	SyncStatus(w http.ResponseWriter, r *http.Request)
}

// EligibilityChecker evaluates the reminder predicate for one user.
type EligibilityChecker interface {
	EligibleForManualReminder(ctx context.Context, userID string) (bool, string, error)
}

// SyncQueue exposes the pending-mutation backlog.
type SyncQueue interface {
	QueueLength() int
}

type opsHandlerImpl struct {
	eligibility EligibilityChecker
	queue       SyncQueue
}

func NewOpsHandler(eligibility EligibilityChecker, queue SyncQueue) OpsHandler {
	return &opsHandlerImpl{
		eligibility: eligibility,
		queue:       queue,
	}
}

type eligibilityResponse struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
}

// ReminderEligibility implements OpsHandler. Diagnostic endpoint: would a
// manual reminder fire for this user right now, and if not, why not.
func (h *opsHandlerImpl) ReminderEligibility(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	eligible, reason, err := h.eligibility.EligibleForManualReminder(r.Context(), userID)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, eligibilityResponse{Eligible: eligible, Reason: reason})
}

// SyncStatus implements OpsHandler.
func (h *opsHandlerImpl) SyncStatus(w http.ResponseWriter, r *http.Request) {
	response.Success(w, map[string]int{"queuedMutations": h.queue.QueueLength()})
}
