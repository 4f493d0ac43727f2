package response

import (
	"errors"
	"net/http"

	"github.com/hybridtrack/attendance-backend-go/internal/domain/attendance"
	"github.com/hybridtrack/attendance-backend-go/internal/domain/notification"
	"github.com/hybridtrack/attendance-backend-go/internal/domain/user"
)

// HandleError maps domain errors onto HTTP responses.
func HandleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, attendance.ErrNotFound),
		errors.Is(err, user.ErrProfileNotFound):
		NotFound(w, err.Error())
	case errors.Is(err, attendance.ErrInvalidStatus),
		errors.Is(err, attendance.ErrInvalidDate),
		errors.Is(err, attendance.ErrInvalidIntent),
		errors.Is(err, user.ErrInvalidTrackingMode),
		errors.Is(err, user.ErrInvalidTargetMode),
		errors.Is(err, user.ErrMissingLocation),
		errors.Is(err, notification.ErrUnknownAction):
		BadRequest(w, err.Error(), nil)
	default:
		InternalServerError(w, "Something went wrong")
	}
}
