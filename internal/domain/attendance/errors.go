package attendance

import "errors"

// Attendance domain errors
var (
	ErrInvalidStatus = errors.New("invalid attendance status")
	ErrInvalidDate   = errors.New("invalid date, expected YYYY-MM-DD")
	ErrInvalidIntent = errors.New("planned day intent must be office or wfh")
	ErrNotFound      = errors.New("no attendance record for date")
	ErrUserNotFound  = errors.New("user not found")
)
