package user

import "errors"

var (
	ErrInvalidTrackingMode = errors.New("tracking mode must be manual or auto")
	ErrInvalidTargetMode   = errors.New("target mode must be days or percent")
	ErrProfileNotFound     = errors.New("profile not found")
	ErrMissingLocation     = errors.New("auto mode requires a company location")
)
