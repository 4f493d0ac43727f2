package notification

import "errors"

var (
	ErrUnknownAction   = errors.New("unknown notification action")
	ErrInvalidCategory = errors.New("invalid notification category")
)
