package holiday

import "errors"

var (
	ErrFetchFailed      = errors.New("holiday API fetch failed")
	ErrNoData           = errors.New("no holiday data for country/year")
	ErrUnexpectedStatus = errors.New("holiday API returned unexpected status")
)
