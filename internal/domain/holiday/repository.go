package holiday

import "context"

// Fetcher retrieves the public-holiday list for a (country, year) from an
// external collaborator.
type Fetcher interface {
	Fetch(ctx context.Context, countryCode string, year int) ([]APIHoliday, error)
}

// Cache serves holiday data with a staleness policy and static fallback.
type Cache interface {
	// Get returns the date -> name map for a (country, year). Stale or
	// missing entries fall back to the bundled static table while a
	// background refresh is attempted; Get itself never fails.
	Get(ctx context.Context, userID, countryCode string, year int) map[string]string

	// Refresh fetches from the collaborator and atomically replaces the
	// cache entry on success. On failure the previous entry, stale or not,
	// is left untouched.
	Refresh(ctx context.Context, userID, countryCode string, year int) (map[string]string, error)

	// IsHoliday reports whether dateStr is a public holiday in the
	// (country, year) partition.
	IsHoliday(ctx context.Context, userID, dateStr, countryCode string, year int) bool
}
