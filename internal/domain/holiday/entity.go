package holiday

import (
	"fmt"
	"time"
)

// CacheEntry is one (country, year) partition of the holiday cache.
// Dates maps YYYY-MM-DD keys to holiday names.
type CacheEntry struct {
	CountryCode string            `json:"countryCode"`
	Year        int               `json:"year"`
	Dates       map[string]string `json:"dates"`
	LastUpdated time.Time         `json:"lastUpdated"`
}

// MaxAge is the freshness window. Entries older than this are served only
// as a rendering fallback while a refresh is attempted.
const MaxAge = 30 * 24 * time.Hour

// Fresh reports whether the entry is within the freshness window at now.
func (e CacheEntry) Fresh(now time.Time) bool {
	if e.LastUpdated.IsZero() {
		return false
	}
	return now.Sub(e.LastUpdated) < MaxAge
}

// Key builds the countryCode_year partition key used in the remote store.
func Key(countryCode string, year int) string {
	return fmt.Sprintf("%s_%d", countryCode, year)
}

// APIHoliday is the shape returned by the public-holiday collaborator.
// Only entries whose Types include "Public" are retained.
type APIHoliday struct {
	Date      string   `json:"date"`
	Name      string   `json:"name"`
	LocalName string   `json:"localName"`
	Types     []string `json:"types"`
}

// IsPublic reports whether the API entry is a public holiday.
func (h APIHoliday) IsPublic() bool {
	for _, t := range h.Types {
		if t == "Public" {
			return true
		}
	}
	return false
}
