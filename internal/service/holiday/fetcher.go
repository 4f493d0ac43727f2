package holiday

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hybridtrack/attendance-backend-go/internal/domain/holiday"
)

// DefaultAPIBaseURL points at the Nager.Date public-holiday API.
const DefaultAPIBaseURL = "https://date.nager.at"

// HTTPFetcher calls the public-holiday API.
type HTTPFetcher struct {
	baseURL string
	client  *http.Client
}

// NewHTTPFetcher creates a fetcher against baseURL (empty for the
// default).
func NewHTTPFetcher(baseURL string) *HTTPFetcher {
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}
	return &HTTPFetcher{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Fetch implements holiday.Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, countryCode string, year int) ([]holiday.APIHoliday, error) {
	url := fmt.Sprintf("%s/api/v3/PublicHolidays/%d/%s", f.baseURL, year, countryCode)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", holiday.ErrFetchFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", holiday.ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", holiday.ErrUnexpectedStatus, resp.StatusCode)
	}

	var out []holiday.APIHoliday
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", holiday.ErrFetchFailed, err)
	}
	return out, nil
}
