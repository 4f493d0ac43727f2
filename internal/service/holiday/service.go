package holiday

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hybridtrack/attendance-backend-go/internal/domain/holiday"
)

// CacheStore is where refreshed partitions land: the attendance store
// persists them to both the remote document and the local mirror, so
// holiday data survives fully offline afterwards.
type CacheStore interface {
	HolidayCache(ctx context.Context, userID, key string) (map[string]string, time.Time, bool)
	SetHolidayCache(ctx context.Context, userID, key string, dates map[string]string, at time.Time) error
}

// Service implements holiday.Cache with the 30-day staleness policy and
// the bundled static fallback.
type Service struct {
	store   CacheStore
	fetcher holiday.Fetcher
	now     func() time.Time

	// refreshing de-duplicates concurrent background refreshes per
	// partition key.
	mu         sync.Mutex
	refreshing map[string]bool
}

// NewService creates the holiday cache service.
func NewService(store CacheStore, fetcher holiday.Fetcher) *Service {
	return &Service{
		store:      store,
		fetcher:    fetcher,
		now:        time.Now,
		refreshing: make(map[string]bool),
	}
}

// SetNow overrides the clock (tests).
func (s *Service) SetNow(fn func() time.Time) { s.now = fn }

// Get implements holiday.Cache. Fresh cache hits return directly. Stale
// or missing entries kick off a background refresh and return the stale
// entry (if any) or the static fallback in the meantime; Get never fails.
func (s *Service) Get(ctx context.Context, userID, countryCode string, year int) map[string]string {
	key := holiday.Key(countryCode, year)

	dates, updatedAt, ok := s.store.HolidayCache(ctx, userID, key)
	entry := holiday.CacheEntry{CountryCode: countryCode, Year: year, Dates: dates, LastUpdated: updatedAt}
	if ok && entry.Fresh(s.now()) {
		return dates
	}

	s.refreshAsync(userID, countryCode, year)

	if ok && len(dates) > 0 {
		// Stale data beats no data while the refresh runs.
		return dates
	}
	return StaticFallback(countryCode, year)
}

// refreshAsync starts a background refresh unless one is already running
// for the partition.
func (s *Service) refreshAsync(userID, countryCode string, year int) {
	key := holiday.Key(countryCode, year)
	s.mu.Lock()
	if s.refreshing[key] {
		s.mu.Unlock()
		return
	}
	s.refreshing[key] = true
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.refreshing, key)
			s.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := s.Refresh(ctx, userID, countryCode, year); err != nil {
			slog.Warn("Background holiday refresh failed",
				"country", countryCode, "year", year, "error", err)
		}
	}()
}

// Refresh implements holiday.Cache. A successful fetch atomically
// replaces the cache entry and timestamp; failure leaves whatever was
// there untouched.
func (s *Service) Refresh(ctx context.Context, userID, countryCode string, year int) (map[string]string, error) {
	raw, err := s.fetcher.Fetch(ctx, countryCode, year)
	if err != nil {
		return nil, err
	}

	dates := make(map[string]string)
	for _, h := range raw {
		if !h.IsPublic() {
			continue
		}
		name := h.Name
		if name == "" {
			name = h.LocalName
		}
		dates[h.Date] = name
	}
	if len(dates) == 0 {
		return nil, holiday.ErrNoData
	}

	key := holiday.Key(countryCode, year)
	if err := s.store.SetHolidayCache(ctx, userID, key, dates, s.now()); err != nil {
		return nil, err
	}

	slog.Info("Holiday cache refreshed", "country", countryCode, "year", year, "holidays", len(dates))
	return dates, nil
}

// IsHoliday implements holiday.Cache.
func (s *Service) IsHoliday(ctx context.Context, userID, dateStr, countryCode string, year int) bool {
	dates := s.Get(ctx, userID, countryCode, year)
	_, ok := dates[dateStr]
	return ok
}

var _ holiday.Cache = (*Service)(nil)
