package holiday

import "github.com/hybridtrack/attendance-backend-go/internal/domain/holiday"

// staticFallback bundles well-known public holidays for the countries the
// app ships suggestion lists for. Served when neither the cache nor the
// API can produce data; not exhaustive, and regional holidays are
// deliberately absent.
var staticFallback = map[string]map[string]string{
	holiday.Key("AU", 2025): {
		"2025-01-01": "New Year's Day",
		"2025-01-27": "Australia Day (observed)",
		"2025-04-18": "Good Friday",
		"2025-04-21": "Easter Monday",
		"2025-04-25": "Anzac Day",
		"2025-06-09": "King's Birthday",
		"2025-12-25": "Christmas Day",
		"2025-12-26": "Boxing Day",
	},
	holiday.Key("AU", 2026): {
		"2026-01-01": "New Year's Day",
		"2026-01-26": "Australia Day",
		"2026-04-03": "Good Friday",
		"2026-04-06": "Easter Monday",
		"2026-04-25": "Anzac Day",
		"2026-06-08": "King's Birthday",
		"2026-12-25": "Christmas Day",
		"2026-12-28": "Boxing Day (observed)",
	},
	holiday.Key("IN", 2025): {
		"2025-01-26": "Republic Day",
		"2025-08-15": "Independence Day",
		"2025-10-02": "Gandhi Jayanti",
		"2025-12-25": "Christmas Day",
	},
	holiday.Key("IN", 2026): {
		"2026-01-26": "Republic Day",
		"2026-08-15": "Independence Day",
		"2026-10-02": "Gandhi Jayanti",
		"2026-12-25": "Christmas Day",
	},
	holiday.Key("US", 2025): {
		"2025-01-01": "New Year's Day",
		"2025-07-04": "Independence Day",
		"2025-11-27": "Thanksgiving Day",
		"2025-12-25": "Christmas Day",
	},
	holiday.Key("US", 2026): {
		"2026-01-01": "New Year's Day",
		"2026-07-03": "Independence Day (observed)",
		"2026-11-26": "Thanksgiving Day",
		"2026-12-25": "Christmas Day",
	},
	holiday.Key("GB", 2025): {
		"2025-01-01": "New Year's Day",
		"2025-04-18": "Good Friday",
		"2025-04-21": "Easter Monday",
		"2025-12-25": "Christmas Day",
		"2025-12-26": "Boxing Day",
	},
	holiday.Key("SG", 2025): {
		"2025-01-01": "New Year's Day",
		"2025-08-09": "National Day",
		"2025-12-25": "Christmas Day",
	},
}

// StaticFallback returns a copy of the bundled holiday table for a
// (country, year), or an empty map when none is bundled.
func StaticFallback(countryCode string, year int) map[string]string {
	src, ok := staticFallback[holiday.Key(countryCode, year)]
	out := make(map[string]string, len(src))
	if !ok {
		return out
	}
	for k, v := range src {
		out[k] = v
	}
	return out
}
