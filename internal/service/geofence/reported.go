package geofence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hybridtrack/attendance-backend-go/internal/pkg/geo"
)

// ErrNoPosition is returned when no recent position has been reported
// for the user.
var ErrNoPosition = errors.New("no recent position reported")

// positionTTL is how long a reported position stays usable. Stale fixes
// must not trigger an office match hours after the device moved on.
const positionTTL = 2 * time.Minute

type reportedFix struct {
	point geo.Point
	at    time.Time
}

// ReportedPositions is a LocationProvider fed by the devices themselves:
// a check-in request carries the current coordinates, and the reconciler
// reads the most recent fix.
type ReportedPositions struct {
	mu    sync.Mutex
	now   func() time.Time
	fixes map[string]reportedFix
}

func NewReportedPositions() *ReportedPositions {
	return &ReportedPositions{
		now:   time.Now,
		fixes: make(map[string]reportedFix),
	}
}

// Report stores the device's current position for the user.
func (p *ReportedPositions) Report(userID string, pt geo.Point) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fixes[userID] = reportedFix{point: pt, at: p.now()}
}

// Current implements LocationProvider.
func (p *ReportedPositions) Current(ctx context.Context, userID string) (geo.Point, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fix, ok := p.fixes[userID]
	if !ok || p.now().Sub(fix.at) > positionTTL {
		return geo.Point{}, ErrNoPosition
	}
	return fix.point, nil
}

var _ LocationProvider = (*ReportedPositions)(nil)
