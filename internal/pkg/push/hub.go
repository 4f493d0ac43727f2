package push

import (
	"sync"
	"time"

	"github.com/hybridtrack/attendance-backend-go/internal/domain/notification"
)

// Hub fans delivered notifications out to a user's connected devices.
// Devices hold an SSE stream open against the API; server-side jobs and
// the geofence reconciler publish into the hub.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan notification.Push]struct{}
}

// NewHub creates an empty push hub.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[chan notification.Push]struct{}),
	}
}

// Subscribe registers a device stream for a user. The cleanup function
// must be called when the stream closes; calling it twice is a no-op.
func (h *Hub) Subscribe(userID string) (chan notification.Push, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan notification.Push, 10)
	if h.subscribers[userID] == nil {
		h.subscribers[userID] = make(map[chan notification.Push]struct{})
	}
	h.subscribers[userID][ch] = struct{}{}

	cleanup := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subscribers[userID][ch]; !ok {
			return
		}
		delete(h.subscribers[userID], ch)
		close(ch)
		if len(h.subscribers[userID]) == 0 {
			delete(h.subscribers, userID)
		}
	}

	return ch, cleanup
}

// Publish delivers a push to every connected device of the user. Users
// with no connected devices drop the push; there is no store-and-forward
// at this layer.
func (h *Hub) Publish(p notification.Push) {
	if p.SentAt.IsZero() {
		p.SentAt = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subscribers[p.UserID] {
		select {
		case ch <- p:
		default:
			// Slow device stream; drop rather than block the publisher.
		}
	}
}

// SubscriberCount reports how many device streams a user has open.
func (h *Hub) SubscriberCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[userID])
}
