package router

import (
	"sync"
	"time"

	"github.com/crucible-ai/crucible/internal/types"
)

// dedupWindow rejects event ids republished within a fixed window, giving
// at-least-once delivery a cheap guard against accidental double publishes.
type dedupWindow struct {
	window time.Duration

	mu   sync.Mutex
	seen map[types.ID]time.Time
}

func newDedupWindow(window time.Duration) *dedupWindow {
	return &dedupWindow{
		window: window,
		seen:   make(map[types.ID]time.Time),
	}
}

// observe records an event id and reports whether it was already seen
// inside the window. Expired entries are pruned opportunistically.
func (d *dedupWindow) observe(id types.ID) bool {
	if d.window <= 0 {
		return false
	}
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if at, ok := d.seen[id]; ok && now.Sub(at) < d.window {
		return true
	}
	for seenID, at := range d.seen {
		if now.Sub(at) >= d.window {
			delete(d.seen, seenID)
		}
	}
	d.seen[id] = now
	return false
}
