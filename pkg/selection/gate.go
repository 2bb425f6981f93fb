package selection

import (
	"sync"
	"time"
)

const minSendInterval = 100 * time.Millisecond

// Gate throttles outbound selection broadcasts: at most one per 100 ms and
// only when the selected-id set actually changed since the last send.
// Equality is by content, so reordering the same ids never rebroadcasts.
type Gate struct {
	mu       sync.Mutex
	sent     bool
	lastSend time.Time
	lastIDs  map[string]struct{}
}

func NewGate() *Gate {
	return &Gate{}
}

// Allows reports whether the selection observed at now is worth broadcasting.
// It does not consume the window; call Record once the frame actually made it
// onto the wire, so a failed write does not silently eat the selection.
func (g *Gate) Allows(ids []string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.sent {
		return true
	}

	if now.Sub(g.lastSend) < minSendInterval {
		return false
	}

	return !sameIDSet(idSet(ids), g.lastIDs)
}

// Record marks the selection as successfully broadcast at now.
func (g *Gate) Record(ids []string, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.sent = true
	g.lastSend = now
	g.lastIDs = idSet(ids)
}

func idSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}

	return set
}

// Reset forgets the send history, e.g. across reconnects.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.sent = false
	g.lastIDs = nil
}
