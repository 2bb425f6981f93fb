package cursor

import (
	"math"
	"sync"
	"time"
)

const (
	sendInterval = 16 * time.Millisecond
	sendDistance = 2.0
)

// Throttle gates outbound pointer broadcasts: at most one per 16 ms, and
// only after the pointer moved at least two pixels on either axis since the
// last send. The first position always passes.
type Throttle struct {
	mu       sync.Mutex
	sent     bool
	lastSend time.Time
	lastX    float64
	lastY    float64
}

func NewThrottle() *Throttle {
	return &Throttle{}
}

// Allows reports whether a pointer at (x, y) observed at now is worth
// broadcasting. It does not consume the window; call Record once the frame
// actually made it onto the wire, so a failed write does not silently eat
// the position.
func (t *Throttle) Allows(x, y float64, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.sent {
		return true
	}

	if now.Sub(t.lastSend) < sendInterval {
		return false
	}

	return math.Abs(x-t.lastX) >= sendDistance || math.Abs(y-t.lastY) >= sendDistance
}

// Record marks (x, y) as successfully broadcast at now.
func (t *Throttle) Record(x, y float64, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sent = true
	t.lastSend = now
	t.lastX = x
	t.lastY = y
}

// Reset forgets the send history, e.g. across reconnects.
func (t *Throttle) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sent = false
}
