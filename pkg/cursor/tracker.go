// Package cursor tracks remote pointer positions for a collaboration room.
// Incoming updates move a cursor's target; a spring integrator eases the
// rendered position toward it so remote pointers glide instead of teleport.
package cursor

import (
	"math"
	"sync"
	"time"

	"inkwell/collab/pkg/protocol"
)

const (
	stiffness = 400.0
	damping   = 30.0
	stepDT    = 1.0 / 60

	// Below these the spring is considered settled and snaps to target.
	settleDistance = 0.3
	settleVelocity = 1.0

	// Above these the animation loop keeps running.
	activeDistance = 0.3
	activeVelocity = 0.1

	frameInterval = 16 * time.Millisecond

	// StaleAfter is how long a cursor survives without an update before the
	// sweep drops it.
	StaleAfter = 10 * time.Second
)

// Cursor is one remote participant's pointer. X/Y is the authoritative
// target from the wire; RenderedX/Y is the interpolated position overlays
// should draw.
type Cursor struct {
	UserID     string
	UserName   string
	Color      string
	X          float64
	Y          float64
	RenderedX  float64
	RenderedY  float64
	VelocityX  float64
	VelocityY  float64
	LastUpdate time.Time
}

// Tracker holds every remote cursor and owns the animation loop that eases
// them toward their targets. onFrame fires after every animation step, with
// no tracker lock held, so the owner can republish state; reading back into
// the tracker (Snapshot and friends) is fine, mutating it from onFrame is
// not.
type Tracker struct {
	mu        sync.Mutex
	cursors   map[string]*Cursor
	animating bool
	closed    bool
	onFrame   func()
	now       func() time.Time
}

func NewTracker(onFrame func()) *Tracker {
	return &Tracker{
		cursors: make(map[string]*Cursor),
		onFrame: onFrame,
		now:     time.Now,
	}
}

// ApplyUpdate moves a remote cursor's target. A first sighting seeds the
// rendered position at the target itself so the cursor appears in place
// instead of sliding in from the origin; later updates keep the in-flight
// interpolation state and only retarget it.
func (t *Tracker) ApplyUpdate(m protocol.CursorUpdate) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}

	color := m.Color
	if color == "" {
		color = ColorFor(m.UserID)
	}

	c, ok := t.cursors[m.UserID]
	if !ok {
		t.cursors[m.UserID] = &Cursor{
			UserID:     m.UserID,
			UserName:   m.UserName,
			Color:      color,
			X:          m.X,
			Y:          m.Y,
			RenderedX:  m.X,
			RenderedY:  m.Y,
			LastUpdate: t.now(),
		}
		return
	}

	c.X = m.X
	c.Y = m.Y
	c.UserName = m.UserName
	c.Color = color
	c.LastUpdate = t.now()

	// Animating is pointless with no frame listener; tests drive Step
	// directly instead.
	if t.onFrame != nil && !t.animating && c.active() {
		t.animating = true
		go t.animate()
	}
}

// Remove drops a cursor immediately, ahead of the staleness sweep. Used when
// a peer leaves the room explicitly.
func (t *Tracker) Remove(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.cursors[userID]; !ok {
		return false
	}

	delete(t.cursors, userID)
	return true
}

// Sweep drops every cursor whose last update is older than maxAge and
// reports how many went away.
func (t *Tracker) Sweep(now time.Time, maxAge time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for id, c := range t.cursors {
		if now.Sub(c.LastUpdate) > maxAge {
			delete(t.cursors, id)
			removed++
		}
	}

	return removed
}

// Snapshot copies the current cursor set for rendering.
func (t *Tracker) Snapshot() []Cursor {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Cursor, 0, len(t.cursors))
	for _, c := range t.cursors {
		out = append(out, *c)
	}

	return out
}

// Clear empties the tracker without stopping it, e.g. on disconnect.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cursors = make(map[string]*Cursor)
}

// Close stops the animation loop for good. The tracker must not be reused.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	t.cursors = make(map[string]*Cursor)
}

// Step advances every spring by one fixed timestep and reports whether any
// cursor still needs animating. Exposed so tests can drive the integrator
// without real time.
func (t *Tracker) Step() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.step()
}

func (t *Tracker) step() bool {
	if t.closed {
		return false
	}

	busy := false
	for _, c := range t.cursors {
		c.RenderedX, c.VelocityX = stepAxis(c.RenderedX, c.X, c.VelocityX)
		c.RenderedY, c.VelocityY = stepAxis(c.RenderedY, c.Y, c.VelocityY)

		if c.settled() {
			// Snap exactly to target, otherwise the spring hunts around the
			// settle threshold forever.
			c.RenderedX, c.RenderedY = c.X, c.Y
			c.VelocityX, c.VelocityY = 0, 0
			continue
		}

		if c.active() {
			busy = true
		}
	}

	return busy
}

func (t *Tracker) animate() {
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	for range ticker.C {
		busy := t.Step()
		t.onFrame()

		if busy {
			continue
		}

		// A retarget may have landed after the step; only park the loop if
		// nothing needs it anymore.
		t.mu.Lock()
		for _, c := range t.cursors {
			if c.active() {
				busy = true
				break
			}
		}

		if !busy {
			t.animating = false
		}
		t.mu.Unlock()

		if !busy {
			return
		}
	}
}

func stepAxis(rendered, target, velocity float64) (float64, float64) {
	accel := -stiffness*(rendered-target) - damping*velocity
	velocity += accel * stepDT
	rendered += velocity * stepDT

	return rendered, velocity
}

func (c *Cursor) settled() bool {
	return math.Abs(c.RenderedX-c.X) < settleDistance &&
		math.Abs(c.RenderedY-c.Y) < settleDistance &&
		math.Abs(c.VelocityX) < settleVelocity &&
		math.Abs(c.VelocityY) < settleVelocity
}

func (c *Cursor) active() bool {
	return math.Abs(c.RenderedX-c.X) > activeDistance ||
		math.Abs(c.RenderedY-c.Y) > activeDistance ||
		math.Abs(c.VelocityX) > activeVelocity ||
		math.Abs(c.VelocityY) > activeVelocity
}
