package cursor

import (
	"math"
	"testing"
	"time"

	"inkwell/collab/pkg/protocol"
)

func update(id string, x, y float64) protocol.CursorUpdate {
	return protocol.CursorUpdate{UserID: id, UserName: id, X: x, Y: y}
}

func find(t *testing.T, tr *Tracker, id string) Cursor {
	t.Helper()

	for _, c := range tr.Snapshot() {
		if c.UserID == id {
			return c
		}
	}

	t.Fatalf("cursor %v not tracked", id)
	return Cursor{}
}

func TestFirstSightingRendersInPlace(t *testing.T) {
	tr := NewTracker(nil)
	defer tr.Close()

	tr.ApplyUpdate(update("u1", 100, 100))

	c := find(t, tr, "u1")
	if c.RenderedX != 100 || c.RenderedY != 100 {
		t.Errorf("cursor popped in from (%v,%v), want (100,100)", c.RenderedX, c.RenderedY)
	}
}

func TestRetargetKeepsInterpolationState(t *testing.T) {
	tr := NewTracker(nil)
	defer tr.Close()

	tr.ApplyUpdate(update("u1", 0, 0))
	tr.ApplyUpdate(update("u1", 100, 0))

	for i := 0; i < 5; i++ {
		tr.Step()
	}

	mid := find(t, tr, "u1")
	if mid.RenderedX <= 0 || mid.RenderedX >= 100 {
		t.Fatalf("expected rendered position mid-flight, got %v", mid.RenderedX)
	}

	// Retargeting must not reset the rendered position or the velocity.
	tr.ApplyUpdate(update("u1", 200, 0))

	c := find(t, tr, "u1")
	if c.RenderedX != mid.RenderedX {
		t.Errorf("rendered position reset on retarget: %v != %v", c.RenderedX, mid.RenderedX)
	}

	if c.VelocityX == 0 {
		t.Error("velocity zeroed on retarget")
	}

	if c.X != 200 {
		t.Errorf("target not replaced: %v", c.X)
	}
}

func TestSpringSettlesWithoutOscillating(t *testing.T) {
	tr := NewTracker(nil)
	defer tr.Close()

	tr.ApplyUpdate(update("u1", 0, 0))
	tr.ApplyUpdate(update("u1", 500, -300))

	steps := 0
	for tr.Step() {
		steps++
		if steps > 1000 {
			t.Fatal("spring did not settle after 1000 steps")
		}
	}

	c := find(t, tr, "u1")
	if math.Abs(c.RenderedX-500) >= 0.3 || math.Abs(c.RenderedY+300) >= 0.3 {
		t.Errorf("did not converge: rendered (%v,%v)", c.RenderedX, c.RenderedY)
	}

	if c.VelocityX != 0 || c.VelocityY != 0 {
		t.Errorf("velocity not zeroed after settle: (%v,%v)", c.VelocityX, c.VelocityY)
	}

	if c.RenderedX != 500 || c.RenderedY != -300 {
		t.Errorf("did not snap exactly to target: (%v,%v)", c.RenderedX, c.RenderedY)
	}
}

func TestSweepDropsOnlyStaleCursors(t *testing.T) {
	tr := NewTracker(nil)
	defer tr.Close()

	now := time.Now()
	tr.now = func() time.Time { return now.Add(-11 * time.Second) }
	tr.ApplyUpdate(update("stale", 1, 1))

	tr.now = func() time.Time { return now.Add(-9 * time.Second) }
	tr.ApplyUpdate(update("fresh", 2, 2))

	if removed := tr.Sweep(now, StaleAfter); removed != 1 {
		t.Fatalf("expected 1 eviction, got %v", removed)
	}

	snap := tr.Snapshot()
	if len(snap) != 1 || snap[0].UserID != "fresh" {
		t.Errorf("wrong survivor set: %+v", snap)
	}
}

func TestRemoveReportsPresence(t *testing.T) {
	tr := NewTracker(nil)
	defer tr.Close()

	tr.ApplyUpdate(update("u1", 0, 0))

	if !tr.Remove("u1") {
		t.Error("removing a tracked cursor should report true")
	}

	if tr.Remove("u1") {
		t.Error("removing an absent cursor should report false")
	}
}

func TestThrottleCollapsesBursts(t *testing.T) {
	th := NewThrottle()
	now := time.Now()

	if !th.Allows(0, 0, now) {
		t.Fatal("first position must always send")
	}
	th.Record(0, 0, now)

	// Second update 10ms later is inside the window regardless of distance.
	if th.Allows(50, 50, now.Add(10*time.Millisecond)) {
		t.Error("send inside the 16ms window should be suppressed")
	}

	if !th.Allows(50, 50, now.Add(20*time.Millisecond)) {
		t.Error("send outside the window with real movement should pass")
	}
}

func TestThrottleIgnoresJitter(t *testing.T) {
	th := NewThrottle()
	now := time.Now()

	th.Record(100, 100, now)

	if th.Allows(101, 101.5, now.Add(30*time.Millisecond)) {
		t.Error("sub-2px jitter should not broadcast")
	}

	if !th.Allows(101, 103, now.Add(60*time.Millisecond)) {
		t.Error("2px movement on one axis is enough")
	}
}

func TestThrottleKeepsWindowOpenUntilRecorded(t *testing.T) {
	th := NewThrottle()
	now := time.Now()

	// A check that never turns into a write (e.g. the socket rejected the
	// frame) must not count as a send.
	if !th.Allows(0, 0, now) {
		t.Fatal("first position must always send")
	}

	if !th.Allows(0, 0, now.Add(time.Millisecond)) {
		t.Error("unrecorded check should leave the window open for a retry")
	}

	th.Record(0, 0, now.Add(time.Millisecond))

	if th.Allows(50, 50, now.Add(2*time.Millisecond)) {
		t.Error("recorded send should start the 16ms window")
	}
}

func TestColorForIsStableAndInPalette(t *testing.T) {
	c1 := ColorFor("u1")
	c2 := ColorFor("u1")
	if c1 != c2 {
		t.Errorf("color not deterministic: %v != %v", c1, c2)
	}

	found := false
	for _, p := range palette {
		if p == c1 {
			found = true
		}
	}

	if !found {
		t.Errorf("color %v outside the palette", c1)
	}
}
