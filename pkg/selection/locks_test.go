package selection

import (
	"testing"
	"time"

	"inkwell/collab/pkg/protocol"
	"inkwell/collab/pkg/scene"
)

func sel(userID string, ids ...string) protocol.SelectionUpdate {
	return protocol.SelectionUpdate{
		UserID:             userID,
		UserName:           userID,
		Color:              "#40c057",
		SelectedElementIDs: ids,
	}
}

func TestApplyReplacesWholesale(t *testing.T) {
	l := NewLocks()

	l.Apply(sel("u2", "e1", "e2"))
	l.Apply(sel("u2", "e3"))

	if l.Owner("e1") != nil || l.Owner("e2") != nil {
		t.Error("old selection should be gone after replacement")
	}

	owner := l.Owner("e3")
	if owner == nil || owner.UserID != "u2" {
		t.Errorf("expected u2 to hold e3, got %+v", owner)
	}
}

func TestEmptySelectionClearsUser(t *testing.T) {
	l := NewLocks()

	l.Apply(sel("u2", "e1", "e2"))
	if changed := l.Apply(sel("u2")); !changed {
		t.Error("clearing a selection is a change")
	}

	if l.Owner("e1") != nil {
		t.Error("e1 should be unlocked after deselect-all")
	}

	if changed := l.Apply(sel("u2")); changed {
		t.Error("clearing an absent selection is not a change")
	}
}

func TestApplyReportsNoChangeForSameSet(t *testing.T) {
	l := NewLocks()

	l.Apply(sel("u1", "e1", "e2"))
	if changed := l.Apply(sel("u1", "e2", "e1")); changed {
		t.Error("reordered but identical set should not count as a change")
	}
}

func TestRemoveUserReleasesLocks(t *testing.T) {
	l := NewLocks()

	l.Apply(sel("u1", "e1"))
	if !l.RemoveUser("u1") {
		t.Error("removing a known user should report true")
	}

	if l.Owner("e1") != nil {
		t.Error("lock should be released on disconnect")
	}
}

func TestOverlaysSkipMissingAndDeleted(t *testing.T) {
	l := NewLocks()
	l.Apply(sel("u1", "live", "gone", "dead"))

	elements := []scene.Element{
		{ID: "live", X: 5, Y: 6, Width: 70, Height: 80},
		{ID: "dead", IsDeleted: true},
	}

	overlays := l.Overlays(elements)
	if len(overlays) != 1 {
		t.Fatalf("expected 1 overlay, got %v", len(overlays))
	}

	ov := overlays[0]
	if ov.ElementID != "live" || ov.X != 5 || ov.Width != 70 {
		t.Errorf("overlay bounds wrong: %+v", ov)
	}
}

func TestGateThrottlesAndDeduplicates(t *testing.T) {
	g := NewGate()
	now := time.Now()

	if !g.Allows([]string{"e1"}, now) {
		t.Fatal("first selection must send")
	}
	g.Record([]string{"e1"}, now)

	if g.Allows([]string{"e1", "e2"}, now.Add(50*time.Millisecond)) {
		t.Error("send inside the 100ms window should be suppressed")
	}

	if g.Allows([]string{"e1"}, now.Add(150*time.Millisecond)) {
		t.Error("unchanged set should never rebroadcast")
	}

	if !g.Allows([]string{"e1", "e2"}, now.Add(200*time.Millisecond)) {
		t.Error("changed set outside the window should send")
	}
	g.Record([]string{"e1", "e2"}, now.Add(200*time.Millisecond))

	if g.Allows([]string{"e2", "e1"}, now.Add(400*time.Millisecond)) {
		t.Error("reordered ids are the same set and should not rebroadcast")
	}
}

func TestGateKeepsWindowOpenUntilRecorded(t *testing.T) {
	g := NewGate()
	now := time.Now()

	// A check that never turns into a write (e.g. the socket rejected the
	// frame) must not count as a send.
	if !g.Allows([]string{"e1"}, now) {
		t.Fatal("first selection must send")
	}

	if !g.Allows([]string{"e1"}, now.Add(time.Millisecond)) {
		t.Error("unrecorded check should leave the window open for a retry")
	}

	g.Record([]string{"e1"}, now.Add(time.Millisecond))

	if g.Allows([]string{"e2"}, now.Add(2*time.Millisecond)) {
		t.Error("recorded send should start the 100ms window")
	}
}
