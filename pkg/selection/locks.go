// Package selection tracks which elements each remote participant has
// selected. These are advisory locks: they drive warning overlays and
// nothing else, so two users editing the same element is still possible and
// resolved by canvas reconciliation.
package selection

import (
	"sync"

	"inkwell/collab/pkg/protocol"
	"inkwell/collab/pkg/scene"
)

// LockInfo identifies the remote owner of one selected element.
type LockInfo struct {
	ElementID string
	UserID    string
	UserName  string
	Color     string
}

// LockedElement pairs a lock with the element's current bounds so the
// rendering layer can draw the overlay without touching the scene itself.
type LockedElement struct {
	LockInfo
	X      float64
	Y      float64
	Width  float64
	Height float64
}

type userSelection struct {
	userName string
	color    string
	ids      map[string]struct{}
}

// Locks is the per-room registry of remote selections.
type Locks struct {
	mu    sync.RWMutex
	users map[string]*userSelection
}

func NewLocks() *Locks {
	return &Locks{users: make(map[string]*userSelection)}
}

// Apply replaces a user's entire selection with the set in the update; the
// previous set is never patched incrementally. An empty set removes the user
// outright. Reports whether anything changed.
func (l *Locks) Apply(m protocol.SelectionUpdate) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(m.SelectedElementIDs) == 0 {
		if _, ok := l.users[m.UserID]; !ok {
			return false
		}

		delete(l.users, m.UserID)
		return true
	}

	ids := make(map[string]struct{}, len(m.SelectedElementIDs))
	for _, id := range m.SelectedElementIDs {
		ids[id] = struct{}{}
	}

	prev, ok := l.users[m.UserID]
	l.users[m.UserID] = &userSelection{
		userName: m.UserName,
		color:    m.Color,
		ids:      ids,
	}

	return !ok || !sameIDSet(prev.ids, ids)
}

// RemoveUser clears a disconnected user's selection.
func (l *Locks) RemoveUser(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.users[userID]; !ok {
		return false
	}

	delete(l.users, userID)
	return true
}

// Clear drops every lock, e.g. when the room connection goes away.
func (l *Locks) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.users = make(map[string]*userSelection)
}

// Owner returns who holds elementID, or nil when it is unlocked. Selection
// sets are tiny so the linear scan beats maintaining an inverted index.
func (l *Locks) Owner(elementID string) *LockInfo {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for userID, sel := range l.users {
		if _, ok := sel.ids[elementID]; ok {
			return &LockInfo{
				ElementID: elementID,
				UserID:    userID,
				UserName:  sel.userName,
				Color:     sel.color,
			}
		}
	}

	return nil
}

// Overlays cross-references every locked element against the live scene and
// returns the bounds to draw. Locks whose element no longer exists, or is
// marked deleted, are skipped silently.
func (l *Locks) Overlays(elements []scene.Element) []LockedElement {
	byID := make(map[string]scene.Element, len(elements))
	for _, el := range elements {
		byID[el.ID] = el
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []LockedElement
	for userID, sel := range l.users {
		for id := range sel.ids {
			el, ok := byID[id]
			if !ok || el.IsDeleted {
				continue
			}

			out = append(out, LockedElement{
				LockInfo: LockInfo{
					ElementID: id,
					UserID:    userID,
					UserName:  sel.userName,
					Color:     sel.color,
				},
				X:      el.X,
				Y:      el.Y,
				Width:  el.Width,
				Height: el.Height,
			})
		}
	}

	return out
}

func sameIDSet(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}

	for id := range a {
		if _, ok := b[id]; !ok {
			return false
		}
	}

	return true
}
