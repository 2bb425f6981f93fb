// Package collab is the composition root of the collaboration engine: it
// owns the room connection, routes decoded messages to the reconciliation,
// cursor and selection subsystems, and republishes one unified room-state
// notification per inbound message for the rendering layer.
package collab

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/exp/slog"

	"inkwell/collab/pkg/cursor"
	"inkwell/collab/pkg/protocol"
	"inkwell/collab/pkg/scene"
	"inkwell/collab/pkg/selection"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

const cleanupInterval = 5 * time.Second

// RoomState is the externally observable snapshot of a room. Consumers get
// a fresh copy on every notification and must treat it as read-only.
type RoomState struct {
	IsConnected bool
	ActiveUsers int
	Cursors     []cursor.Cursor
}

// StateListener receives room-state snapshots. Listeners run on the
// dispatching goroutine and should hand off heavy work.
type StateListener func(RoomState)

// Coordinator wires the connection, codec and subsystems together. One
// coordinator serves one room membership; reconnecting after a failure means
// calling Connect again (or building a fresh coordinator, there is no
// automatic retry).
type Coordinator struct {
	logger   *slog.Logger
	userID   string
	userName string
	events   Events

	conn          *Connection
	cursors       *cursor.Tracker
	locks         *selection.Locks
	pointerGate   *cursor.Throttle
	selectionGate *selection.Gate

	mu          sync.Mutex
	state       State
	activeUsers int
	handle      scene.Handle
	cleanupStop chan struct{}

	subMu   sync.Mutex
	subs    map[int]StateListener
	nextSub int
}

// NewCoordinator builds a coordinator for the local participant. The events
// callbacks are optional and fire after the coordinator's own bookkeeping.
func NewCoordinator(logger *slog.Logger, userID, userName string, events Events) *Coordinator {
	c := &Coordinator{
		logger:        logger.With(slog.String("user", userID)),
		userID:        userID,
		userName:      userName,
		events:        events,
		locks:         selection.NewLocks(),
		pointerGate:   cursor.NewThrottle(),
		selectionGate: selection.NewGate(),
		state:         StateDisconnected,
		activeUsers:   1,
		subs:          make(map[int]StateListener),
	}

	c.cursors = cursor.NewTracker(c.notify)
	c.conn = newConnection(c.logger, Events{
		OnConnected:    c.handleConnected,
		OnDisconnected: c.handleDisconnected,
		OnError:        c.handleError,
	}, c.dispatch)

	return c
}

// Connect joins a room and hands the coordinator the drawing surface to keep
// in sync. Rejected while a connection is already up.
func (c *Coordinator) Connect(ctx context.Context, endpoint, roomID string, handle scene.Handle) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return fmt.Errorf("connect: already %v", c.state)
	}

	c.state = StateConnecting
	c.handle = handle
	c.mu.Unlock()

	if err := c.conn.Connect(ctx, endpoint, roomID); err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.handle = nil
		c.mu.Unlock()

		return err
	}

	return nil
}

// Disconnect leaves the room and resets all derived state. The socket close
// itself tells the relay we left; no goodbye message goes out.
func (c *Coordinator) Disconnect() {
	c.conn.Disconnect()
}

// Close tears the coordinator down for good, including the cursor animation
// loop.
func (c *Coordinator) Close() {
	c.Disconnect()
	c.cursors.Close()
}

// State returns the current room snapshot.
func (c *Coordinator) State() RoomState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return RoomState{
		IsConnected: c.state == StateConnected,
		ActiveUsers: c.activeUsers,
		Cursors:     c.cursors.Snapshot(),
	}
}

// Subscribe registers a state listener and returns its cancel func.
func (c *Coordinator) Subscribe(fn StateListener) func() {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn

	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		delete(c.subs, id)
	}
}

// SendCursorUpdate broadcasts the local pointer position, throttled to one
// send per 16ms and suppressed entirely for sub-2px jitter.
func (c *Coordinator) SendCursorUpdate(x, y float64) error {
	if !c.conn.IsOpen() {
		return nil
	}

	now := time.Now()
	if !c.pointerGate.Allows(x, y, now) {
		return nil
	}

	b, err := protocol.Encode(protocol.CursorUpdate{
		UserID:   c.userID,
		UserName: c.userName,
		X:        x,
		Y:        y,
		Color:    cursor.ColorFor(c.userID),
	})
	if err != nil {
		return err
	}

	if err := c.conn.Send(b); err != nil {
		return err
	}

	c.pointerGate.Record(x, y, now)

	return nil
}

// SendSelectionUpdate broadcasts the local selected-id set, throttled to one
// send per 100ms and only when the set actually changed.
func (c *Coordinator) SendSelectionUpdate(selectedIDs []string) error {
	if !c.conn.IsOpen() {
		return nil
	}

	now := time.Now()
	if !c.selectionGate.Allows(selectedIDs, now) {
		return nil
	}

	b, err := protocol.Encode(protocol.SelectionUpdate{
		UserID:             c.userID,
		UserName:           c.userName,
		Color:              cursor.ColorFor(c.userID),
		SelectedElementIDs: selectedIDs,
	})
	if err != nil {
		return err
	}

	if err := c.conn.Send(b); err != nil {
		return err
	}

	c.selectionGate.Record(selectedIDs, now)

	return nil
}

// SendCanvasUpdate broadcasts a full canvas snapshot under a fresh sequence
// number so the return echo can be recognized and dropped.
func (c *Coordinator) SendCanvasUpdate(elements []scene.Element, appState scene.AppState, files map[string]interface{}) error {
	if !c.conn.IsOpen() {
		return fmt.Errorf("canvas update: not connected")
	}

	b, err := protocol.Encode(protocol.CanvasUpdate{
		Elements: elements,
		AppState: appState,
		Files:    files,
		Seq:      c.conn.NextSeq(),
	})
	if err != nil {
		return err
	}

	if err := c.conn.Send(b); err != nil {
		return err
	}

	c.conn.TouchSync()
	return nil
}

// BroadcastScene snapshots the attached drawing surface and broadcasts it.
// Hosts call this from their change hook; there is no polling loop here.
func (c *Coordinator) BroadcastScene() error {
	handle := c.sceneHandle()
	if handle == nil {
		return fmt.Errorf("broadcast: no scene attached")
	}

	return c.SendCanvasUpdate(handle.Elements(), handle.AppState(), nil)
}

// IsElementLocked reports which remote user, if any, currently has the
// element selected. Advisory only.
func (c *Coordinator) IsElementLocked(elementID string) *selection.LockInfo {
	return c.locks.Owner(elementID)
}

// LockedElementDetails resolves every advisory lock against the live scene
// for overlay rendering.
func (c *Coordinator) LockedElementDetails() []selection.LockedElement {
	handle := c.sceneHandle()
	if handle == nil {
		return nil
	}

	return c.locks.Overlays(handle.Elements())
}

// dispatch decodes one inbound frame, routes it, and emits exactly one
// state-change notification. Undecodable frames are dropped; they never tear
// the connection down.
func (c *Coordinator) dispatch(b []byte) {
	msg, err := protocol.Decode(b)
	if err != nil {
		var de *protocol.DecodeError
		if errors.As(err, &de) {
			c.logger.Warn("dropping bad frame", slog.String("reason", de.Reason))
			return
		}

		c.logger.Warn("dropping bad frame", slog.String("reason", err.Error()))
		return
	}

	switch m := msg.(type) {
	case protocol.Init:
		c.applyInit(m)
	case protocol.CanvasUpdate:
		c.applyCanvasUpdate(m)
	case protocol.CursorUpdate:
		c.cursors.ApplyUpdate(m)
	case protocol.SelectionUpdate:
		c.locks.Apply(m)
	case protocol.UserJoined:
		c.setActiveUsers(m.ActiveUsers)
	case protocol.UserLeft:
		c.setActiveUsers(m.ActiveUsers)
	}

	c.notify()
}

func (c *Coordinator) applyInit(m protocol.Init) {
	c.setActiveUsers(m.ActiveUsers)

	handle := c.sceneHandle()
	if handle == nil {
		return
	}

	handle.Update(m.State.Elements)
	c.conn.TouchSync()
}

func (c *Coordinator) applyCanvasUpdate(m protocol.CanvasUpdate) {
	if last := c.conn.LastSeq(); last > 0 && m.Seq == last {
		// Our own broadcast on the return trip; reconciling it against a
		// scene that may have moved on would overwrite newer local edits.
		return
	}

	handle := c.sceneHandle()
	if handle == nil {
		return
	}

	handle.Update(scene.Reconcile(handle.Elements(), m.Elements))
	c.conn.TouchSync()
}

func (c *Coordinator) setActiveUsers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n > 0 {
		c.activeUsers = n
	}
}

func (c *Coordinator) sceneHandle() scene.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.handle
}

func (c *Coordinator) handleConnected() {
	c.mu.Lock()
	c.state = StateConnected
	c.activeUsers = 1
	c.cleanupStop = make(chan struct{})
	go c.cleanupLoop(c.cleanupStop)
	c.mu.Unlock()

	c.notify()

	if c.events.OnConnected != nil {
		c.events.OnConnected()
	}
}

func (c *Coordinator) handleDisconnected() {
	c.mu.Lock()
	c.state = StateDisconnected
	c.activeUsers = 1
	c.handle = nil
	if c.cleanupStop != nil {
		close(c.cleanupStop)
		c.cleanupStop = nil
	}
	c.mu.Unlock()

	c.cursors.Clear()
	c.locks.Clear()
	c.pointerGate.Reset()
	c.selectionGate.Reset()

	c.notify()

	if c.events.OnDisconnected != nil {
		c.events.OnDisconnected()
	}
}

func (c *Coordinator) handleError(err error) {
	c.logger.Error("room connection error", err)

	if c.events.OnError != nil {
		c.events.OnError(err)
	}
}

func (c *Coordinator) cleanupLoop(stop chan struct{}) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if c.cursors.Sweep(time.Now(), cursor.StaleAfter) > 0 {
				c.notify()
			}
		}
	}
}

func (c *Coordinator) notify() {
	snap := c.State()

	c.subMu.Lock()
	listeners := make([]StateListener, 0, len(c.subs))
	for _, fn := range c.subs {
		listeners = append(listeners, fn)
	}
	c.subMu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}
