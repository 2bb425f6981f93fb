package collab

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/exp/slog"
	"nhooyr.io/websocket"

	"inkwell/collab/pkg/protocol"
)

// Events are the connection lifecycle callbacks. All fields are optional.
type Events struct {
	OnConnected    func()
	OnDisconnected func()
	OnError        func(error)
}

// Connection owns the single persistent socket to a room. It dials, pumps
// inbound frames to the dispatcher, and tracks the local broadcast sequence
// used for echo suppression. A closed connection can be dialed again; there
// is no automatic reconnect.
type Connection struct {
	logger  *slog.Logger
	events  Events
	onFrame func([]byte)

	mu       sync.Mutex
	ws       *websocket.Conn
	open     bool
	ctx      context.Context
	cancel   context.CancelFunc
	seq      uint64
	lastSync time.Time
}

func newConnection(logger *slog.Logger, events Events, onFrame func([]byte)) *Connection {
	return &Connection{
		logger:  logger,
		events:  events,
		onFrame: onFrame,
	}
}

// Connect dials {endpoint}/parties/main/{roomID} and starts the read loop.
// Connecting while already connected is a logged no-op.
func (c *Connection) Connect(ctx context.Context, endpoint, roomID string) error {
	c.mu.Lock()
	if c.open {
		c.mu.Unlock()
		c.logger.Warn("already connected, ignoring connect", slog.String("room", roomID))
		return nil
	}
	c.mu.Unlock()

	u := fmt.Sprintf("%v/parties/main/%v", strings.TrimSuffix(endpoint, "/"), roomID)

	ws, resp, err := websocket.Dial(ctx, u, nil)
	if resp != nil && resp.Body != nil {
		//goland:noinspection GoUnhandledErrorResult
		defer resp.Body.Close()
	}

	if err != nil {
		if c.events.OnError != nil {
			c.events.OnError(fmt.Errorf("room connection failed"))
		}

		return fmt.Errorf("dial %v: %w", u, err)
	}

	ws.SetReadLimit(protocol.MaxFrameSize)

	runCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.ws = ws
	c.open = true
	c.ctx = runCtx
	c.cancel = cancel
	c.lastSync = time.Now()
	c.mu.Unlock()

	go c.readLoop(runCtx, ws)

	if c.events.OnConnected != nil {
		c.events.OnConnected()
	}

	return nil
}

// Disconnect closes the socket and cancels the read loop. Safe to call when
// already disconnected.
func (c *Connection) Disconnect() {
	if !c.markClosed() {
		return
	}

	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()

	if ws != nil {
		_ = ws.Close(websocket.StatusNormalClosure, "leaving")
	}

	if c.events.OnDisconnected != nil {
		c.events.OnDisconnected()
	}
}

// Send writes one encoded frame. Frames are binary; the codec owns their
// shape.
func (c *Connection) Send(b []byte) error {
	c.mu.Lock()
	ws, ctx, open := c.ws, c.ctx, c.open
	c.mu.Unlock()

	if !open {
		return fmt.Errorf("send: not connected")
	}

	if err := ws.Write(ctx, websocket.MessageBinary, b); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	return nil
}

// IsOpen reports whether the socket is currently connected.
func (c *Connection) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.open
}

// NextSeq allocates the sequence number for the next locally-originated
// canvas broadcast.
func (c *Connection) NextSeq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	return c.seq
}

// LastSeq is the sequence of the most recent local canvas broadcast; a
// canvas-update carrying it back is our own echo.
func (c *Connection) LastSeq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.seq
}

// TouchSync records a successful canvas exchange.
func (c *Connection) TouchSync() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastSync = time.Now()
}

// LastSyncTime is when the canvas last went over the wire in either
// direction.
func (c *Connection) LastSyncTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lastSync
}

func (c *Connection) readLoop(ctx context.Context, ws *websocket.Conn) {
	for {
		_, b, err := ws.Read(ctx)
		if err != nil {
			if c.markClosed() {
				c.logger.Debug("socket closed", slog.String("reason", err.Error()))
				if c.events.OnDisconnected != nil {
					c.events.OnDisconnected()
				}
			}

			return
		}

		c.onFrame(b)
	}
}

// markClosed flips the connection to closed and reports whether this call
// did the flipping, so exactly one path emits the disconnect event.
func (c *Connection) markClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		return false
	}

	c.open = false
	c.cancel()

	return true
}
