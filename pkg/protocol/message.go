// Package protocol defines the wire messages exchanged through a collaboration
// room and their binary codec. Every frame is a MessagePack map carrying a
// "type" discriminator plus the fields of its kind; the Go side models that as
// a tagged union under the Message interface.
package protocol

import (
	"inkwell/collab/pkg/scene"
)

type Type string

const (
	TypeInit            Type = "init"
	TypeCanvasUpdate    Type = "canvas-update"
	TypeCursorUpdate    Type = "cursor-update"
	TypeSelectionUpdate Type = "selection-update"
	TypeUserJoined      Type = "user-joined"
	TypeUserLeft        Type = "user-left"
)

// Message is implemented by every wire message kind.
type Message interface {
	Kind() Type
}

// Init seeds a joining client with the room's current canvas and member
// count. Sent once by the relay immediately after the socket opens.
type Init struct {
	Type        Type      `msgpack:"type"`
	State       InitState `msgpack:"state"`
	ActiveUsers int       `msgpack:"activeUsers"`
}

type InitState struct {
	Elements []scene.Element `msgpack:"elements"`
}

// CanvasUpdate broadcasts a full element snapshot. Seq is the sender's own
// broadcast counter, echoed back by the relay so the sender can recognize
// and drop its own update on the return trip.
type CanvasUpdate struct {
	Type     Type                   `msgpack:"type"`
	Elements []scene.Element        `msgpack:"elements"`
	AppState scene.AppState         `msgpack:"appState"`
	Files    map[string]interface{} `msgpack:"files,omitempty"`
	Seq      uint64                 `msgpack:"seq"`
}

// CursorUpdate reports a participant's pointer position.
type CursorUpdate struct {
	Type     Type    `msgpack:"type"`
	UserID   string  `msgpack:"userId"`
	UserName string  `msgpack:"userName"`
	X        float64 `msgpack:"x"`
	Y        float64 `msgpack:"y"`
	Color    string  `msgpack:"color"`
}

// SelectionUpdate replaces a participant's entire selected-element set. An
// empty set means the participant deselected everything.
type SelectionUpdate struct {
	Type               Type     `msgpack:"type"`
	UserID             string   `msgpack:"userId"`
	UserName           string   `msgpack:"userName"`
	Color              string   `msgpack:"color"`
	SelectedElementIDs []string `msgpack:"selectedElementIds"`
}

type UserJoined struct {
	Type        Type `msgpack:"type"`
	ActiveUsers int  `msgpack:"activeUsers"`
}

type UserLeft struct {
	Type        Type `msgpack:"type"`
	ActiveUsers int  `msgpack:"activeUsers"`
}

func (Init) Kind() Type            { return TypeInit }
func (CanvasUpdate) Kind() Type    { return TypeCanvasUpdate }
func (CursorUpdate) Kind() Type    { return TypeCursorUpdate }
func (SelectionUpdate) Kind() Type { return TypeSelectionUpdate }
func (UserJoined) Kind() Type      { return TypeUserJoined }
func (UserLeft) Kind() Type        { return TypeUserLeft }
