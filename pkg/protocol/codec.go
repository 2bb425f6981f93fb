package protocol

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// MaxFrameSize is the largest wire frame either side of a room connection
// will read. Canvas snapshots carry whole scenes plus file payloads, so this
// is far above the websocket library's default; relay and client must agree
// or a big snapshot kills the socket on one end.
const MaxFrameSize = 1 << 22

// DecodeError reports a frame that could not be turned into a Message. The
// dispatch layer drops the frame and keeps the connection alive.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode: %v: %v", e.Reason, e.Err)
	}

	return fmt.Sprintf("decode: %v", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Encode serializes a message to its MessagePack wire form, stamping the
// type discriminator so callers never have to set it by hand.
func Encode(m Message) ([]byte, error) {
	switch v := m.(type) {
	case Init:
		v.Type = TypeInit
		return msgpack.Marshal(&v)
	case CanvasUpdate:
		v.Type = TypeCanvasUpdate
		return msgpack.Marshal(&v)
	case CursorUpdate:
		v.Type = TypeCursorUpdate
		return msgpack.Marshal(&v)
	case SelectionUpdate:
		v.Type = TypeSelectionUpdate
		return msgpack.Marshal(&v)
	case UserJoined:
		v.Type = TypeUserJoined
		return msgpack.Marshal(&v)
	case UserLeft:
		v.Type = TypeUserLeft
		return msgpack.Marshal(&v)
	default:
		return nil, fmt.Errorf("encode: unknown message %T", m)
	}
}

// Decode parses a wire frame back into its concrete message kind. Frames
// that are not MessagePack maps, or that carry an unknown type tag, yield a
// *DecodeError.
func Decode(b []byte) (Message, error) {
	var head struct {
		Type Type `msgpack:"type"`
	}

	if err := msgpack.Unmarshal(b, &head); err != nil {
		return nil, &DecodeError{Reason: "malformed frame", Err: err}
	}

	switch head.Type {
	case TypeInit:
		var m Init
		if err := unmarshal(b, &m); err != nil {
			return nil, err
		}
		return m, nil
	case TypeCanvasUpdate:
		var m CanvasUpdate
		if err := unmarshal(b, &m); err != nil {
			return nil, err
		}
		return m, nil
	case TypeCursorUpdate:
		var m CursorUpdate
		if err := unmarshal(b, &m); err != nil {
			return nil, err
		}
		return m, nil
	case TypeSelectionUpdate:
		var m SelectionUpdate
		if err := unmarshal(b, &m); err != nil {
			return nil, err
		}
		return m, nil
	case TypeUserJoined:
		var m UserJoined
		if err := unmarshal(b, &m); err != nil {
			return nil, err
		}
		return m, nil
	case TypeUserLeft:
		var m UserLeft
		if err := unmarshal(b, &m); err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, &DecodeError{Reason: fmt.Sprintf("unknown message type %q", head.Type)}
	}
}

func unmarshal(b []byte, m Message) error {
	if err := msgpack.Unmarshal(b, m); err != nil {
		return &DecodeError{Reason: fmt.Sprintf("bad %v frame", m.Kind()), Err: err}
	}

	return nil
}
