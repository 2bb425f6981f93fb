package protocol

import (
	"errors"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"inkwell/collab/pkg/scene"
)

func TestCanvasUpdateRoundTrip(t *testing.T) {
	in := CanvasUpdate{
		Elements: []scene.Element{
			{ID: "a", Version: 3, VersionNonce: 17, X: 1.5, Y: -2, Width: 100, Height: 50},
			{ID: "b", Version: 1, IsDeleted: true},
		},
		AppState: scene.AppState{ScrollX: 10, ScrollY: 20, Zoom: 1.25},
		Seq:      42,
	}

	b, err := Encode(in)
	if err != nil {
		t.Fatal(err)
	}

	decoded, err := Decode(b)
	if err != nil {
		t.Fatal(err)
	}

	out, ok := decoded.(CanvasUpdate)
	if !ok {
		t.Fatalf("wrong kind: %T", decoded)
	}

	if out.Seq != 42 || len(out.Elements) != 2 {
		t.Errorf("lost fields: %+v", out)
	}

	if out.Elements[0].VersionNonce != 17 || !out.Elements[1].IsDeleted {
		t.Errorf("element fields mangled: %+v", out.Elements)
	}

	if out.AppState.Zoom != 1.25 {
		t.Errorf("app state mangled: %+v", out.AppState)
	}
}

func TestCursorAndSelectionRoundTrip(t *testing.T) {
	b, err := Encode(CursorUpdate{UserID: "u1", UserName: "ada", X: 100, Y: 200, Color: "#e64980"})
	if err != nil {
		t.Fatal(err)
	}

	m, err := Decode(b)
	if err != nil {
		t.Fatal(err)
	}

	cur := m.(CursorUpdate)
	if cur.UserID != "u1" || cur.X != 100 || cur.Color != "#e64980" {
		t.Errorf("cursor fields mangled: %+v", cur)
	}

	b, err = Encode(SelectionUpdate{UserID: "u2", SelectedElementIDs: []string{"e1", "e2"}})
	if err != nil {
		t.Fatal(err)
	}

	m, err = Decode(b)
	if err != nil {
		t.Fatal(err)
	}

	sel := m.(SelectionUpdate)
	if len(sel.SelectedElementIDs) != 2 || sel.SelectedElementIDs[1] != "e2" {
		t.Errorf("selection fields mangled: %+v", sel)
	}
}

func TestEncodeStampsType(t *testing.T) {
	// Callers build messages without the discriminator; the codec owns it.
	b, err := Encode(UserJoined{ActiveUsers: 3})
	if err != nil {
		t.Fatal(err)
	}

	m, err := Decode(b)
	if err != nil {
		t.Fatal(err)
	}

	if m.Kind() != TypeUserJoined {
		t.Errorf("expected user-joined, got %v", m.Kind())
	}

	if m.(UserJoined).ActiveUsers != 3 {
		t.Errorf("active users lost: %+v", m)
	}
}

func TestDecodeUnknownType(t *testing.T) {
	b, err := msgpack.Marshal(map[string]interface{}{"type": "time-travel"})
	if err != nil {
		t.Fatal(err)
	}

	_, err = Decode(b)

	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestDecodeGarbage(t *testing.T) {
	_, err := Decode([]byte{0xc1, 0xff, 0x00})

	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}
