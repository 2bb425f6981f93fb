package scene

// Element is a single drawable owned by the external drawing surface. The
// collaboration layer only reads the identity and versioning fields; every
// other attribute rides along opaquely in Attrs.
type Element struct {
	ID           string                 `msgpack:"id"`
	Version      int64                  `msgpack:"version"`
	VersionNonce int64                  `msgpack:"versionNonce"`
	IsDeleted    bool                   `msgpack:"isDeleted"`
	X            float64                `msgpack:"x"`
	Y            float64                `msgpack:"y"`
	Width        float64                `msgpack:"width"`
	Height       float64                `msgpack:"height"`
	Attrs        map[string]interface{} `msgpack:"attrs,omitempty"`
}

// AppState is the viewport snapshot broadcast alongside canvas updates.
type AppState struct {
	ScrollX float64 `msgpack:"scrollX"`
	ScrollY float64 `msgpack:"scrollY"`
	Zoom    float64 `msgpack:"zoom"`
	Width   float64 `msgpack:"width"`
	Height  float64 `msgpack:"height"`
}

// Handle is the surface the drawing layer hands to the collaboration
// coordinator. Elements returns the current scene, Update replaces it with
// a merged element list, AppState reports the viewport.
type Handle interface {
	Elements() []Element
	Update(elements []Element)
	AppState() AppState
}
