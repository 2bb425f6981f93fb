package cursor

import "hash/fnv"

// palette is the fixed set of cursor colors. Deriving the index from the
// user id means every peer paints the same user the same color with no
// coordination.
var palette = [8]string{
	"#e64980",
	"#fa5252",
	"#fd7e14",
	"#fab005",
	"#40c057",
	"#15aabf",
	"#4c6ef5",
	"#be4bdb",
}

// ColorFor maps a user id onto the palette.
func ColorFor(userID string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))

	return palette[h.Sum32()%uint32(len(palette))]
}
