package zarr

import (
	"strconv"
	"strings"
)

// Path is a slash-separated logical location inside a store.
//
// To ensure consistent behaviour across different storage systems,
// logical paths are normalized as follows:
// * Replace all backward slash characters ("\") with forward slash characters ("/")
// * Strip any leading "/" characters
// * Strip any trailing "/" characters
// * Collapse any sequence of more than one "/" character into a single "/" character
type Path []string

func NewPath(posix string) Path {
	posix = strings.ReplaceAll(posix, "\\", "/")
	var p Path
	for _, el := range strings.Split(posix, "/") {
		if el != "" {
			p = append(p, el)
		}
	}
	return p
}

func (p Path) String() string {
	return strings.Join(p, "/")
}

func (p Path) Join(elems ...string) Path {
	joined := make(Path, 0, len(p)+len(elems))
	joined = append(joined, p...)
	return append(joined, elems...)
}

// ChunkKey builds the storage key for the chunk at the given grid indices,
// one index per array dimension, e.g. [0, 0, 3] -> "0.0.3".
func ChunkKey(indices []int, separator string) string {
	if separator == "" {
		separator = "."
	}
	if len(indices) == 0 {
		// zarr convention for 0-dimensional arrays
		return "0"
	}
	parts := make([]string, len(indices))
	for i, ix := range indices {
		parts[i] = strconv.Itoa(ix)
	}
	return strings.Join(parts, separator)
}

// chunkGridIndex maps an element offset along one dimension to the index of
// the chunk containing it.
func chunkGridIndex(offset, chunkLen int) int {
	if chunkLen <= 0 {
		return 0
	}
	return offset / chunkLen
}
