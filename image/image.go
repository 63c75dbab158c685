// Package image defines the contract the conversion pipeline needs from a
// legacy image reading library: axis geometry, nested summary metadata,
// windowed pixel reads and index-to-world coordinate conversion.
package image

// FullRange selects the whole extent of an axis in a window read.
const FullRange = -1

// UnitAngular is the unit string marking an axis as spherical. Readers
// normalize angular units to radians so classification is a plain string
// comparison.
const UnitAngular = "rad"

// Image is one opened image artifact. Handles are transient: opened to read
// metadata or a window of pixels, then closed. No handle survives across
// pipeline stages.
type Image interface {
	// Shape returns the per-axis extent. len(Shape()) is the axis count.
	Shape() []int
	// AxisNames returns one name per axis, e.g. "Right Ascension".
	AxisNames() []string
	// AxisUnits returns one physical unit per axis, e.g. "rad", "Hz".
	AxisUnits() []string
	// Summary returns the artifact's raw nested metadata plus free-text
	// diagnostic messages.
	Summary() (*Summary, error)
	// CoordSys returns the coordinate transform service scoped to this
	// artifact's coordinate system.
	CoordSys() (CoordSys, error)
	// Chunk reads the window bounded by the inclusive corner index vectors
	// blc and trc. FullRange on both corners selects an entire axis. Values
	// are returned flat in row-major order over the window shape.
	Chunk(blc, trc []int) ([]float32, error)
	Close() error
}

// CoordSys converts pixel indices to world coordinates. Points are passed
// axis-major: pixels[axis][point], one batch call for any number of points.
// The result has the same layout. A malformed or missing coordinate system
// fails the conversion; no fallback coordinates are synthesized.
type CoordSys interface {
	ToWorldMany(pixels [][]float64) ([][]float64, error)
}

// Opener locates and opens image artifacts on some medium.
type Opener interface {
	Exists(path string) bool
	Open(path string) (Image, error)
}

// Summary is the raw metadata block of one artifact: a nested mapping of
// tagged values plus free-text diagnostic messages.
type Summary struct {
	Fields   map[string]Value
	Messages []string
}

// Value is the tagged variant a summary field may hold: a scalar, a text
// string, a homogeneous list, or a nested mapping.
type Value interface {
	isValue()
}

type Scalar float64

type Text string

type Numbers []float64

type Strings []string

type Nested map[string]Value

func (Scalar) isValue()  {}
func (Text) isValue()    {}
func (Numbers) isValue() {}
func (Strings) isValue() {}
func (Nested) isValue()  {}
