package zarr

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Variable is one labeled n-dimensional array: a dimension name per axis and
// flat values in row-major ("C") order over Shape.
type Variable struct {
	Dims   []string
	Shape  []int
	Values interface{} // []float32 or []float64
}

// Dataset is a set of variables sharing dimensions, the in-memory unit
// written to a store. Coords hold the world-coordinate variables, Vars the
// data variables.
type Dataset struct {
	Vars   map[string]Variable
	Coords map[string]Variable
	Attrs  Attributes
}

// CreateDataset writes ds into an empty store: a root ".zgroup" and
// ".zattrs", and per variable a ".zarray", a ".zattrs" carrying the dimension
// labels, and a single chunk holding the variable's values. Compression is
// assigned per data variable from enc; coordinate variables are stored
// uncompressed.
func CreateDataset(store Store, ds *Dataset, enc map[string]*CompressionMeta) error {
	if err := putJSON(store, string(MTGroup), Group{ZarrFormat: Format}); err != nil {
		return err
	}
	attrs := ds.Attrs
	if attrs == nil {
		attrs = Attributes{}
	}
	if err := putJSON(store, string(MTAttributes), attrs); err != nil {
		return err
	}

	for name, v := range ds.Coords {
		if err := createArray(store, name, v, nil); err != nil {
			return err
		}
	}
	for name, v := range ds.Vars {
		if err := createArray(store, name, v, enc[name]); err != nil {
			return err
		}
	}
	return nil
}

// AppendDataset extends an existing store along the named dimension. Every
// variable in ds carrying that dimension contributes one new chunk; variables
// without it were fixed at creation and are left untouched. Appends are
// positional: the new chunk lands at the next grid index along dim, so calls
// must arrive in increasing order.
func AppendDataset(store Store, ds *Dataset, dim string) error {
	for name, v := range ds.Coords {
		if err := appendArray(store, name, v, dim); err != nil {
			return err
		}
	}
	for name, v := range ds.Vars {
		if err := appendArray(store, name, v, dim); err != nil {
			return err
		}
	}
	return nil
}

func createArray(store Store, name string, v Variable, comp *CompressionMeta) error {
	if err := checkVariable(name, v); err != nil {
		return err
	}
	dt, err := DtypeOf(v.Values)
	if err != nil {
		return fmt.Errorf("variable %q: %w", name, err)
	}

	meta := &ArrayMeta{
		ZarrFormat: Format,
		Shape:      append([]int{}, v.Shape...),
		Chunks:     append([]int{}, v.Shape...),
		Dtype:      dt,
		Compressor: comp,
		FillValue:  FillValueNaN,
		Order:      "C",
	}
	p := NewPath(name)
	if err := putJSON(store, p.Join(string(MTArray)).String(), meta); err != nil {
		return err
	}
	dims := v.Dims
	if dims == nil {
		dims = []string{}
	}
	if err := putJSON(store, p.Join(string(MTAttributes)).String(), Attributes{AttrDimensions: dims}); err != nil {
		return err
	}

	indices := make([]int, len(v.Shape))
	return writeChunk(store, p.Join(ChunkKey(indices, meta.DimensionSeparator)).String(), v.Values, dt, comp)
}

func appendArray(store Store, name string, v Variable, dim string) error {
	di := indexOf(v.Dims, dim)
	if di < 0 {
		return nil
	}
	if err := checkVariable(name, v); err != nil {
		return err
	}

	p := NewPath(name)
	metaKey := p.Join(string(MTArray)).String()
	meta := &ArrayMeta{}
	if err := getJSON(store, metaKey, meta); err != nil {
		return fmt.Errorf("variable %q: %w", name, err)
	}
	if len(meta.Shape) != len(v.Shape) {
		return fmt.Errorf("variable %q: rank %d does not match stored rank %d", name, len(v.Shape), len(meta.Shape))
	}
	for d := range v.Shape {
		if v.Shape[d] != meta.Chunks[d] {
			return fmt.Errorf("variable %q: appended shape %v does not match chunk shape %v", name, v.Shape, meta.Chunks)
		}
	}
	dt, err := DtypeOf(v.Values)
	if err != nil {
		return fmt.Errorf("variable %q: %w", name, err)
	}
	if dt != meta.Dtype {
		return fmt.Errorf("variable %q: dtype %s does not match stored dtype %s", name, dt, meta.Dtype)
	}

	indices := make([]int, len(meta.Shape))
	indices[di] = chunkGridIndex(meta.Shape[di], meta.Chunks[di])
	key := p.Join(ChunkKey(indices, meta.DimensionSeparator)).String()
	if err := writeChunk(store, key, v.Values, dt, meta.Compressor); err != nil {
		return err
	}

	meta.Shape[di] += v.Shape[di]
	return putJSON(store, metaKey, meta)
}

// ReadDataset loads every array in the store back into memory, multi-chunk
// arrays reassembled in row-major order. All arrays land in Vars; callers
// that care about the coordinate/data split keep their own dimension lists.
func ReadDataset(store Store) (*Dataset, error) {
	keys, err := store.List("")
	if err != nil {
		return nil, err
	}

	ds := &Dataset{Vars: map[string]Variable{}, Attrs: Attributes{}}
	if err := getJSON(store, string(MTAttributes), &ds.Attrs); err != nil && !errors.Is(err, ErrNotfound) {
		return nil, err
	}

	names := map[string]struct{}{}
	for _, key := range keys {
		if i := strings.IndexByte(key, '/'); i > 0 && strings.HasSuffix(key, string(MTArray)) {
			names[key[:i]] = struct{}{}
		}
	}
	ordered := make([]string, 0, len(names))
	for name := range names {
		ordered = append(ordered, name)
	}
	sort.Strings(ordered)

	for _, name := range ordered {
		v, err := readArray(store, name)
		if err != nil {
			return nil, err
		}
		ds.Vars[name] = v
	}
	return ds, nil
}

func readArray(store Store, name string) (Variable, error) {
	p := NewPath(name)
	meta := &ArrayMeta{}
	if err := getJSON(store, p.Join(string(MTArray)).String(), meta); err != nil {
		return Variable{}, err
	}
	attrs := Attributes{}
	if err := getJSON(store, p.Join(string(MTAttributes)).String(), &attrs); err != nil {
		return Variable{}, err
	}
	var dims []string
	if raw, ok := attrs[AttrDimensions].([]interface{}); ok {
		for _, d := range raw {
			if s, ok := d.(string); ok {
				dims = append(dims, s)
			}
		}
	}

	values, err := meta.Dtype.NewValues(prod(meta.Shape))
	if err != nil {
		return Variable{}, err
	}

	grid := make([]int, len(meta.Shape))
	for d := range grid {
		grid[d] = 1 + chunkGridIndex(meta.Shape[d]-1, meta.Chunks[d])
	}
	for _, indices := range gridIndices(grid) {
		chunk, err := readChunk(store, p.Join(ChunkKey(indices, meta.DimensionSeparator)).String(), meta)
		if err != nil {
			return Variable{}, err
		}
		if err := scatterChunk(values, chunk, meta, indices); err != nil {
			return Variable{}, fmt.Errorf("array %q chunk %v: %w", name, indices, err)
		}
	}

	return Variable{Dims: dims, Shape: meta.Shape, Values: values}, nil
}

// Consolidate mirrors all metadata documents under a single ".zmetadata" key
// so readers can open the hierarchy with one fetch.
func Consolidate(store Store) error {
	keys, err := store.List("")
	if err != nil {
		return err
	}

	cm := ConsolidatedMetadata{
		ConsolidatedFormat: ConsolidatedFormat,
		Metadata:           map[string]MetaTyper{},
	}
	for _, key := range keys {
		kt, ok := KeyMetaType(key)
		if !ok {
			continue
		}
		f, err := store.Get(key)
		if err != nil {
			return err
		}
		raw, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return err
		}
		meta, err := decodeMetaDoc(kt, raw)
		if err != nil {
			return fmt.Errorf("consolidating %q: %w", key, err)
		}
		cm.Metadata[key] = meta
	}
	return putJSON(store, string(MTMetadata), cm)
}

func writeChunk(store Store, key string, values interface{}, dt Dtype, comp *CompressionMeta) error {
	buf := &bytes.Buffer{}
	cw, err := comp.Compressor(buf)
	if err != nil {
		return err
	}
	if err := binary.Write(cw, dt.Order(), values); err != nil {
		cw.Close()
		return err
	}
	if err := cw.Close(); err != nil {
		return err
	}
	return store.Put(key, buf)
}

func readChunk(store Store, key string, meta *ArrayMeta) (interface{}, error) {
	f, err := store.Get(key)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := meta.Compressor.Decompressor(f)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	values, err := meta.Dtype.NewValues(prod(meta.Chunks))
	if err != nil {
		return nil, err
	}
	if err := binary.Read(r, meta.Dtype.Order(), values); err != nil {
		return nil, err
	}
	return values, nil
}

// scatterChunk copies one decoded chunk into the full array at the chunk's
// grid position. Elements past the array edge (partial trailing chunks) are
// dropped.
func scatterChunk(dst, chunk interface{}, meta *ArrayMeta, indices []int) error {
	strides := rowMajorStrides(meta.Shape)
	chunkStrides := rowMajorStrides(meta.Chunks)
	n := prod(meta.Chunks)

	copyValue, err := elementCopier(dst, chunk)
	if err != nil {
		return err
	}

	pos := make([]int, len(meta.Chunks))
	for flat := 0; flat < n; flat++ {
		rem := flat
		inBounds := true
		global := 0
		for d := range pos {
			pos[d] = rem / chunkStrides[d]
			rem %= chunkStrides[d]
			g := indices[d]*meta.Chunks[d] + pos[d]
			if g >= meta.Shape[d] {
				inBounds = false
				break
			}
			global += g * strides[d]
		}
		if inBounds {
			copyValue(global, flat)
		}
	}
	return nil
}

func elementCopier(dst, src interface{}) (func(di, si int), error) {
	switch d := dst.(type) {
	case []float32:
		s, ok := src.([]float32)
		if !ok {
			return nil, fmt.Errorf("chunk type %T does not match array type %T", src, dst)
		}
		return func(di, si int) { d[di] = s[si] }, nil
	case []float64:
		s, ok := src.([]float64)
		if !ok {
			return nil, fmt.Errorf("chunk type %T does not match array type %T", src, dst)
		}
		return func(di, si int) { d[di] = s[si] }, nil
	default:
		return nil, fmt.Errorf("unsupported array type %T", dst)
	}
}

func checkVariable(name string, v Variable) error {
	if len(v.Dims) != len(v.Shape) {
		return fmt.Errorf("variable %q: %d dims for rank %d", name, len(v.Dims), len(v.Shape))
	}
	n, err := valueLen(v.Values)
	if err != nil {
		return fmt.Errorf("variable %q: %w", name, err)
	}
	if n != prod(v.Shape) {
		return fmt.Errorf("variable %q: %d values for shape %v", name, n, v.Shape)
	}
	return nil
}

func valueLen(values interface{}) (int, error) {
	switch v := values.(type) {
	case []float32:
		return len(v), nil
	case []float64:
		return len(v), nil
	default:
		return 0, fmt.Errorf("unsupported value type %T", values)
	}
}

func putJSON(store Store, key string, v interface{}) error {
	d, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	return store.Put(key, bytes.NewReader(d))
}

func getJSON(store Store, key string, v interface{}) error {
	f, err := store.Get(key)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(v)
}

func prod(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

func rowMajorStrides(shape []int) []int {
	strides := make([]int, len(shape))
	stride := 1
	for d := len(shape) - 1; d >= 0; d-- {
		strides[d] = stride
		stride *= shape[d]
	}
	return strides
}

// gridIndices enumerates every index vector of the chunk grid in row-major
// order, e.g. [2, 1] -> [0 0], [1 0].
func gridIndices(grid []int) [][]int {
	n := prod(grid)
	strides := rowMajorStrides(grid)
	out := make([][]int, 0, n)
	for flat := 0; flat < n; flat++ {
		indices := make([]int, len(grid))
		rem := flat
		for d := range grid {
			indices[d] = rem / strides[d]
			rem %= strides[d]
		}
		out = append(out, indices)
	}
	return out
}

func indexOf(list []string, s string) int {
	for i, el := range list {
		if el == s {
			return i
		}
	}
	return -1
}
