package image

import (
	"fmt"
)

// MemImage is an in-memory Image with a per-axis linear coordinate system:
// world = refval + (pixel - refpix) * incr. It backs pipeline tests and
// serves as the reference implementation of the Image contract.
type MemImage struct {
	Names  []string
	Units  []string
	Extent []int
	RefPix []float64
	RefVal []float64
	Incr   []float64
	Pixels []float32
	Meta   map[string]Value
	Msgs   []string

	closed bool
}

var _ Image = (*MemImage)(nil)

func (m *MemImage) Shape() []int {
	return append([]int{}, m.Extent...)
}

func (m *MemImage) AxisNames() []string { return append([]string{}, m.Names...) }

func (m *MemImage) AxisUnits() []string { return append([]string{}, m.Units...) }

func (m *MemImage) Summary() (*Summary, error) {
	fields := map[string]Value{}
	for k, v := range m.Meta {
		fields[k] = v
	}
	fields["axisnames"] = Strings(m.Names)
	fields["axisunits"] = Strings(m.Units)
	fields["ndim"] = Scalar(len(m.Extent))
	shape := make(Numbers, len(m.Extent))
	incr := make(Numbers, len(m.Extent))
	refpix := make(Numbers, len(m.Extent))
	refval := make(Numbers, len(m.Extent))
	for d := range m.Extent {
		shape[d] = float64(m.Extent[d])
		incr[d] = m.Incr[d]
		refpix[d] = m.RefPix[d]
		refval[d] = m.RefVal[d]
	}
	fields["shape"] = shape
	fields["incr"] = incr
	fields["refpix"] = refpix
	fields["refval"] = refval
	return &Summary{Fields: fields, Messages: append([]string{}, m.Msgs...)}, nil
}

func (m *MemImage) CoordSys() (CoordSys, error) {
	if len(m.RefVal) != len(m.Extent) || len(m.Incr) != len(m.Extent) {
		return nil, fmt.Errorf("malformed coordinate system: %d axes, %d reference values", len(m.Extent), len(m.RefVal))
	}
	return &linearCoordSys{refpix: m.RefPix, refval: m.RefVal, incr: m.Incr}, nil
}

func (m *MemImage) Chunk(blc, trc []int) ([]float32, error) {
	if m.closed {
		return nil, fmt.Errorf("image is closed")
	}
	ndim := len(m.Extent)
	if len(blc) != ndim || len(trc) != ndim {
		return nil, fmt.Errorf("window rank %d/%d does not match image rank %d", len(blc), len(trc), ndim)
	}

	lo := make([]int, ndim)
	hi := make([]int, ndim)
	winShape := make([]int, ndim)
	for d := 0; d < ndim; d++ {
		lo[d], hi[d] = blc[d], trc[d]
		if lo[d] == FullRange {
			lo[d] = 0
		}
		if hi[d] == FullRange {
			hi[d] = m.Extent[d] - 1
		}
		if lo[d] < 0 || hi[d] >= m.Extent[d] || lo[d] > hi[d] {
			return nil, fmt.Errorf("window [%d, %d] out of range on axis %d (extent %d)", blc[d], trc[d], d, m.Extent[d])
		}
		winShape[d] = hi[d] - lo[d] + 1
	}

	pixels := m.Pixels
	if pixels == nil {
		pixels = make([]float32, size(m.Extent))
		for i := range pixels {
			pixels[i] = float32(i)
		}
	}

	srcStrides := strides(m.Extent)
	winStrides := strides(winShape)
	out := make([]float32, size(winShape))
	for i := range out {
		rem := i
		src := 0
		for d := 0; d < ndim; d++ {
			pos := rem / winStrides[d]
			rem %= winStrides[d]
			src += (lo[d] + pos) * srcStrides[d]
		}
		out[i] = pixels[src]
	}
	return out, nil
}

func (m *MemImage) Close() error {
	m.closed = true
	return nil
}

type linearCoordSys struct {
	refpix []float64
	refval []float64
	incr   []float64
}

func (cs *linearCoordSys) ToWorldMany(pixels [][]float64) ([][]float64, error) {
	if len(pixels) != len(cs.refval) {
		return nil, fmt.Errorf("got %d axes, coordinate system has %d", len(pixels), len(cs.refval))
	}
	world := make([][]float64, len(pixels))
	for d, axis := range pixels {
		world[d] = make([]float64, len(axis))
		for i, p := range axis {
			world[d][i] = cs.refval[d] + (p-cs.refpix[d])*cs.incr[d]
		}
	}
	return world, nil
}

// MemOpener serves MemImages by path.
type MemOpener struct {
	Images map[string]*MemImage
}

var _ Opener = (*MemOpener)(nil)

func (o *MemOpener) Exists(path string) bool {
	_, ok := o.Images[path]
	return ok
}

func (o *MemOpener) Open(path string) (Image, error) {
	img, ok := o.Images[path]
	if !ok {
		return nil, fmt.Errorf("no image at %s", path)
	}
	opened := *img
	opened.closed = false
	return &opened, nil
}

func size(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

func strides(shape []int) []int {
	out := make([]int, len(shape))
	stride := 1
	for d := len(shape) - 1; d >= 0; d-- {
		out[d] = stride
		stride *= shape[d]
	}
	return out
}
