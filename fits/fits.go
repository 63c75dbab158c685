// Package fits is a minimal read-only FITS image source. It parses primary
// HDU headers, exposes the image geometry and a linear world coordinate
// system, and reads pixel windows on demand so a cube never has to be
// resident at once.
package fits

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/FedeMPouzols/cngi-prototype/image"
)

const (
	// 2880 is the standard FITS file block size
	blockSize = 2880
	cardSize  = 80
)

const degToRad = math.Pi / 180

// Image is one opened primary HDU. Pixel data stays on disk; Chunk seeks and
// reads only the span covering the requested window.
type Image struct {
	f       *os.File
	keys    map[string]interface{}
	history []string
	naxis   []int
	bitpix  int
	bscale  float64
	bzero   float64
	dataOff int64

	names  []string
	units  []string
	refpix []float64
	refval []float64
	incr   []float64
}

var _ image.Image = (*Image)(nil)

// Open reads the primary header of the FITS file at path. The data section is
// left on disk until Chunk asks for it.
func Open(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	img := &Image{f: f, keys: map[string]interface{}{}, bscale: 1}
	if err := img.readHeader(); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

func (img *Image) readHeader() error {
	block := make([]byte, blockSize)
	done := false
	for !done {
		if _, err := io.ReadFull(img.f, block); err != nil {
			return fmt.Errorf("reading header block: %w", err)
		}
		img.dataOff += blockSize
		for c := 0; c < blockSize; c += cardSize {
			card := string(block[c : c+cardSize])
			name := strings.TrimSpace(card[:8])
			switch {
			case name == "END":
				done = true
			case name == "COMMENT" || name == "HISTORY":
				img.history = append(img.history, strings.TrimSpace(card[8:]))
			case name == "" || card[8:10] != "= ":
				// blank or non-value card
			default:
				img.keys[name] = parseValue(card[10:])
			}
		}
	}

	simple, ok := img.keys["SIMPLE"].(bool)
	if !ok || !simple {
		return fmt.Errorf("not a simple FITS file")
	}
	bitpix, ok := img.keys["BITPIX"].(int)
	if !ok {
		return fmt.Errorf("missing BITPIX")
	}
	img.bitpix = bitpix
	ndim, ok := img.keys["NAXIS"].(int)
	if !ok || ndim < 1 {
		return fmt.Errorf("missing NAXIS")
	}

	img.naxis = make([]int, ndim)
	img.names = make([]string, ndim)
	img.units = make([]string, ndim)
	img.refpix = make([]float64, ndim)
	img.refval = make([]float64, ndim)
	img.incr = make([]float64, ndim)
	for d := 0; d < ndim; d++ {
		n := strconv.Itoa(d + 1)
		extent, ok := img.keys["NAXIS"+n].(int)
		if !ok || extent < 1 {
			return fmt.Errorf("missing NAXIS%s", n)
		}
		img.naxis[d] = extent

		ctype, _ := img.keys["CTYPE"+n].(string)
		cunit, _ := img.keys["CUNIT"+n].(string)
		img.names[d], img.units[d] = axisClass(ctype, cunit)
		img.refpix[d] = floatKey(img.keys, "CRPIX"+n, 1)
		img.refval[d] = floatKey(img.keys, "CRVAL"+n, 0)
		img.incr[d] = floatKey(img.keys, "CDELT"+n, 1)
		if img.units[d] == image.UnitAngular {
			// FITS angular WCS is in degrees; normalize to radians so axis
			// classification matches the legacy convention
			img.refval[d] *= degToRad
			img.incr[d] *= degToRad
		}
	}
	img.bscale = floatKey(img.keys, "BSCALE", 1)
	img.bzero = floatKey(img.keys, "BZERO", 0)
	return nil
}

// axisClass maps a CTYPE/CUNIT pair onto the axis name and unit the pipeline
// expects. RA---SIN style projections reduce to the bare axis class.
func axisClass(ctype, cunit string) (name, unit string) {
	base := strings.ToUpper(strings.SplitN(ctype, "-", 2)[0])
	switch base {
	case "RA":
		return "right ascension", image.UnitAngular
	case "DEC":
		return "declination", image.UnitAngular
	case "FREQ":
		return "frequency", "Hz"
	case "STOKES":
		return "stokes", ""
	}
	name = strings.ToLower(strings.TrimSpace(ctype))
	if name == "" {
		name = "axis"
	}
	unit = strings.TrimSpace(cunit)
	if strings.EqualFold(unit, "deg") {
		unit = image.UnitAngular
	}
	return name, unit
}

// parseValue decodes one header card value: quoted string, logical T/F,
// integer or float. The comment after "/" is dropped.
func parseValue(s string) interface{} {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "'") {
		end := strings.Index(s[1:], "'")
		if end < 0 {
			return strings.TrimSpace(s[1:])
		}
		return strings.TrimSpace(s[1 : end+1])
	}
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	switch s {
	case "T":
		return true
	case "F":
		return false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if x, err := strconv.ParseFloat(s, 64); err == nil {
		return x
	}
	return s
}

func floatKey(keys map[string]interface{}, name string, def float64) float64 {
	switch v := keys[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

func (img *Image) Shape() []int        { return append([]int{}, img.naxis...) }
func (img *Image) AxisNames() []string { return append([]string{}, img.names...) }
func (img *Image) AxisUnits() []string { return append([]string{}, img.units...) }

func (img *Image) Summary() (*image.Summary, error) {
	fields := map[string]image.Value{
		"axisnames": image.Strings(img.names),
		"axisunits": image.Strings(img.units),
		"ndim":      image.Scalar(len(img.naxis)),
		"shape":     toNumbers(img.naxis),
		"refpix":    image.Numbers(img.refpix),
		"refval":    image.Numbers(img.refval),
		"incr":      image.Numbers(img.incr),
	}
	for key, val := range img.keys {
		lk := strings.ToLower(key)
		if strings.HasPrefix(lk, "naxis") || strings.HasPrefix(lk, "ctype") ||
			strings.HasPrefix(lk, "cunit") || strings.HasPrefix(lk, "crpix") ||
			strings.HasPrefix(lk, "crval") || strings.HasPrefix(lk, "cdelt") {
			continue
		}
		switch v := val.(type) {
		case string:
			fields[lk] = image.Text(v)
		case bool:
			if v {
				fields[lk] = image.Scalar(1)
			} else {
				fields[lk] = image.Scalar(0)
			}
		case int:
			fields[lk] = image.Scalar(v)
		case float64:
			fields[lk] = image.Scalar(v)
		}
	}
	return &image.Summary{Fields: fields, Messages: append([]string{}, img.history...)}, nil
}

func (img *Image) CoordSys() (image.CoordSys, error) {
	return &wcs{refpix: img.refpix, refval: img.refval, incr: img.incr}, nil
}

// wcs is the linear FITS world coordinate system: world = crval +
// (pixel + 1 - crpix) * cdelt, with 0-based pixel indices.
type wcs struct {
	refpix []float64
	refval []float64
	incr   []float64
}

func (w *wcs) ToWorldMany(pixels [][]float64) ([][]float64, error) {
	if len(pixels) != len(w.refval) {
		return nil, fmt.Errorf("got %d axes, coordinate system has %d", len(pixels), len(w.refval))
	}
	world := make([][]float64, len(pixels))
	for d, axis := range pixels {
		world[d] = make([]float64, len(axis))
		for i, p := range axis {
			world[d][i] = w.refval[d] + (p+1-w.refpix[d])*w.incr[d]
		}
	}
	return world, nil
}

func (img *Image) Chunk(blc, trc []int) ([]float32, error) {
	ndim := len(img.naxis)
	if len(blc) != ndim || len(trc) != ndim {
		return nil, fmt.Errorf("window rank %d/%d does not match image rank %d", len(blc), len(trc), ndim)
	}

	lo := make([]int, ndim)
	hi := make([]int, ndim)
	winShape := make([]int, ndim)
	for d := 0; d < ndim; d++ {
		lo[d], hi[d] = blc[d], trc[d]
		if lo[d] == image.FullRange {
			lo[d] = 0
		}
		if hi[d] == image.FullRange {
			hi[d] = img.naxis[d] - 1
		}
		if lo[d] < 0 || hi[d] >= img.naxis[d] || lo[d] > hi[d] {
			return nil, fmt.Errorf("window [%d, %d] out of range on axis %d (extent %d)", blc[d], trc[d], d, img.naxis[d])
		}
		winShape[d] = hi[d] - lo[d] + 1
	}

	// FITS data is column-major (first axis varies fastest). Read the single
	// contiguous span covering the window, then gather into row-major order
	// over the window shape.
	fstrides := make([]int, ndim)
	stride := 1
	for d := 0; d < ndim; d++ {
		fstrides[d] = stride
		stride *= img.naxis[d]
	}
	first, last := 0, 0
	for d := 0; d < ndim; d++ {
		first += lo[d] * fstrides[d]
		last += hi[d] * fstrides[d]
	}

	width := abs(img.bitpix) / 8
	raw := make([]byte, (last-first+1)*width)
	if _, err := img.f.ReadAt(raw, img.dataOff+int64(first*width)); err != nil {
		return nil, fmt.Errorf("reading data span: %w", err)
	}

	out := make([]float32, size(winShape))
	winStrides := rowMajorStrides(winShape)
	for i := range out {
		rem := i
		src := -first
		for d := 0; d < ndim; d++ {
			pos := rem / winStrides[d]
			rem %= winStrides[d]
			src += (lo[d] + pos) * fstrides[d]
		}
		v, err := img.valueAt(raw, src*width)
		if err != nil {
			return nil, err
		}
		out[i] = float32(img.bscale*v + img.bzero)
	}
	return out, nil
}

func (img *Image) valueAt(raw []byte, off int) (float64, error) {
	switch img.bitpix {
	case 8:
		return float64(raw[off]), nil
	case 16:
		return float64(int16(binary.BigEndian.Uint16(raw[off:]))), nil
	case 32:
		return float64(int32(binary.BigEndian.Uint32(raw[off:]))), nil
	case 64:
		return float64(int64(binary.BigEndian.Uint64(raw[off:]))), nil
	case -32:
		return float64(math.Float32frombits(binary.BigEndian.Uint32(raw[off:]))), nil
	case -64:
		return math.Float64frombits(binary.BigEndian.Uint64(raw[off:])), nil
	default:
		return 0, fmt.Errorf("unsupported BITPIX %d", img.bitpix)
	}
}

func (img *Image) Close() error { return img.f.Close() }

// Opener locates FITS artifacts on the local filesystem.
type Opener struct{}

var _ image.Opener = Opener{}

func (Opener) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (Opener) Open(path string) (image.Image, error) { return Open(path) }

func toNumbers(ints []int) image.Numbers {
	out := make(image.Numbers, len(ints))
	for i, v := range ints {
		out[i] = float64(v)
	}
	return out
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func size(shape []int) int {
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
