// Package convert turns a legacy multi-dimensional image product and its
// sibling artifacts into labeled, compressed zarr stores, streaming one
// frequency channel at a time.
package convert

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/FedeMPouzols/cngi-prototype/image"
)

// Coordinate is the world-coordinate array for one axis. Spherical axes are
// multi-dimensional (sky projections couple axes, so values vary jointly over
// every spherical axis); linear axes are independent 1-D vectors.
type Coordinate struct {
	Dims   []string
	Shape  []int
	Values []float64
}

// CoordSet maps axis names to their world coordinates.
type CoordSet map[string]Coordinate

// ResolveCoords computes world coordinates for every axis of img and the
// dimension-name list labeling its data. Axes whose unit equals the angular
// marker are spherical and get synthetic dimension names d<i>; all other axes
// are linear and are named after themselves.
func ResolveCoords(img image.Image) (CoordSet, []string, error) {
	shape := img.Shape()
	units := img.AxisUnits()
	names := make([]string, len(shape))
	for d, name := range img.AxisNames() {
		names[d] = normalizeKey(name)
	}
	if len(units) != len(shape) || len(names) != len(shape) {
		return nil, nil, fmt.Errorf("image has %d axes but %d names, %d units", len(shape), len(names), len(units))
	}

	cs, err := img.CoordSys()
	if err != nil {
		return nil, nil, err
	}

	var sphr, cart []int
	for d := range shape {
		if units[d] == image.UnitAngular {
			sphr = append(sphr, d)
		} else {
			cart = append(cart, d)
		}
	}

	coords := CoordSet{}

	// spherical axes: one joint conversion over the full sky grid, each axis
	// keeping the group's joint shape
	if len(sphr) > 0 {
		world, groupShape, err := groupWorld(cs, shape, sphr)
		if err != nil {
			return nil, nil, err
		}
		dims := make([]string, len(sphr))
		for i, d := range sphr {
			dims[i] = "d" + strconv.Itoa(d)
		}
		for _, d := range sphr {
			coords[names[d]] = Coordinate{Dims: dims, Shape: groupShape, Values: world[d]}
		}
	}

	// linear axes: one joint conversion, then decomposed into independent
	// per-axis vectors by slicing along each axis's own varying dimension
	if len(cart) > 0 {
		world, groupShape, err := groupWorld(cs, shape, cart)
		if err != nil {
			return nil, nil, err
		}
		groupStrides := rowMajorStrides(groupShape)
		for j, d := range cart {
			vec := make([]float64, shape[d])
			for i := range vec {
				vec[i] = world[d][i*groupStrides[j]]
			}
			coords[names[d]] = Coordinate{Dims: []string{names[d]}, Shape: []int{shape[d]}, Values: vec}
		}
	}

	dims := make([]string, len(shape))
	for d := range shape {
		if units[d] == image.UnitAngular {
			dims[d] = "d" + strconv.Itoa(d)
		} else {
			dims[d] = names[d]
		}
	}
	return coords, dims, nil
}

// groupWorld converts the minimal index grid covering one axis group in a
// single batch call: full range along axes in the group, index 0 elsewhere.
// The returned world values are axis-major, each axis flattened row-major
// over the group's joint shape.
func groupWorld(cs image.CoordSys, shape []int, group []int) ([][]float64, []int, error) {
	groupShape := make([]int, len(group))
	for i, d := range group {
		groupShape[i] = shape[d]
	}
	npts := 1
	for _, s := range groupShape {
		npts *= s
	}

	pixels := make([][]float64, len(shape))
	for d := range pixels {
		pixels[d] = make([]float64, npts)
	}
	groupStrides := rowMajorStrides(groupShape)
	for p := 0; p < npts; p++ {
		rem := p
		for i, d := range group {
			pixels[d][p] = float64(rem / groupStrides[i])
			rem %= groupStrides[i]
		}
	}

	world, err := cs.ToWorldMany(pixels)
	if err != nil {
		return nil, nil, fmt.Errorf("converting %d-axis group to world coordinates: %w", len(group), err)
	}
	if len(world) != len(shape) {
		return nil, nil, fmt.Errorf("coordinate conversion returned %d axes, want %d", len(world), len(shape))
	}
	return world, groupShape, nil
}

func normalizeKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
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
