package convert

import (
	"fmt"

	"github.com/FedeMPouzols/cngi-prototype/image"
)

// Snapshot is the metadata captured from one opened artifact: world
// coordinates, shape, dimension labels and flattened attributes.
type Snapshot struct {
	Coords CoordSet
	Shape  []int
	Dims   []string
	Attrs  map[string]interface{}
}

// Divergent pairs an artifact type whose shape differs from the reference
// with its own metadata snapshot.
type Divergent struct {
	Type string
	Meta *Snapshot
}

// GroupArtifacts walks the candidate types in priority order and partitions
// them by shape. Candidates missing on disk are skipped. The first artifact
// that opens becomes the reference, accepted without comparison; every later
// artifact is compatible when its shape equals the reference shape and
// divergent otherwise. Only shapes are compared, never coordinate values, so
// same-shaped artifacts computed on different coordinate systems merge
// silently.
func GroupArtifacts(op image.Opener, prefix string, types []string) (ref *Snapshot, compatible []string, divergent []Divergent, err error) {
	for _, t := range types {
		path := prefix + "." + t
		if !op.Exists(path) {
			continue
		}
		snap, err := snapshotArtifact(op, path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("artifact %q: %w", t, err)
		}
		switch {
		case ref == nil:
			ref = snap
			compatible = append(compatible, t)
		case shapeEqual(snap.Shape, ref.Shape):
			compatible = append(compatible, t)
		default:
			divergent = append(divergent, Divergent{Type: t, Meta: snap})
		}
	}
	if ref == nil {
		return nil, nil, nil, fmt.Errorf("no image artifacts found at %s.*", prefix)
	}
	return ref, compatible, divergent, nil
}

// snapshotArtifact opens, snapshots and closes one artifact; the handle is
// released on every exit path.
func snapshotArtifact(op image.Opener, path string) (*Snapshot, error) {
	img, err := op.Open(path)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	coords, dims, err := ResolveCoords(img)
	if err != nil {
		return nil, err
	}
	sum, err := img.Summary()
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		Coords: coords,
		Shape:  img.Shape(),
		Dims:   dims,
		Attrs:  FlattenSummary(sum),
	}, nil
}

func shapeEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
