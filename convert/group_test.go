package convert

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FedeMPouzols/cngi-prototype/image"
)

func TestGroupArtifactsFirstExistingWins(t *testing.T) {
	// the small psf sits earlier in priority order than the larger
	// residual; first-existing wins regardless of size or authority
	op := &image.MemOpener{Images: map[string]*image.MemImage{
		"field.psf":      testCube([]int{4, 4, 1, 2}),
		"field.residual": testCube([]int{10, 10, 1, 5}),
		"field.mask":     testCube([]int{4, 4, 1, 2}),
	}}

	ref, compatible, divergent, err := GroupArtifacts(op, "field", []string{"image", "psf", "mask", "residual"})
	require.NoError(t, err)

	require.Equal(t, []int{4, 4, 1, 2}, ref.Shape)
	require.Equal(t, []string{"psf", "mask"}, compatible)
	require.Len(t, divergent, 1)
	require.Equal(t, "residual", divergent[0].Type)
	require.Equal(t, []int{10, 10, 1, 5}, divergent[0].Meta.Shape)
}

func TestGroupArtifactsMissingAreSkipped(t *testing.T) {
	op := &image.MemOpener{Images: map[string]*image.MemImage{
		"field.image": testCube([]int{10, 10, 1, 5}),
		"field.mask":  testCube([]int{10, 10, 1, 5}),
	}}

	ref, compatible, divergent, err := GroupArtifacts(op, "field", append([]string{"image"}, DefaultArtifacts...))
	require.NoError(t, err)
	require.Equal(t, []int{10, 10, 1, 5}, ref.Shape)
	require.Equal(t, []string{"image", "mask"}, compatible)
	require.Empty(t, divergent)
}

func TestGroupArtifactsNoneExist(t *testing.T) {
	op := &image.MemOpener{Images: map[string]*image.MemImage{}}
	_, _, _, err := GroupArtifacts(op, "field", []string{"image", "mask"})
	require.Error(t, err)
}

func TestGroupArtifactsSnapshotCarriesMetadata(t *testing.T) {
	img := testCube([]int{10, 10, 1, 5})
	img.Meta = map[string]image.Value{"unit": image.Text("Jy/beam")}
	op := &image.MemOpener{Images: map[string]*image.MemImage{"field.image": img}}

	ref, _, _, err := GroupArtifacts(op, "field", []string{"image"})
	require.NoError(t, err)
	require.Equal(t, "Jy/beam", ref.Attrs["unit"])
	require.Equal(t, []string{"d0", "d1", "stokes", "frequency"}, ref.Dims)
	require.Contains(t, ref.Coords, "frequency")
}
