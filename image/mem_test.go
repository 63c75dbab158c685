package image

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func cube() *MemImage {
	return &MemImage{
		Names:  []string{"Right Ascension", "Declination", "Frequency"},
		Units:  []string{"rad", "rad", "Hz"},
		Extent: []int{3, 2, 4},
		RefPix: []float64{1, 1, 0},
		RefVal: []float64{0.5, -0.3, 1e9},
		Incr:   []float64{-1e-5, 1e-5, 1e6},
	}
}

func TestMemImageChunkFullRange(t *testing.T) {
	img := cube()
	blc := []int{FullRange, FullRange, FullRange}
	data, err := img.Chunk(blc, blc)
	require.NoError(t, err)
	require.Len(t, data, 24)
	for i, v := range data {
		require.Equal(t, float32(i), v)
	}
}

func TestMemImageChunkChannelSlab(t *testing.T) {
	img := cube()
	blc := []int{FullRange, FullRange, 2}
	trc := []int{FullRange, FullRange, 2}
	data, err := img.Chunk(blc, trc)
	require.NoError(t, err)
	require.Len(t, data, 6)
	// row-major source index with the frequency axis pinned at 2
	for i := 0; i < 3; i++ {
		for j := 0; j < 2; j++ {
			require.Equal(t, float32(i*8+j*4+2), data[i*2+j])
		}
	}
}

func TestMemImageChunkOutOfRange(t *testing.T) {
	img := cube()
	_, err := img.Chunk([]int{0, 0, 4}, []int{0, 0, 4})
	require.Error(t, err)
	_, err = img.Chunk([]int{0, 0}, []int{0, 0})
	require.Error(t, err)
}

func TestMemImageClosedHandle(t *testing.T) {
	img := cube()
	require.NoError(t, img.Close())
	blc := []int{FullRange, FullRange, FullRange}
	_, err := img.Chunk(blc, blc)
	require.Error(t, err)

	// opening through the opener hands out a fresh handle
	op := &MemOpener{Images: map[string]*MemImage{"a.image": img}}
	opened, err := op.Open("a.image")
	require.NoError(t, err)
	defer opened.Close()
	_, err = opened.Chunk(blc, blc)
	require.NoError(t, err)
}

func TestLinearCoordSys(t *testing.T) {
	img := cube()
	cs, err := img.CoordSys()
	require.NoError(t, err)

	world, err := cs.ToWorldMany([][]float64{{0, 1, 2}, {0, 0, 0}, {0, 0, 0}})
	require.NoError(t, err)
	require.Len(t, world, 3)
	require.InDelta(t, 0.5+1e-5, world[0][0], 1e-12)
	require.InDelta(t, 0.5, world[0][1], 1e-12)
	require.InDelta(t, 0.5-1e-5, world[0][2], 1e-12)

	_, err = cs.ToWorldMany([][]float64{{0}})
	require.Error(t, err)
}
