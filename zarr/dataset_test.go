package zarr

import (
	"encoding/json"
	"io"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func channelDataset(ch int, vals []float32) *Dataset {
	return &Dataset{
		Vars: map[string]Variable{
			"image": {Dims: []string{"d0", "d1", "frequency"}, Shape: []int{2, 2, 1}, Values: vals},
		},
		Coords: map[string]Variable{
			"frequency": {Dims: []string{"frequency"}, Shape: []int{1}, Values: []float64{1.4e9 + float64(ch)*1e6}},
			"stokes":    {Dims: []string{"stokes"}, Shape: []int{1}, Values: []float64{1}},
		},
	}
}

func TestCreateAppendReadDataset(t *testing.T) {
	store := NewMemoryStore()
	enc := map[string]*CompressionMeta{"image": DefaultCompression()}

	ds0 := channelDataset(0, []float32{0, 1, 2, 3})
	ds0.Attrs = Attributes{"object": "test field"}
	require.NoError(t, CreateDataset(store, ds0, enc))

	for ch := 1; ch < 3; ch++ {
		base := float32(ch * 4)
		require.NoError(t, AppendDataset(store, channelDataset(ch, []float32{base, base + 1, base + 2, base + 3}), "frequency"))
	}

	got, err := ReadDataset(store)
	require.NoError(t, err)

	img := got.Vars["image"]
	require.Equal(t, []int{2, 2, 3}, img.Shape)
	require.Equal(t, []string{"d0", "d1", "frequency"}, img.Dims)
	// appended channels interleave along the trailing frequency axis
	want := []float32{
		0, 4, 8, 1, 5, 9,
		2, 6, 10, 3, 7, 11,
	}
	if diff := cmp.Diff(want, img.Values.([]float32)); diff != "" {
		t.Errorf("image values mismatch (-want +got):\n%s", diff)
	}

	freq := got.Vars["frequency"]
	require.Equal(t, []int{3}, freq.Shape)
	require.Equal(t, []float64{1.4e9, 1.4e9 + 1e6, 1.4e9 + 2e6}, freq.Values.([]float64))

	// fixed-at-create variables are untouched by appends
	stokes := got.Vars["stokes"]
	require.Equal(t, []int{1}, stokes.Shape)

	require.Equal(t, "test field", got.Attrs["object"])
}

func TestCreateDatasetWritesCompressedChunks(t *testing.T) {
	store := NewMemoryStore()
	ds := channelDataset(0, []float32{0, 1, 2, 3})
	require.NoError(t, CreateDataset(store, ds, map[string]*CompressionMeta{"image": DefaultCompression()}))

	meta := &ArrayMeta{}
	require.NoError(t, getJSON(store, "image/.zarray", meta))
	require.NotNil(t, meta.Compressor)
	require.Equal(t, "zstd", meta.Compressor.ID)
	require.Equal(t, 2, meta.Compressor.Clevel)
	require.Equal(t, 0, meta.Compressor.Shuffle)
	require.Equal(t, "<f4", meta.Dtype.String())

	// raw chunk bytes must not be the plain encoding
	f, err := store.Get("image/0.0.0")
	require.NoError(t, err)
	raw, err := io.ReadAll(f)
	require.NoError(t, err)
	require.NotEqual(t, 16, len(raw))

	// coordinates are stored uncompressed
	fm := &ArrayMeta{}
	require.NoError(t, getJSON(store, "frequency/.zarray", fm))
	require.Nil(t, fm.Compressor)
}

func TestReadDatasetClosesChunkFiles(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	enc := map[string]*CompressionMeta{"image": DefaultCompression()}
	require.NoError(t, CreateDataset(store, channelDataset(0, []float32{0, 1, 2, 3}), enc))
	for ch := 1; ch < 20; ch++ {
		base := float32(ch * 4)
		require.NoError(t, AppendDataset(store, channelDataset(ch, []float32{base, base + 1, base + 2, base + 3}), "frequency"))
	}

	before := openFDCount(t)
	got, err := ReadDataset(store)
	require.NoError(t, err)
	require.Equal(t, []int{2, 2, 20}, got.Vars["image"].Shape)
	require.Equal(t, before, openFDCount(t))
}

func openFDCount(t *testing.T) int {
	t.Helper()
	ents, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Skipf("cannot count open files: %v", err)
	}
	return len(ents)
}

func TestAppendDatasetShapeMismatch(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, CreateDataset(store, channelDataset(0, []float32{0, 1, 2, 3}), nil))

	bad := &Dataset{Vars: map[string]Variable{
		"image": {Dims: []string{"d0", "d1", "frequency"}, Shape: []int{3, 2, 1}, Values: make([]float32, 6)},
	}}
	require.Error(t, AppendDataset(store, bad, "frequency"))
}

func TestConsolidate(t *testing.T) {
	store := NewMemoryStore()
	ds := channelDataset(0, []float32{0, 1, 2, 3})
	ds.Attrs = Attributes{"telescope": "ALMA"}
	require.NoError(t, CreateDataset(store, ds, nil))
	require.NoError(t, Consolidate(store))

	f, err := store.Get(string(MTMetadata))
	require.NoError(t, err)
	defer f.Close()

	cm := &ConsolidatedMetadata{}
	require.NoError(t, json.NewDecoder(f).Decode(cm))
	require.Equal(t, 1, cm.ConsolidatedFormat)
	require.Contains(t, cm.Metadata, "image/.zarray")
	require.Contains(t, cm.Metadata, ".zgroup")
	require.Contains(t, cm.Metadata, ".zattrs")

	arr, ok := cm.Metadata["image/.zarray"].(*ArrayMeta)
	require.True(t, ok)
	require.Equal(t, []int{2, 2, 1}, arr.Shape)
}

func TestVariableValidation(t *testing.T) {
	store := NewMemoryStore()
	ds := &Dataset{Vars: map[string]Variable{
		"image": {Dims: []string{"d0"}, Shape: []int{2}, Values: []float32{1, 2, 3}},
	}}
	require.Error(t, CreateDataset(store, ds, nil))
}
