package zarr

import (
	"encoding/json"
	"testing"
)

// https://zarr.readthedocs.io/en/stable/spec/v2.html#metadata
const specExample = `{
  "chunks": [
    1000,
    1000
  ],
	"compressor": {
			"id": "blosc",
			"cname": "lz4",
			"clevel": 5,
			"shuffle": 1
	},
	"dtype": "<f8",
	"fill_value": "NaN",
	"filters": [
			{"id": "delta", "dtype": "<f8", "astype": "<f4"}
	],
	"order": "C",
	"shape": [
			10000,
			10000
	],
	"zarr_format": 2
}`

func TestMetadataSerialization(t *testing.T) {
	m := &ArrayMeta{}
	if err := json.Unmarshal([]byte(specExample), m); err != nil {
		t.Fatal(err)
	}
	if m.Compressor == nil || m.Compressor.ID != "blosc" {
		t.Errorf("unexpected compressor: %#v", m.Compressor)
	}
	if m.Dtype.String() != "<f8" {
		t.Errorf("unexpected dtype: %s", m.Dtype)
	}
	if len(m.Shape) != 2 || m.Shape[0] != 10000 {
		t.Errorf("unexpected shape: %v", m.Shape)
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	m := &ArrayMeta{
		ZarrFormat: Format,
		Shape:      []int{10, 10, 1, 5},
		Chunks:     []int{10, 10, 1, 1},
		Dtype:      Dtype{ByteOrder: BOLittleEndian, BasicType: BTFloatingPoint, ByteSize: 4},
		Compressor: DefaultCompression(),
		FillValue:  FillValueNaN,
		Order:      "C",
	}
	d, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	back := &ArrayMeta{}
	if err := json.Unmarshal(d, back); err != nil {
		t.Fatal(err)
	}
	if back.Dtype != m.Dtype {
		t.Errorf("dtype changed over round trip: %s != %s", back.Dtype, m.Dtype)
	}
	if back.Compressor.Clevel != 2 {
		t.Errorf("unexpected clevel: %d", back.Compressor.Clevel)
	}
}

func TestConsolidatedMetadataDecode(t *testing.T) {
	doc := `{
		"zarr_consolidated_format": 1,
		"metadata": {
			".zgroup": {"zarr_format": 2},
			".zattrs": {"object": "field"},
			"image/.zarray": ` + specExample + `,
			"image/.zattrs": {"_ARRAY_DIMENSIONS": ["d0", "d1"]}
		}
	}`
	cm := &ConsolidatedMetadata{}
	if err := json.Unmarshal([]byte(doc), cm); err != nil {
		t.Fatal(err)
	}
	if len(cm.Metadata) != 4 {
		t.Errorf("expected 4 metadata entries, got %d", len(cm.Metadata))
	}
	if _, ok := cm.Metadata["image/.zarray"].(*ArrayMeta); !ok {
		t.Errorf("expected image/.zarray to decode as ArrayMeta")
	}
}

func TestConsolidatedMetadataRoundTrip(t *testing.T) {
	cm := ConsolidatedMetadata{
		ConsolidatedFormat: ConsolidatedFormat,
		Metadata: map[string]MetaTyper{
			".zgroup": Group{ZarrFormat: Format},
			".zattrs": Attributes{"object": "field"},
			"image/.zarray": &ArrayMeta{
				ZarrFormat: Format,
				Shape:      []int{10, 10, 1, 5},
				Chunks:     []int{10, 10, 1, 1},
				Dtype:      Dtype{ByteOrder: BOLittleEndian, BasicType: BTFloatingPoint, ByteSize: 4},
				Compressor: DefaultCompression(),
				FillValue:  FillValueNaN,
				Order:      "C",
			},
		},
	}

	d, err := json.Marshal(cm)
	if err != nil {
		t.Fatal(err)
	}
	back := &ConsolidatedMetadata{}
	if err := json.Unmarshal(d, back); err != nil {
		t.Fatal(err)
	}

	if back.ConsolidatedFormat != ConsolidatedFormat {
		t.Errorf("format changed over round trip: %d", back.ConsolidatedFormat)
	}
	arr, ok := back.Metadata["image/.zarray"].(*ArrayMeta)
	if !ok {
		t.Fatal("expected image/.zarray to decode as ArrayMeta")
	}
	if arr.Shape[3] != 5 || arr.Compressor == nil || arr.Compressor.ID != "zstd" {
		t.Errorf("array metadata changed over round trip: %#v", arr)
	}
	if grp, ok := back.Metadata[".zgroup"].(Group); !ok || grp.ZarrFormat != Format {
		t.Errorf("group metadata changed over round trip: %#v", back.Metadata[".zgroup"])
	}
}

func TestKeyMetaType(t *testing.T) {
	cases := []struct {
		key  string
		want MetaType
		ok   bool
	}{
		{"image/.zarray", MTArray, true},
		{".zgroup", MTGroup, true},
		{"a/b/.zattrs", MTAttributes, true},
		{"image/0.0.0", "", false},
		{"short", "", false},
	}
	for _, c := range cases {
		mt, ok := KeyMetaType(c.key)
		if ok != c.ok || (ok && mt != c.want) {
			t.Errorf("KeyMetaType(%q) = %q, %v", c.key, mt, ok)
		}
	}
}
