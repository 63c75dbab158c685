package zarr

import (
	"encoding/json"
	"fmt"
)

// Format is the zarr storage specification version written by this package.
const Format = 2

type MetaType string

const (
	// MTAttributes stores userland metadata keyed by array name
	MTAttributes MetaType = ".zattrs"
	// MTArray is the key for storing metadata on an array store
	MTArray MetaType = ".zarray"
	// MTGroup is the key for storing group definitions on an array store
	MTGroup MetaType = ".zgroup"
	// MTMetadata is the key for composite metadata
	MTMetadata MetaType = ".zmetadata"
)

// AttrDimensions is the xarray convention for labeling an array's dimensions.
const AttrDimensions = "_ARRAY_DIMENSIONS"

type MetaTyper interface {
	MetaType() MetaType
}

var metaTypes = map[MetaType]struct{}{
	MTAttributes: {},
	MTArray:      {},
	MTGroup:      {},
}

// relies on the fact that all keynames are 7 characters long
func KeyMetaType(s string) (mt MetaType, ok bool) {
	if len(s) < 7 {
		return mt, false
	}
	mt = MetaType(s[len(s)-7:])
	_, ok = metaTypes[mt]
	return mt, ok
}

type Attributes map[string]interface{}

func (Attributes) MetaType() MetaType { return MTAttributes }

// Arrays can be organized into groups which can also contain other groups.
// A group is created by storing group metadata under the ".zgroup" key under
// some logical path.
type Group struct {
	ZarrFormat int `json:"zarr_format"`
}

func (Group) MetaType() MetaType { return MTGroup }

// Each array requires essential configuration metadata to be stored,
// enabling correct interpretation of the stored data.
// This metadata is encoded using JSON and stored as the value of the
// ".zarray" key within an array store.
type ArrayMeta struct {
	// An integer defining the version of the storage specification to which
	// the array store adheres.
	ZarrFormat int `json:"zarr_format"`
	// A list of integers defining the length of each dimension of the array.
	Shape []int `json:"shape"`
	// A list of integers defining the length of each dimension of a chunk of
	// the array. All chunks within a zarr array have the same shape.
	Chunks []int `json:"chunks"`
	// A string following the NumPy array protocol type string format.
	Dtype Dtype `json:"dtype"`
	// The primary compression codec and its configuration parameters, or null
	// if no compressor is to be used.
	Compressor *CompressionMeta `json:"compressor"`
	// A scalar value providing the default value to use for uninitialized
	// portions of the array, or null if no fill_value is to be used.
	FillValue interface{} `json:"fill_value"`
	// Either "C" or "F", defining the layout of bytes within each chunk of the
	// array. "C" means row-major order, i.e., the last dimension varies
	// fastest; "F" means column-major order.
	Order string `json:"order"`
	// A list of codec configurations, or null if no filters are applied.
	Filters []Filter `json:"filters"`
	// If present, either "." or "/", the separator placed between the
	// dimensions of a chunk key. Defaults to ".".
	DimensionSeparator string `json:"dimension_separator,omitempty"`
}

func (a ArrayMeta) MetaType() MetaType { return MTArray }

type Filter struct {
	ID     string `json:"id"`
	Delta  string `json:"delta,omitempty"`
	Dtype  string `json:"dtype,omitempty"`
	AsType string `json:"astype,omitempty"`
}

const (
	// Not a Number
	FillValueNaN = "NaN"
	// Infinity
	FillValueInfinity = "Infinity"
	// -Infinity
	FillValueNegativeInfinity = "-Infinity"
)

// ConsolidatedFormat is the consolidated-metadata layout version written
// under the ".zmetadata" key.
const ConsolidatedFormat = 1

// ConsolidatedMetadata mirrors every .zgroup/.zarray/.zattrs document in the
// hierarchy under a single ".zmetadata" key so readers can open the store
// with one fetch.
type ConsolidatedMetadata struct {
	ConsolidatedFormat int                  `json:"zarr_consolidated_format"`
	Metadata           map[string]MetaTyper `json:"metadata"`
}

var (
	_ json.Marshaler   = ConsolidatedMetadata{}
	_ json.Unmarshaler = (*ConsolidatedMetadata)(nil)
)

// consolidatedMetaDoc is the wire form shared by both encode and decode.
type consolidatedMetaDoc struct {
	ConsolidatedFormat int                        `json:"zarr_consolidated_format"`
	Metadata           map[string]json.RawMessage `json:"metadata"`
}

func (m ConsolidatedMetadata) MarshalJSON() ([]byte, error) {
	doc := consolidatedMetaDoc{
		ConsolidatedFormat: m.ConsolidatedFormat,
		Metadata:           map[string]json.RawMessage{},
	}
	for key, meta := range m.Metadata {
		d, err := json.Marshal(meta)
		if err != nil {
			return nil, fmt.Errorf("writing %q metadata: %w", key, err)
		}
		doc.Metadata[key] = d
	}
	return json.Marshal(doc)
}

func (m *ConsolidatedMetadata) UnmarshalJSON(d []byte) error {
	doc := consolidatedMetaDoc{}
	if err := json.Unmarshal(d, &doc); err != nil {
		return err
	}
	cm := ConsolidatedMetadata{
		ConsolidatedFormat: doc.ConsolidatedFormat,
		Metadata:           map[string]MetaTyper{},
	}

	for key, data := range doc.Metadata {
		kt, ok := KeyMetaType(key)
		if !ok {
			return fmt.Errorf("invalid consolidated metadata key: %q", key)
		}
		meta, err := decodeMetaDoc(kt, data)
		if err != nil {
			return fmt.Errorf("reading %q metadata: %w", key, err)
		}
		cm.Metadata[key] = meta
	}

	*m = cm
	return nil
}

// decodeMetaDoc decodes one metadata document into its concrete type.
func decodeMetaDoc(kt MetaType, data json.RawMessage) (MetaTyper, error) {
	switch kt {
	case MTArray:
		arr := &ArrayMeta{}
		if err := json.Unmarshal(data, arr); err != nil {
			return nil, err
		}
		return arr, nil
	case MTAttributes:
		attr := Attributes{}
		if err := json.Unmarshal(data, &attr); err != nil {
			return nil, err
		}
		return attr, nil
	case MTGroup:
		grp := Group{}
		if err := json.Unmarshal(data, &grp); err != nil {
			return nil, err
		}
		return grp, nil
	default:
		return nil, fmt.Errorf("unsupported metadata type: %q", kt)
	}
}
