package convert

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/FedeMPouzols/cngi-prototype/image"
)

func TestFlattenSummaryOmitsStructuralKeys(t *testing.T) {
	sum := &image.Summary{
		Fields: map[string]image.Value{
			"axisnames": image.Strings{"Right Ascension"},
			"incr":      image.Numbers{1e-5},
			"ndim":      image.Scalar(4),
			"refpix":    image.Numbers{5},
			"refval":    image.Numbers{0.5},
			"shape":     image.Numbers{10},
			"tileshape": image.Numbers{10},
			"messages":  image.Text("ignored"),
			"unit":      image.Text("Jy/beam"),
			"axisunits": image.Strings{"rad"},
		},
	}
	attrs := FlattenSummary(sum)
	require.Equal(t, "Jy/beam", attrs["unit"])
	require.Equal(t, []string{"rad"}, attrs["axisunits"])
	for _, omitted := range []string{"axisnames", "incr", "ndim", "refpix", "refval", "shape", "tileshape", "messages"} {
		require.NotContains(t, attrs, omitted)
	}
}

func TestFlattenSummaryNested(t *testing.T) {
	sum := &image.Summary{
		Fields: map[string]image.Value{
			"RestoringBeam": image.Nested{
				"major": image.Nested{"value": image.Scalar(1.5), "unit": image.Text("arcsec")},
				"pa":    image.Scalar(10),
			},
		},
	}
	attrs := FlattenSummary(sum)
	beam, ok := attrs["restoringbeam"].(map[string]interface{})
	require.True(t, ok)
	want := map[string]interface{}{
		"major.value": 1.5,
		"major.unit":  "arcsec",
		"pa":          10.0,
	}
	if diff := cmp.Diff(want, beam); diff != "" {
		t.Errorf("flattened mapping mismatch (-want +got):\n%s", diff)
	}
}

func TestFlattenNestedIdempotent(t *testing.T) {
	flat := image.Nested{
		"a": image.Scalar(1),
		"b": image.Text("two"),
	}
	once := FlattenNested(flat)
	require.Equal(t, map[string]interface{}{"a": 1.0, "b": "two"}, once)

	// no dotted keys, no remaining nested values
	deep := image.Nested{"x": image.Nested{"y": image.Nested{"z": image.Scalar(3)}}}
	out := FlattenNested(deep)
	require.Equal(t, map[string]interface{}{"x.y.z": 3.0}, out)
	for _, v := range out {
		_, nested := v.(map[string]interface{})
		require.False(t, nested)
	}
}

func TestFlattenSummaryMessages(t *testing.T) {
	sum := &image.Summary{
		Fields: map[string]image.Value{},
		Messages: []string{
			"Image Type: Intensity\nnot a key value line",
			"Rest Frequency: 1.42 GHz",
			"Image Type: Cleaned", // later messages overwrite earlier keys
		},
	}
	attrs := FlattenSummary(sum)
	require.Equal(t, "cleaned", attrs["image_type"])
	require.Equal(t, "1.42 ghz", attrs["rest_frequency"])
	require.Len(t, attrs, 2)
}
