package convert

import (
	"strings"

	"github.com/FedeMPouzols/cngi-prototype/image"
)

// structural/redundant summary keys that never become attributes
var omitKeys = map[string]struct{}{
	"axisnames": {},
	"incr":      {},
	"ndim":      {},
	"refpix":    {},
	"refval":    {},
	"shape":     {},
	"tileshape": {},
	"messages":  {},
}

// FlattenSummary merges an artifact's nested summary metadata and its
// free-text diagnostic messages into one flat attribute mapping. Scalar-valued
// keys are copied lower-cased, nested mappings are flattened to dotted leaf
// keys and stored under their parent key, and any diagnostic line containing a
// "key: value" separator is folded in last-wins. Lines without the separator
// are dropped.
func FlattenSummary(sum *image.Summary) map[string]interface{} {
	attrs := map[string]interface{}{}
	for key, val := range sum.Fields {
		lk := strings.ToLower(key)
		if _, omit := omitKeys[lk]; omit {
			continue
		}
		switch v := val.(type) {
		case image.Scalar:
			attrs[lk] = float64(v)
		case image.Text:
			attrs[lk] = string(v)
		case image.Numbers:
			attrs[lk] = []float64(v)
		case image.Strings:
			attrs[lk] = []string(v)
		case image.Nested:
			attrs[lk] = FlattenNested(v)
		}
	}

	for _, msg := range sum.Messages {
		for _, line := range strings.Split(strings.ToLower(msg), "\n") {
			i := strings.Index(line, ": ")
			if i < 0 {
				continue
			}
			key := normalizeKey(line[:i])
			attrs[key] = strings.TrimSpace(line[i+2:])
		}
	}
	return attrs
}

// FlattenNested reduces a nested mapping to its leaves under dotted keys.
// A mapping that is already flat comes back unchanged.
func FlattenNested(n image.Nested) map[string]interface{} {
	out := map[string]interface{}{}
	flattenInto(out, "", n)
	return out
}

func flattenInto(out map[string]interface{}, prefix string, n image.Nested) {
	for key, val := range n {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		switch v := val.(type) {
		case image.Nested:
			flattenInto(out, full, v)
		case image.Scalar:
			out[full] = float64(v)
		case image.Text:
			out[full] = string(v)
		case image.Numbers:
			out[full] = []float64(v)
		case image.Strings:
			out[full] = []string(v)
		}
	}
}
