package zarrstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

const zarrFormat = 2

// dimensionsAttr is the xarray convention attribute that names the
// dimensions of an array.
const dimensionsAttr = "_ARRAY_DIMENSIONS"

// arrayMetadata builds the .zarray document of an array.
func arrayMetadata(a *Array) map[string]interface{} {
	var compressor interface{}
	if a.Compressor != nil {
		compressor = a.Compressor.Config()
	}
	var filters interface{}
	if len(a.Filters) > 0 {
		configs := make([]map[string]interface{}, len(a.Filters))
		for i, f := range a.Filters {
			configs[i] = f.Config()
		}
		filters = configs
	}
	return map[string]interface{}{
		"zarr_format": zarrFormat,
		"dtype":       a.DType,
		"shape":       a.Shape,
		"chunks":      a.Chunks,
		"fill_value":  encodeFillValue(a.FillValue),
		"compressor":  compressor,
		"filters":     filters,
		"order":       a.Order,
	}
}

// encodeFillValue maps non-finite floats onto the string spellings Zarr
// v2 mandates, since JSON has no literal for them.
func encodeFillValue(v interface{}) interface{} {
	f, ok := v.(float64)
	if !ok {
		if f32, ok32 := v.(float32); ok32 {
			f = float64(f32)
		} else {
			return v
		}
	}
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return f
}

// arrayAttrsDocument builds the .zattrs document of an array, with the
// dimension names listed first.
func arrayAttrsDocument(a *Array) map[string]interface{} {
	attrs := map[string]interface{}{dimensionsAttr: a.Dims}
	for k, v := range a.Attrs {
		attrs[k] = v
	}
	return attrs
}

func groupMetadata() map[string]interface{} {
	return map[string]interface{}{"zarr_format": zarrFormat}
}

func (s *Store) attrsDocument() map[string]interface{} {
	if s.attrs == nil {
		return map[string]interface{}{}
	}
	return s.attrs
}

// consolidatedMetadata assembles the .zmetadata document holding every
// metadata key of the store in one place.
func (s *Store) consolidatedMetadata() ([]byte, error) {
	meta := map[string]interface{}{
		GroupKey: groupMetadata(),
		AttrsKey: s.attrsDocument(),
	}
	for _, name := range s.arrayOrd {
		a := s.arrays[name]
		meta[name+"/"+ArrayKey] = arrayMetadata(a)
		meta[name+"/"+AttrsKey] = arrayAttrsDocument(a)
	}
	return jsonBytes(map[string]interface{}{
		"zarr_consolidated_format": 1,
		"metadata":                 meta,
	})
}

// jsonBytes renders a metadata document with two-space indentation and
// unescaped text, matching what reference Zarr writers produce.
func jsonBytes(doc interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
