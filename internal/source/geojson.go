package source

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/wildfire-cli/internal/model"
)

// ReadGeoJSON reads a GeoJSON FeatureCollection into a dataset. The schema
// is the sorted union of property keys, sanitized and made unique; a
// property is an integer field when every value is integral, real when
// every value is numeric, and text otherwise. Nested values are stored as
// their JSON text.
func ReadGeoJSON(path, name string) (*model.Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: read geojson %s", path)
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrapf(err, "source: decode geojson %s", path)
	}

	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	types := map[string]model.FieldType{}
	for _, f := range fc.Features {
		for k, v := range f.Properties {
			types[k] = widen(types[k], v)
		}
	}
	keys := make([]string, 0, len(types))
	for k := range types {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ds := &model.Dataset{Name: name, Kind: model.KindSource}
	props := make([]string, 0, len(keys))
	for _, k := range keys {
		typ := types[k]
		if typ == "" {
			typ = model.FieldText
		}
		addField(ds, k, typ)
		props = append(props, k)
	}

	var fid int64
	for _, f := range fc.Features {
		if f.Geometry == nil || f.Geometry.Empty() {
			continue
		}
		attrs := make(map[string]any, len(ds.Fields))
		for i, field := range ds.Fields {
			attrs[field.Name] = convert(f.Properties[props[i]], field.Type)
		}
		fid++
		ds.Features = append(ds.Features, model.Feature{FID: fid, Geometry: f.Geometry, Attributes: attrs})
	}

	return ds, nil
}

// widen returns the narrowest field type able to hold both the current
// type and v. An empty current type means no non-null value seen yet.
func widen(current model.FieldType, v any) model.FieldType {
	if v == nil {
		return current
	}
	var next model.FieldType
	switch n := v.(type) {
	case float64:
		if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
			next = model.FieldInteger
		} else {
			next = model.FieldReal
		}
	default:
		return model.FieldText
	}

	switch {
	case current == "":
		return next
	case current == model.FieldText || next == model.FieldText:
		return model.FieldText
	case current == model.FieldReal || next == model.FieldReal:
		return model.FieldReal
	default:
		return model.FieldInteger
	}
}

func convert(v any, typ model.FieldType) any {
	if v == nil {
		return nil
	}
	switch typ {
	case model.FieldInteger:
		if n, ok := v.(float64); ok {
			return int64(n)
		}
	case model.FieldReal:
		if n, ok := v.(float64); ok {
			return n
		}
	}
	switch s := v.(type) {
	case string:
		return s
	case bool, float64:
		b, _ := json.Marshal(s)
		return string(b)
	default:
		b, err := json.Marshal(s)
		if err != nil {
			return nil
		}
		return string(b)
	}
}
