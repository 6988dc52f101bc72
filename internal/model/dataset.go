package model

import (
	"strconv"
	"strings"

	"github.com/twpayne/go-geom"
)

// FieldType is the storage type of a dataset attribute.
type FieldType string

const (
	FieldText    FieldType = "text"
	FieldInteger FieldType = "integer"
	FieldReal    FieldType = "real"
)

// DatasetKind describes the role a dataset plays in a run.
type DatasetKind string

const (
	KindSource   DatasetKind = "source"
	KindFiltered DatasetKind = "filtered"
	KindBuffer   DatasetKind = "buffer"
	KindEnriched DatasetKind = "enriched"
)

// Field is one attribute column of a dataset.
type Field struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
}

// Feature is a single geometry with its attribute values. Attribute values
// are string, int64, float64, or nil.
type Feature struct {
	FID        int64          `json:"fid"`
	Geometry   geom.T         `json:"-"`
	Attributes map[string]any `json:"attributes"`
}

// Value returns the attribute stored under name, or nil.
func (f Feature) Value(name string) any {
	if f.Attributes == nil {
		return nil
	}
	return f.Attributes[name]
}

// Dataset is a named, ordered collection of features sharing one schema.
type Dataset struct {
	Name     string      `json:"name"`
	Kind     DatasetKind `json:"kind"`
	Fields   []Field     `json:"fields"`
	Features []Feature   `json:"-"`
}

// Len returns the number of features.
func (d *Dataset) Len() int {
	return len(d.Features)
}

// FieldIndex returns the index of the named field (case-insensitive), or -1.
func (d *Dataset) FieldIndex(name string) int {
	for i, f := range d.Fields {
		if strings.EqualFold(f.Name, name) {
			return i
		}
	}
	return -1
}

// HasField reports whether the dataset carries the named field.
func (d *Dataset) HasField(name string) bool {
	return d.FieldIndex(name) >= 0
}

// FieldNames returns the attribute names in schema order.
func (d *Dataset) FieldNames() []string {
	names := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		names[i] = f.Name
	}
	return names
}

// UniqueName returns name, or name_1, name_2, ... whichever is first
// unused by the dataset's fields.
func (d *Dataset) UniqueName(name string) string {
	if !d.HasField(name) {
		return name
	}
	for i := 1; ; i++ {
		candidate := name + "_" + strconv.Itoa(i)
		if !d.HasField(candidate) {
			return candidate
		}
	}
}

// AddField appends a field if no field with the same name exists and
// returns the name under which the field is stored.
func (d *Dataset) AddField(name string, typ FieldType) string {
	if i := d.FieldIndex(name); i >= 0 {
		return d.Fields[i].Name
	}
	d.Fields = append(d.Fields, Field{Name: name, Type: typ})
	return name
}

// GeometryType reports the go-geom type name of the first non-nil geometry.
func (d *Dataset) GeometryType() string {
	for _, f := range d.Features {
		if f.Geometry == nil {
			continue
		}
		switch f.Geometry.(type) {
		case *geom.Point:
			return "Point"
		case *geom.MultiPoint:
			return "MultiPoint"
		case *geom.LineString:
			return "LineString"
		case *geom.MultiLineString:
			return "MultiLineString"
		case *geom.Polygon:
			return "Polygon"
		case *geom.MultiPolygon:
			return "MultiPolygon"
		default:
			return "Geometry"
		}
	}
	return ""
}
