package source

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/wildfire-cli/internal/model"
)

// ReadShapefile reads a shapefile into a dataset named name. Attribute
// types follow the DBF field types; string attributes are decoded with the
// code page declared in the .cpg sidecar when one exists. Records whose
// shape is null or unsupported are skipped.
func ReadShapefile(shpPath, name string) (*model.Dataset, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "source: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	dec, err := codePageDecoder(shpPath)
	if err != nil {
		return nil, err
	}

	if name == "" {
		name = strings.TrimSuffix(filepath.Base(shpPath), filepath.Ext(shpPath))
	}

	dbfFields := reader.Fields()
	ds := &model.Dataset{
		Name:   name,
		Kind:   model.KindSource,
		Fields: make([]model.Field, 0, len(dbfFields)),
	}
	for _, f := range dbfFields {
		addField(ds, strings.TrimRight(f.String(), "\x00"), dbfFieldType(f))
	}

	var skipped, badValues int
	var fid int64

	for reader.Next() {
		_, shape := reader.Shape()
		g := ShapeToGeom(shape)
		if g == nil {
			skipped++
			continue
		}

		attrs := make(map[string]any, len(ds.Fields))
		for i, field := range ds.Fields {
			raw := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			if dec != nil && field.Type == model.FieldText && raw != "" {
				if decoded, decErr := dec.String(raw); decErr == nil {
					raw = decoded
				}
			}
			val, ok := parseValue(raw, field.Type)
			if !ok {
				badValues++
			}
			attrs[field.Name] = val
		}

		fid++
		ds.Features = append(ds.Features, model.Feature{
			FID:        fid,
			Geometry:   g,
			Attributes: attrs,
		})
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "source: read shapefile %s", shpPath)
	}

	if skipped > 0 || badValues > 0 {
		zap.L().Debug("source: skipped shapefile content",
			zap.String("dataset", name),
			zap.Int("skipped_records", skipped),
			zap.Int("unparsed_values", badValues),
		)
	}

	return ds, nil
}

func dbfFieldType(f shp.Field) model.FieldType {
	switch f.Fieldtype {
	case 'N':
		if f.Precision == 0 {
			return model.FieldInteger
		}
		return model.FieldReal
	case 'F', 'O':
		return model.FieldReal
	case 'I':
		return model.FieldInteger
	default:
		return model.FieldText
	}
}

// parseValue converts a raw DBF string into the field's Go type. Empty
// values become nil. The bool result is false when a non-empty value could
// not be parsed; the value is then nil.
func parseValue(raw string, typ model.FieldType) (any, bool) {
	if raw == "" {
		return nil, true
	}
	switch typ {
	case model.FieldInteger:
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n, true
		}
		// Some writers emit "12.0" into zero-precision numeric fields.
		if f, err := strconv.ParseFloat(raw, 64); err == nil && f == float64(int64(f)) {
			return int64(f), true
		}
		return nil, false
	case model.FieldReal:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f, true
		}
		return nil, false
	default:
		return raw, true
	}
}
