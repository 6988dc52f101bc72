// Package source reads input feature datasets (shapefiles and GeoJSON) into
// in-memory datasets ready to be written to a workspace.
package source

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/wildfire-cli/internal/model"
	"github.com/sells-group/wildfire-cli/internal/workspace"
)

// addField appends a field for the source attribute raw and returns its
// stored name: raw sanitized to an identifier, suffixed _1, _2, ... when a
// field of that name (in any case) already exists.
func addField(ds *model.Dataset, raw string, typ model.FieldType) string {
	name := ds.UniqueName(workspace.SanitizeField(raw))
	ds.Fields = append(ds.Fields, model.Field{Name: name, Type: typ})
	return name
}

// Read loads the dataset at path, choosing the reader from the extension.
func Read(path, name string) (*model.Dataset, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return ReadShapefile(path, name)
	case ".geojson", ".json":
		return ReadGeoJSON(path, name)
	default:
		return nil, eris.Errorf("source: unsupported dataset format %q", path)
	}
}
