package export

import (
	"encoding/json"
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/wildfire-cli/internal/model"
)

// FeatureCollection converts ds to a GeoJSON feature collection. Feature IDs
// are the dataset FIDs.
func FeatureCollection(ds *model.Dataset) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, ds.Len())}
	for _, feat := range ds.Features {
		props := make(map[string]any, len(ds.Fields))
		for _, f := range ds.Fields {
			props[f.Name] = feat.Value(f.Name)
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         strconv.FormatInt(feat.FID, 10),
			Geometry:   feat.Geometry,
			Properties: props,
		})
	}
	return fc
}

func writeGeoJSON(w io.Writer, ds *model.Dataset) error {
	data, err := json.Marshal(FeatureCollection(ds))
	if err != nil {
		return eris.Wrap(err, "geojson export: marshal")
	}
	_, err = w.Write(data)
	return eris.Wrap(err, "geojson export: write")
}
