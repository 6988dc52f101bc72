package spatial

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// EarthRadiusMeters is the mean Earth radius (IUGG) used for geodesic math.
const EarthRadiusMeters = 6371008.8

// DefaultSegments is the number of vertices used to approximate a circle.
const DefaultSegments = 64

// ErrUnsupportedGeometry is returned when a buffer is requested for a
// geometry type other than Point or MultiPoint.
var ErrUnsupportedGeometry = eris.New("spatial: unsupported geometry for buffer")

// Buffer returns the polygon covering every location within meters of g,
// computed on a sphere in longitude/latitude degrees. Points yield a
// Polygon; MultiPoints yield a MultiPolygon with one circle per point and
// no dissolve between overlapping circles.
func Buffer(g geom.T, meters float64, segments int) (geom.T, error) {
	if g == nil {
		return nil, eris.Wrap(ErrUnsupportedGeometry, "nil geometry")
	}
	if meters <= 0 || math.IsNaN(meters) || math.IsInf(meters, 0) {
		return nil, eris.Errorf("spatial: buffer distance must be positive, got %v", meters)
	}
	if segments < 4 {
		segments = DefaultSegments
	}

	switch t := g.(type) {
	case *geom.Point:
		ring := Circle(geom.Coord{t.X(), t.Y()}, meters, segments)
		return geom.NewPolygonFlat(geom.XY, ring, []int{len(ring)}).SetSRID(g.SRID()), nil
	case *geom.MultiPoint:
		mp := geom.NewMultiPolygon(geom.XY).SetSRID(g.SRID())
		for i := 0; i < t.NumPoints(); i++ {
			pt := t.Point(i)
			if pt.Empty() {
				continue
			}
			ring := Circle(geom.Coord{pt.X(), pt.Y()}, meters, segments)
			if err := mp.Push(geom.NewPolygonFlat(geom.XY, ring, []int{len(ring)})); err != nil {
				return nil, eris.Wrap(err, "spatial: push buffer polygon")
			}
		}
		return mp, nil
	default:
		return nil, ErrUnsupportedGeometry
	}
}

// Circle returns a closed ring of flat XY coordinates approximating the
// geodesic circle of radius meters around center (longitude, latitude).
// Vertices run clockwise starting due north.
func Circle(center geom.Coord, meters float64, segments int) []float64 {
	lon1 := center[0] * math.Pi / 180
	lat1 := center[1] * math.Pi / 180
	delta := meters / EarthRadiusMeters

	ring := make([]float64, 0, (segments+1)*2)
	for i := 0; i < segments; i++ {
		bearing := 2 * math.Pi * float64(i) / float64(segments)
		lat2 := math.Asin(math.Sin(lat1)*math.Cos(delta) + math.Cos(lat1)*math.Sin(delta)*math.Cos(bearing))
		lon2 := lon1 + math.Atan2(
			math.Sin(bearing)*math.Sin(delta)*math.Cos(lat1),
			math.Cos(delta)-math.Sin(lat1)*math.Sin(lat2),
		)
		ring = append(ring, normalizeLon(lon2*180/math.Pi), lat2*180/math.Pi)
	}
	return append(ring, ring[0], ring[1])
}

// HaversineMeters returns the great-circle distance between two
// longitude/latitude coordinates.
func HaversineMeters(a, b geom.Coord) float64 {
	lat1 := a[1] * math.Pi / 180
	lat2 := b[1] * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b[0] - a[0]) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

func normalizeLon(lon float64) float64 {
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}
