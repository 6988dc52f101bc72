package source

import (
	"github.com/jonas-p/go-shp"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"
)

// ShapeToGeom converts a go-shp geometry to a go-geom geometry in XY layout
// with SRID 4326. Z and M values are dropped. Returns nil for null,
// unsupported, or empty shapes.
func ShapeToGeom(shape shp.Shape) geom.T {
	if shape == nil {
		return nil
	}

	switch s := shape.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}).SetSRID(4326)
	case *shp.PointZ:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}).SetSRID(4326)
	case *shp.PointM:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}).SetSRID(4326)
	case *shp.MultiPoint:
		return multiPoint(s.Points)
	case *shp.MultiPointZ:
		return multiPoint(s.Points)
	case *shp.PolyLine:
		return multiLineString(s.NumParts, s.Parts, s.Points)
	case *shp.PolyLineZ:
		return multiLineString(s.NumParts, s.Parts, s.Points)
	case *shp.Polygon:
		return multiPolygon(s.NumParts, s.Parts, s.Points)
	case *shp.PolygonZ:
		return multiPolygon(s.NumParts, s.Parts, s.Points)
	default:
		return nil
	}
}

func multiPoint(points []shp.Point) geom.T {
	if len(points) == 0 {
		return nil
	}
	flat := make([]float64, 0, len(points)*2)
	for _, p := range points {
		flat = append(flat, p.X, p.Y)
	}
	return geom.NewMultiPointFlat(geom.XY, flat).SetSRID(4326)
}

// partRanges returns the [start, end) point index range of each part.
func partRanges(numParts int32, parts []int32, numPoints int) [][2]int {
	out := make([][2]int, 0, numParts)
	for i := int32(0); i < numParts && int(i) < len(parts); i++ {
		start := int(parts[i])
		end := numPoints
		if i+1 < numParts && int(i+1) < len(parts) {
			end = int(parts[i+1])
		}
		if start < 0 || end > numPoints || start >= end {
			continue
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

func partFlat(points []shp.Point, r [2]int) []float64 {
	flat := make([]float64, 0, (r[1]-r[0])*2)
	for _, p := range points[r[0]:r[1]] {
		flat = append(flat, p.X, p.Y)
	}
	return flat
}

func multiLineString(numParts int32, parts []int32, points []shp.Point) geom.T {
	if numParts == 0 || len(points) == 0 {
		return nil
	}

	mls := geom.NewMultiLineString(geom.XY).SetSRID(4326)
	for i, r := range partRanges(numParts, parts, len(points)) {
		ls := geom.NewLineStringFlat(geom.XY, partFlat(points, r))
		if err := mls.Push(ls); err != nil {
			zap.L().Debug("source: skipping malformed linestring part", zap.Int("part", i), zap.Error(err))
		}
	}

	if mls.NumLineStrings() == 0 {
		return nil
	}
	return mls
}

// multiPolygon groups shapefile rings into polygons. Shapefile outer rings
// are clockwise and holes counter-clockwise; each hole is attached to the
// most recent outer ring. A leading counter-clockwise ring with no outer
// ring before it is treated as an outer ring.
func multiPolygon(numParts int32, parts []int32, points []shp.Point) geom.T {
	if numParts == 0 || len(points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)
	var current *geom.Polygon

	flush := func() {
		if current == nil {
			return
		}
		if err := mp.Push(current); err != nil {
			zap.L().Debug("source: skipping malformed polygon", zap.Error(err))
		}
		current = nil
	}

	for i, r := range partRanges(numParts, parts, len(points)) {
		flat := partFlat(points, r)
		if len(flat) < 8 {
			zap.L().Debug("source: skipping degenerate ring", zap.Int("part", i))
			continue
		}
		ring := geom.NewLinearRingFlat(geom.XY, flat)
		isHole := xy.IsRingCounterClockwise(geom.XY, flat)

		if !isHole || current == nil {
			flush()
			current = geom.NewPolygon(geom.XY)
		}
		if err := current.Push(ring); err != nil {
			zap.L().Debug("source: skipping malformed ring", zap.Int("part", i), zap.Error(err))
		}
	}
	flush()

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}
