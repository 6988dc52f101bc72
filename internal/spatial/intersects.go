// Package spatial provides the geometric predicates and constructions used by
// the local geospatial engine: intersection tests and geodesic point buffers.
package spatial

import (
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"
)

// parts is a geometry broken down into XY primitives.
type parts struct {
	points   []geom.Coord
	lines    [][]float64   // flat XY coordinates per linestring
	polygons [][][]float64 // flat XY coordinates per ring, outer ring first
}

// Intersects reports whether a and b share at least one point. Boundaries
// count: a point on a polygon edge intersects the polygon.
func Intersects(a, b geom.T) bool {
	if a == nil || b == nil || a.Empty() || b.Empty() {
		return false
	}
	if !a.Bounds().Overlaps(geom.XY, b.Bounds()) {
		return false
	}

	pa, pb := decompose(a), decompose(b)

	for _, p := range pa.points {
		if pb.containsPoint(p) {
			return true
		}
	}
	for _, p := range pb.points {
		if pa.containsPoint(p) {
			return true
		}
	}

	segsA, segsB := pa.segments(), pb.segments()
	for _, sa := range segsA {
		for _, sb := range segsB {
			if segmentsIntersect(sa, sb) {
				return true
			}
		}
	}

	// No edge crossings: one side may still lie wholly inside the other.
	for _, c := range pa.firstVertices() {
		if pb.inArea(c) {
			return true
		}
	}
	for _, c := range pb.firstVertices() {
		if pa.inArea(c) {
			return true
		}
	}
	return false
}

// IntersectsAny reports whether g intersects at least one of others.
func IntersectsAny(g geom.T, others []geom.T) bool {
	for _, o := range others {
		if Intersects(g, o) {
			return true
		}
	}
	return false
}

func decompose(g geom.T) parts {
	var p parts
	if gc, ok := g.(*geom.GeometryCollection); ok {
		for _, sub := range gc.Geoms() {
			sp := decompose(sub)
			p.points = append(p.points, sp.points...)
			p.lines = append(p.lines, sp.lines...)
			p.polygons = append(p.polygons, sp.polygons...)
		}
		return p
	}

	stride := g.Stride()
	flat := g.FlatCoords()

	switch t := g.(type) {
	case *geom.Point:
		p.points = append(p.points, geom.Coord{flat[0], flat[1]})
	case *geom.MultiPoint:
		for i := 0; i+1 < len(flat); i += stride {
			p.points = append(p.points, geom.Coord{flat[i], flat[i+1]})
		}
	case *geom.LineString:
		p.lines = append(p.lines, toXY(flat, stride))
	case *geom.LinearRing:
		p.lines = append(p.lines, toXY(flat, stride))
	case *geom.MultiLineString:
		offset := 0
		for _, end := range t.Ends() {
			p.lines = append(p.lines, toXY(flat[offset:end], stride))
			offset = end
		}
	case *geom.Polygon:
		p.polygons = append(p.polygons, rings(flat, 0, t.Ends(), stride))
	case *geom.MultiPolygon:
		offset := 0
		for _, ends := range t.Endss() {
			if len(ends) == 0 {
				continue
			}
			p.polygons = append(p.polygons, rings(flat, offset, ends, stride))
			offset = ends[len(ends)-1]
		}
	}
	return p
}

func rings(flat []float64, offset int, ends []int, stride int) [][]float64 {
	out := make([][]float64, 0, len(ends))
	for _, end := range ends {
		out = append(out, toXY(flat[offset:end], stride))
		offset = end
	}
	return out
}

func toXY(flat []float64, stride int) []float64 {
	if stride == 2 {
		return flat
	}
	out := make([]float64, 0, len(flat)/stride*2)
	for i := 0; i+1 < len(flat); i += stride {
		out = append(out, flat[i], flat[i+1])
	}
	return out
}

// containsPoint reports whether c lies on any primitive of p.
func (p parts) containsPoint(c geom.Coord) bool {
	for _, q := range p.points {
		if q.Equal(geom.XY, c) {
			return true
		}
	}
	for _, line := range p.lines {
		if len(line) >= 4 && xy.IsOnLine(geom.XY, c, line) {
			return true
		}
	}
	return p.inArea(c)
}

// inArea reports whether c lies inside or on the boundary of any polygon.
func (p parts) inArea(c geom.Coord) bool {
	for _, poly := range p.polygons {
		if inPolygon(c, poly) {
			return true
		}
	}
	return false
}

func inPolygon(c geom.Coord, rings [][]float64) bool {
	if len(rings) == 0 || len(rings[0]) < 8 {
		return false
	}
	if !xy.IsPointInRing(geom.XY, c, rings[0]) {
		return false
	}
	for _, hole := range rings[1:] {
		if len(hole) < 8 {
			continue
		}
		if xy.LocatePointInRing(geom.XY, c, hole) == location.Interior {
			return false
		}
	}
	return true
}

type segment struct {
	a, b geom.Coord
}

func (p parts) segments() []segment {
	var segs []segment
	add := func(line []float64) {
		for i := 0; i+3 < len(line); i += 2 {
			segs = append(segs, segment{
				a: geom.Coord{line[i], line[i+1]},
				b: geom.Coord{line[i+2], line[i+3]},
			})
		}
	}
	for _, line := range p.lines {
		add(line)
	}
	for _, poly := range p.polygons {
		for _, ring := range poly {
			add(ring)
		}
	}
	return segs
}

func (p parts) firstVertices() []geom.Coord {
	var out []geom.Coord
	for _, line := range p.lines {
		if len(line) >= 2 {
			out = append(out, geom.Coord{line[0], line[1]})
		}
	}
	for _, poly := range p.polygons {
		if len(poly) > 0 && len(poly[0]) >= 2 {
			out = append(out, geom.Coord{poly[0][0], poly[0][1]})
		}
	}
	return out
}

func segmentsIntersect(s1, s2 segment) bool {
	return xy.DistanceFromLineToLine(s1.a, s1.b, s2.a, s2.b) == 0
}
