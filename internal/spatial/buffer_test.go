package spatial

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func TestBuffer_PointRadius(t *testing.T) {
	center := geom.Coord{-120.5, 38.2}
	g, err := Buffer(point(center[0], center[1]), 500, 32)
	require.NoError(t, err)

	poly, ok := g.(*geom.Polygon)
	require.True(t, ok)
	require.Equal(t, 1, poly.NumLinearRings())

	ring := poly.LinearRing(0)
	assert.Equal(t, 33, ring.NumCoords(), "closed ring repeats the first vertex")
	assert.Equal(t, ring.Coord(0), ring.Coord(32))

	for i := 0; i < ring.NumCoords(); i++ {
		assert.InDelta(t, 500, HaversineMeters(center, ring.Coord(i)), 0.5)
	}
}

func TestBuffer_ContainsCenterAndExcludesFarPoints(t *testing.T) {
	g, err := Buffer(point(-120.5, 38.2), 1000, 0)
	require.NoError(t, err)

	assert.True(t, Intersects(point(-120.5, 38.2), g))
	// ~0.005 deg latitude is ~556 m.
	assert.True(t, Intersects(point(-120.5, 38.205), g))
	// ~0.02 deg latitude is ~2.2 km.
	assert.False(t, Intersects(point(-120.5, 38.22), g))
}

func TestBuffer_MultiPointKeepsOneCirclePerPoint(t *testing.T) {
	mp := geom.NewMultiPoint(geom.XY)
	require.NoError(t, mp.Push(point(0, 0)))
	require.NoError(t, mp.Push(point(0, 0.001)))

	g, err := Buffer(mp, 500, 16)
	require.NoError(t, err)

	out, ok := g.(*geom.MultiPolygon)
	require.True(t, ok)
	assert.Equal(t, 2, out.NumPolygons(), "overlapping circles are not dissolved")
}

func TestBuffer_Errors(t *testing.T) {
	_, err := Buffer(point(0, 0), 0, 16)
	assert.Error(t, err)

	_, err = Buffer(point(0, 0), -5, 16)
	assert.Error(t, err)

	_, err = Buffer(square(0, 0, 1, 1), 100, 16)
	assert.ErrorIs(t, err, ErrUnsupportedGeometry)

	_, err = Buffer(nil, 100, 16)
	assert.Error(t, err)
}

func TestHaversineMeters(t *testing.T) {
	// One degree of latitude is ~111.2 km on the mean sphere.
	d := HaversineMeters(geom.Coord{0, 0}, geom.Coord{0, 1})
	assert.InDelta(t, 111195, d, 5)
	assert.Zero(t, HaversineMeters(geom.Coord{10, 10}, geom.Coord{10, 10}))
}

func TestNormalizeLon(t *testing.T) {
	assert.InDelta(t, -179.0, normalizeLon(181), 1e-9)
	assert.InDelta(t, 179.0, normalizeLon(-181), 1e-9)
	assert.InDelta(t, 45.0, normalizeLon(45), 1e-9)
}
