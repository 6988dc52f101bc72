package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/wildfire-cli/internal/model"
)

// writeShapefile writes shapes with attribute rows to dir/name.shp.
func writeShapefile(t *testing.T, dir, name string, typ shp.ShapeType, fields []shp.Field, shapes []shp.Shape, rows [][]any) string {
	t.Helper()
	base := filepath.Join(dir, name)

	w, err := shp.Create(base+".shp", typ)
	require.NoError(t, err)
	require.NoError(t, w.SetFields(fields))
	for i, s := range shapes {
		w.Write(s)
		for j, v := range rows[i] {
			require.NoError(t, w.WriteAttribute(i, j, v))
		}
	}
	w.Close()

	// go-shp v0.1.1 names the DBF "<base>dbf"; the reader expects "<base>.dbf".
	require.NoError(t, os.Rename(base+"dbf", base+".dbf"))
	return base + ".shp"
}

func polygonShape(parts ...[]shp.Point) *shp.Polygon {
	p := shp.Polygon(*shp.NewPolyLine(parts))
	return &p
}

func TestReadShapefile_Points(t *testing.T) {
	dir := t.TempDir()
	path := writeShapefile(t, dir, "fires", shp.POINT,
		[]shp.Field{shp.StringField("NAME", 20), shp.NumberField("ACRES", 10), shp.FloatField("SIZE", 12, 3)},
		[]shp.Shape{&shp.Point{X: -120.1, Y: 38.1}, &shp.Point{X: -121.2, Y: 39.2}},
		[][]any{{"Caldor", 221835, 1.5}, {"Dixie", 963309, 2.25}},
	)

	ds, err := ReadShapefile(path, "")
	require.NoError(t, err)

	assert.Equal(t, "fires", ds.Name)
	assert.Equal(t, model.KindSource, ds.Kind)
	assert.Equal(t, []model.Field{
		{Name: "NAME", Type: model.FieldText},
		{Name: "ACRES", Type: model.FieldInteger},
		{Name: "SIZE", Type: model.FieldReal},
	}, ds.Fields)
	require.Len(t, ds.Features, 2)

	first := ds.Features[0]
	assert.Equal(t, int64(1), first.FID)
	assert.Equal(t, "Caldor", first.Value("NAME"))
	assert.Equal(t, int64(221835), first.Value("ACRES"))
	assert.InDelta(t, 1.5, first.Value("SIZE"), 1e-9)

	pt, ok := first.Geometry.(*geom.Point)
	require.True(t, ok)
	assert.InDelta(t, -120.1, pt.X(), 1e-9)
	assert.Equal(t, 4326, pt.SRID())
	assert.Equal(t, int64(2), ds.Features[1].FID)
}

func TestReadShapefile_PolygonWithHole(t *testing.T) {
	dir := t.TempDir()
	outer := []shp.Point{{X: 0, Y: 0}, {X: 0, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 0}, {X: 0, Y: 0}} // clockwise
	hole := []shp.Point{{X: 3, Y: 3}, {X: 7, Y: 3}, {X: 7, Y: 7}, {X: 3, Y: 7}, {X: 3, Y: 3}}     // counter-clockwise
	path := writeShapefile(t, dir, "regions", shp.POLYGON,
		[]shp.Field{shp.StringField("NAME", 10)},
		[]shp.Shape{polygonShape(outer, hole)},
		[][]any{{"A"}},
	)

	ds, err := ReadShapefile(path, "regions")
	require.NoError(t, err)
	require.Len(t, ds.Features, 1)

	mp, ok := ds.Features[0].Geometry.(*geom.MultiPolygon)
	require.True(t, ok)
	require.Equal(t, 1, mp.NumPolygons())
	assert.Equal(t, 2, mp.Polygon(0).NumLinearRings())
}

func TestReadShapefile_MissingFile(t *testing.T) {
	_, err := ReadShapefile(filepath.Join(t.TempDir(), "nope.shp"), "x")
	assert.Error(t, err)
}

func TestReadShapefile_CodePage(t *testing.T) {
	dir := t.TempDir()
	// "Montaña" in ISO-8859-1.
	path := writeShapefile(t, dir, "latin", shp.POINT,
		[]shp.Field{shp.StringField("NAME", 20)},
		[]shp.Shape{&shp.Point{X: 1, Y: 1}},
		[][]any{{"Monta\xf1a"}},
	)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "latin.cpg"), []byte("ISO-8859-1\n"), 0o644))

	ds, err := ReadShapefile(path, "latin")
	require.NoError(t, err)
	require.Len(t, ds.Features, 1)
	assert.Equal(t, "Montaña", ds.Features[0].Value("NAME"))
}

func TestDecoderFor(t *testing.T) {
	dec, err := decoderFor("UTF-8")
	require.NoError(t, err)
	assert.Nil(t, dec)

	dec, err = decoderFor("1252")
	require.NoError(t, err)
	assert.NotNil(t, dec)

	_, err = decoderFor("klingon-42")
	assert.Error(t, err)
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		typ  model.FieldType
		want any
		ok   bool
	}{
		{"empty is nil", "", model.FieldText, nil, true},
		{"text", "abc", model.FieldText, "abc", true},
		{"integer", "42", model.FieldInteger, int64(42), true},
		{"integral float in integer field", "12.0", model.FieldInteger, int64(12), true},
		{"bad integer", "x", model.FieldInteger, nil, false},
		{"real", "2.5", model.FieldReal, 2.5, true},
		{"bad real", "**", model.FieldReal, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseValue(tt.raw, tt.typ)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}
