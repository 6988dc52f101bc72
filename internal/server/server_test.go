package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/wildfire-cli/internal/model"
	"github.com/sells-group/wildfire-cli/internal/present"
	"github.com/sells-group/wildfire-cli/internal/store"
	"github.com/sells-group/wildfire-cli/internal/workspace"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type testEnv struct {
	srv      *Server
	runs     *store.SQLiteStore
	manifest string
	exports  string
}

func newTestEnv(t *testing.T, withRuns bool) *testEnv {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	ws, err := workspace.Open(ctx, filepath.Join(dir, "ws"), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })

	square := func(x0 float64) geom.T {
		return geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
			{x0, 0}, {x0 + 1, 0}, {x0 + 1, 1}, {x0, 1}, {x0, 0},
		}}).SetSRID(4326)
	}
	require.NoError(t, ws.Put(ctx, &model.Dataset{
		Name:   "input_regions",
		Kind:   model.KindSource,
		Fields: []model.Field{{Name: "NAME", Type: model.FieldText}},
		Features: []model.Feature{
			{FID: 1, Geometry: square(0), Attributes: map[string]any{"NAME": "A"}},
			{FID: 2, Geometry: square(2), Attributes: map[string]any{"NAME": "B"}},
		},
	}))
	require.NoError(t, ws.Put(ctx, &model.Dataset{
		Name:   "wildfire_with_padus",
		Kind:   model.KindEnriched,
		Fields: []model.Field{{Name: "Category", Type: model.FieldText}},
		Features: []model.Feature{
			{FID: 1, Geometry: geom.NewPointFlat(geom.XY, []float64{0.5, 0.5}).SetSRID(4326), Attributes: map[string]any{"Category": "NOT_IN_PADUS"}},
		},
	}))

	env := &testEnv{
		manifest: filepath.Join(dir, present.DefaultManifest),
		exports:  filepath.Join(dir, "out"),
	}
	m := present.NewManifest(env.manifest, "")
	require.NoError(t, m.AddLayer(ctx, model.Layer{Name: "selected_ecoregions_layer", Kind: model.LayerROI, Dataset: "input_regions", Query: "NAME = 'B'"}))
	require.NoError(t, m.AddLayer(ctx, model.Layer{Name: "wildfire_with_padus", Kind: model.LayerEvents, Dataset: "wildfire_with_padus"}))

	require.NoError(t, os.MkdirAll(env.exports, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(env.exports, "wildfire_with_padus.csv"), []byte("FID,Category\n1,NOT_IN_PADUS\n"), 0o644))

	cfg := Config{Workspace: ws, Manifest: env.manifest, ExportDir: env.exports}
	if withRuns {
		runs, err := store.NewSQLite(filepath.Join(dir, "runs.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = runs.Close() })
		require.NoError(t, runs.Migrate(ctx))
		env.runs = runs
		cfg.Runs = runs
	}
	env.srv = New(cfg)
	return env
}

func (e *testEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, false)
	rec := env.get(t, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestManifest(t *testing.T) {
	env := newTestEnv(t, false)
	rec := env.get(t, "/api/manifest")
	require.Equal(t, http.StatusOK, rec.Code)

	var proj present.Project
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &proj))
	require.Len(t, proj.Layers, 2)
	assert.Equal(t, "selected_ecoregions_layer", proj.Layers[0].Name)
}

func TestManifest_Missing(t *testing.T) {
	env := newTestEnv(t, false)
	require.NoError(t, os.Remove(env.manifest))
	assert.Equal(t, http.StatusNotFound, env.get(t, "/api/manifest").Code)
}

type featureCollection struct {
	Type     string `json:"type"`
	Features []struct {
		ID         string         `json:"id"`
		Properties map[string]any `json:"properties"`
	} `json:"features"`
}

func TestLayer_ROIAppliesQuery(t *testing.T) {
	env := newTestEnv(t, false)
	rec := env.get(t, "/api/layers/selected_ecoregions_layer.geojson")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))

	var fc featureCollection
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "B", fc.Features[0].Properties["NAME"])
}

func TestLayer_DatasetByName(t *testing.T) {
	env := newTestEnv(t, false)

	// Not in the manifest, served straight from the workspace.
	rec := env.get(t, "/api/layers/input_regions")
	require.Equal(t, http.StatusOK, rec.Code)
	var fc featureCollection
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fc))
	assert.Len(t, fc.Features, 2)

	assert.Equal(t, http.StatusNotFound, env.get(t, "/api/layers/nope").Code)
}

func TestDatasets(t *testing.T) {
	env := newTestEnv(t, false)
	rec := env.get(t, "/api/datasets")
	require.Equal(t, http.StatusOK, rec.Code)

	var infos []workspace.DatasetInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	require.Len(t, infos, 2)
	assert.Equal(t, "input_regions", infos[0].Name)
	assert.Equal(t, 2, infos[0].Rows)
}

func TestExports(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.get(t, "/api/exports/wildfire_with_padus.csv")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_IN_PADUS")

	assert.Equal(t, http.StatusNotFound, env.get(t, "/api/exports/missing.csv").Code)
	assert.Equal(t, http.StatusBadRequest, env.get(t, "/api/exports/.hidden").Code)
}

func TestRuns(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	run, err := env.runs.CreateRun(ctx, `{}`)
	require.NoError(t, err)
	require.NoError(t, env.runs.CompleteRun(ctx, run.ID, &model.RunSummary{RunID: run.ID, Events: 4}))

	rec := env.get(t, "/api/runs?limit=10")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []model.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusComplete, runs[0].Status)

	rec = env.get(t, "/api/runs/"+run.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	var got model.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.NotNil(t, got.Summary)
	assert.Equal(t, 4, got.Summary.Events)

	assert.Equal(t, http.StatusNotFound, env.get(t, "/api/runs/nope").Code)
	assert.Equal(t, http.StatusBadRequest, env.get(t, "/api/runs?limit=x").Code)
}

func TestRuns_Disabled(t *testing.T) {
	env := newTestEnv(t, false)
	assert.Equal(t, http.StatusNotFound, env.get(t, "/api/runs").Code)
	assert.Equal(t, http.StatusNotFound, env.get(t, "/api/runs/abc").Code)
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, false)
	req := httptest.NewRequest(http.MethodGet, "/api/datasets", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	env.srv.ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, false)
	env.get(t, "/health")
	rec := env.get(t, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "wildfire_http_requests_total")
}
