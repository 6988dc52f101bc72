package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/wildfire-cli/internal/export"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "wildfire_output.db", cfg.Workspace.Name)
	assert.Equal(t, "selected_ecoregions_layer", cfg.Region.View)
	assert.Equal(t, []float64{0.1, 0.5, 1}, cfg.Buffer.DistancesKM)
	assert.Equal(t, 64, cfg.Buffer.Segments)
	assert.Equal(t, "wildfire", cfg.Buffer.Prefix)
	assert.Equal(t, "one_to_one", cfg.Join.Operation)
	assert.Equal(t, "Category", cfg.Join.CategoryField)
	assert.Equal(t, "NOT_IN_PADUS", cfg.Join.DefaultCategory)
	assert.Equal(t, "output", cfg.Export.Dir)
	assert.Equal(t, []string{"csv"}, cfg.Export.Formats)
	assert.Equal(t, "map.yaml", cfg.Present.Manifest)
	assert.Equal(t, "selected_ecoregions.lyrx", cfg.Present.LayerFile)
	assert.Equal(t, "wildfire", cfg.Present.Schema)
	assert.Equal(t, 300, cfg.Fetch.TimeoutSecs)
	assert.Equal(t, 3, cfg.Fetch.Retries)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, int32(4), cfg.Store.MaxConns)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "output", cfg.WorkspaceDir())
	assert.Empty(t, cfg.Monitor.WebhookURL)
	assert.InDelta(t, 0.2, cfg.Monitor.FailureRateThreshold, 1e-9)
	assert.Equal(t, 24, cfg.Monitor.LookbackWindowHours)
	assert.Equal(t, 300, cfg.Monitor.CheckIntervalSecs)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
inputs:
  events: data/events.shp
  regions: https://example.com/ecoregions.zip
  ownership: ftp://example.com/padus.zip
region:
  predicate: "NA_L3NAME = 'Madrean Archipelago'"
buffer:
  distances_km: [0.25, 2]
export:
  dir: out
  formats: [csv, geojson]
workspace:
  dir: ws
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "data/events.shp", cfg.Inputs.Events)
	assert.Equal(t, "https://example.com/ecoregions.zip", cfg.Inputs.Regions)
	assert.Equal(t, "NA_L3NAME = 'Madrean Archipelago'", cfg.Region.Predicate)
	assert.Equal(t, []float64{0.25, 2}, cfg.Buffer.DistancesKM)
	assert.Equal(t, "ws", cfg.WorkspaceDir())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	// Defaults still apply for unset values
	assert.Equal(t, "Category", cfg.Join.CategoryField)

	formats, err := cfg.ExportFormats()
	require.NoError(t, err)
	assert.Equal(t, []export.Format{export.FormatCSV, export.FormatGeoJSON}, formats)
	assert.NoError(t, cfg.Validate())
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("WILDFIRE_STORE_DRIVER", "postgres")
	t.Setenv("WILDFIRE_LOG_LEVEL", "warn")
	t.Setenv("WILDFIRE_REGION_PREDICATE", "NAME = 'A'")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "NAME = 'A'", cfg.Region.Predicate)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("WILDFIRE_SERVER_PORT", "3000")
	t.Setenv("WILDFIRE_JOIN_DEFAULT_CATEGORY", "UNPROTECTED")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "UNPROTECTED", cfg.Join.DefaultCategory)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("inputs: [unclosed"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validConfig returns a Config that passes validation.
func validConfig() *Config {
	cfg := &Config{}
	cfg.Inputs = InputsConfig{Events: "events.shp", Regions: "regions.shp", Ownership: "padus.shp"}
	cfg.Region.Predicate = "NAME = 'A'"
	cfg.Buffer.DistancesKM = []float64{0.1, 0.5, 1}
	cfg.Buffer.Prefix = "wildfire"
	cfg.Join.Operation = "one_to_one"
	cfg.Export.Dir = "output"
	cfg.Export.Formats = []string{"csv"}
	cfg.Store.Driver = "sqlite"
	cfg.Log.Format = "json"
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_MissingFields(t *testing.T) {
	cfg := &Config{}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inputs.events is required")
	assert.Contains(t, err.Error(), "inputs.regions is required")
	assert.Contains(t, err.Error(), "inputs.ownership is required")
	assert.Contains(t, err.Error(), "region.predicate is required")
	assert.Contains(t, err.Error(), "buffer.distances_km")
	assert.Contains(t, err.Error(), "export.formats must name at least one format")
}

func TestValidate_Distances(t *testing.T) {
	cfg := validConfig()
	cfg.Buffer.DistancesKM = []float64{0.5, -1}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid buffer distance -1 km at position 1")

	cfg.Buffer.DistancesKM = []float64{0.5, 0.5}
	assert.Error(t, cfg.Validate())
}

func TestValidate_BlankPredicate(t *testing.T) {
	cfg := validConfig()
	cfg.Region.Predicate = "   "

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "region.predicate is required")
}

func TestValidate_UnknownNames(t *testing.T) {
	cfg := validConfig()
	cfg.Join.Operation = "many_to_many"
	cfg.Export.Formats = []string{"csv", "parquet"}
	cfg.Log.Format = "text"
	cfg.Buffer.Segments = 2

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "join.operation")
	assert.Contains(t, err.Error(), "export.formats")
	assert.Contains(t, err.Error(), "log.format must be json or console")
	assert.Contains(t, err.Error(), "buffer.segments must be at least 3")
}

func TestValidate_Store(t *testing.T) {
	cfg := validConfig()

	cfg.Store.Driver = "postgres"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/wildfire"
	assert.NoError(t, cfg.Validate())

	cfg.Store.Driver = "mysql"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
}

func TestValidate_MonitoringThreshold(t *testing.T) {
	cfg := validConfig()
	cfg.Monitor.FailureRateThreshold = 1.5

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring.failure_rate_threshold must be between 0 and 1")

	cfg.Monitor.FailureRateThreshold = 0.3
	assert.NoError(t, cfg.Validate())
}
