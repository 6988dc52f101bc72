package present

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/sells-group/wildfire-cli/internal/db"
	"github.com/sells-group/wildfire-cli/internal/model"
)

// DefaultSchema holds the published layer tables.
const DefaultSchema = "wildfire"

// FeatureSource reads the datasets behind layers.
type FeatureSource interface {
	Get(ctx context.Context, name string) (*model.Dataset, error)
	SelectFIDs(ctx context.Context, name, where string) ([]int64, error)
	GetFIDs(ctx context.Context, name string, fids []int64) (*model.Dataset, error)
}

// Postgres publishes layers to PostGIS: one row per layer in map_layers and
// the layer's features, as EWKB geometry plus JSONB attributes, in
// layer_features. Republishing a layer replaces its features.
type Postgres struct {
	pool   db.Pool
	schema string
	src    FeatureSource
}

// NewPostgres creates a PostGIS presenter. An empty schema uses DefaultSchema.
func NewPostgres(pool db.Pool, schema string, src FeatureSource) *Postgres {
	if schema == "" {
		schema = DefaultSchema
	}
	return &Postgres{pool: pool, schema: schema, src: src}
}

func (p *Postgres) table(name string) string {
	return pgx.Identifier{p.schema, name}.Sanitize()
}

// Migrate creates the schema and layer tables if they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS postgis",
		fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pgx.Identifier{p.schema}.Sanitize()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	name          TEXT PRIMARY KEY,
	kind          TEXT NOT NULL,
	dataset       TEXT NOT NULL,
	workspace     TEXT NOT NULL,
	path          TEXT,
	query         TEXT,
	feature_count INTEGER NOT NULL DEFAULT 0,
	registered_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, p.table("map_layers")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	layer      TEXT NOT NULL,
	fid        BIGINT NOT NULL,
	attributes JSONB NOT NULL DEFAULT '{}',
	geom       geometry(Geometry, 4326),
	PRIMARY KEY (layer, fid)
)`, p.table("layer_features")),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_layer_features_geom ON %s USING GIST (geom)", p.table("layer_features")),
	}
	for _, stmt := range stmts {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return eris.Wrap(err, "present: migrate postgres")
		}
	}
	return nil
}

// AddLayer implements Presenter.
func (p *Postgres) AddLayer(ctx context.Context, l model.Layer) error {
	ds, err := p.features(ctx, l)
	if err != nil {
		return err
	}

	rows := make([][]any, 0, ds.Len())
	for _, f := range ds.Features {
		attrs, err := json.Marshal(f.Attributes)
		if err != nil {
			return eris.Wrapf(err, "present: encode attributes of %s fid %d", l.Name, f.FID)
		}
		var g []byte
		if f.Geometry != nil {
			if f.Geometry.SRID() == 0 {
				f.Geometry = withSRID(f.Geometry)
			}
			g, err = ewkb.Marshal(f.Geometry, ewkb.NDR)
			if err != nil {
				return eris.Wrapf(err, "present: encode geometry of %s fid %d", l.Name, f.FID)
			}
		}
		rows = append(rows, []any{l.Name, f.FID, string(attrs), g})
	}

	n, err := db.ReplaceRows(ctx, p.pool, p.schema, "layer_features", "layer", l.Name,
		[]string{"layer", "fid", "attributes", "geom"}, rows)
	if err != nil {
		return eris.Wrapf(err, "present: publish features of %s", l.Name)
	}

	_, err = p.pool.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (name, kind, dataset, workspace, path, query, feature_count, registered_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now())
ON CONFLICT (name) DO UPDATE SET
	kind = EXCLUDED.kind,
	dataset = EXCLUDED.dataset,
	workspace = EXCLUDED.workspace,
	path = EXCLUDED.path,
	query = EXCLUDED.query,
	feature_count = EXCLUDED.feature_count,
	registered_at = EXCLUDED.registered_at`, p.table("map_layers")),
		l.Name, string(l.Kind), l.Dataset, l.Workspace, l.Path, l.Query, n)
	if err != nil {
		return eris.Wrapf(err, "present: register layer %s", l.Name)
	}

	zap.L().Info("present: layer published",
		zap.String("layer", l.Name),
		zap.String("schema", p.schema),
		zap.Int64("features", n),
	)
	return nil
}

// features loads the dataset behind l. ROI layers carry their predicate
// and select from the source dataset.
func (p *Postgres) features(ctx context.Context, l model.Layer) (*model.Dataset, error) {
	if l.Query == "" {
		ds, err := p.src.Get(ctx, l.Dataset)
		return ds, eris.Wrapf(err, "present: load %s", l.Dataset)
	}
	fids, err := p.src.SelectFIDs(ctx, l.Dataset, l.Query)
	if err != nil {
		return nil, eris.Wrapf(err, "present: select %s", l.Name)
	}
	ds, err := p.src.GetFIDs(ctx, l.Dataset, fids)
	return ds, eris.Wrapf(err, "present: load %s", l.Dataset)
}

// withSRID tags a geometry with no SRID as WGS 84, the CRS of the layer tables.
func withSRID(g geom.T) geom.T {
	switch t := g.(type) {
	case *geom.Point:
		return t.SetSRID(4326)
	case *geom.MultiPoint:
		return t.SetSRID(4326)
	case *geom.LineString:
		return t.SetSRID(4326)
	case *geom.MultiLineString:
		return t.SetSRID(4326)
	case *geom.Polygon:
		return t.SetSRID(4326)
	case *geom.MultiPolygon:
		return t.SetSRID(4326)
	default:
		return g
	}
}
