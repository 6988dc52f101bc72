package engine

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/wildfire-cli/internal/export"
	"github.com/sells-group/wildfire-cli/internal/model"
	"github.com/sells-group/wildfire-cli/internal/spatial"
	"github.com/sells-group/wildfire-cli/internal/workspace"
)

// Local runs every operation in-process against a workspace store.
type Local struct {
	ws          *workspace.Store
	segments    int
	concurrency int
}

// Option configures a Local engine.
type Option func(*Local)

// WithSegments sets the number of vertices used to approximate a buffer circle.
func WithSegments(n int) Option {
	return func(l *Local) {
		if n >= 3 {
			l.segments = n
		}
	}
}

// WithConcurrency bounds the goroutines used by intersection-heavy operations.
func WithConcurrency(n int) Option {
	return func(l *Local) {
		if n > 0 {
			l.concurrency = n
		}
	}
}

// NewLocal creates a Local engine over ws.
func NewLocal(ws *workspace.Store, opts ...Option) *Local {
	l := &Local{ws: ws, segments: spatial.DefaultSegments, concurrency: runtime.NumCPU()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Workspace returns the backing store.
func (l *Local) Workspace() *workspace.Store { return l.ws }

// MakeView implements Engine. Predicate errors are returned as
// *workspace.PredicateError.
func (l *Local) MakeView(ctx context.Context, name, source, where string) (*View, error) {
	fids, err := l.ws.SelectFIDs(ctx, source, where)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("engine: view created",
		zap.String("view", name),
		zap.String("source", source),
		zap.Int("features", len(fids)),
	)
	return &View{Name: name, Source: source, Where: where, FIDs: fids}, nil
}

// SelectByLocation implements Engine. Output features keep their FIDs.
func (l *Local) SelectByLocation(ctx context.Context, target string, selector *View, out string) (*model.Dataset, error) {
	if selector == nil {
		return nil, eris.New("engine: select by location: nil selector")
	}
	tgt, err := l.ws.Get(ctx, target)
	if err != nil {
		return nil, eris.Wrapf(err, "engine: load target %s", target)
	}
	sel, err := l.ws.GetFIDs(ctx, selector.Source, selector.FIDs)
	if err != nil {
		return nil, eris.Wrapf(err, "engine: load selector %s", selector.Name)
	}
	selGeoms := geometries(sel)

	keep := make([]bool, tgt.Len())
	err = l.parallel(ctx, tgt.Len(), func(i int) {
		keep[i] = spatial.IntersectsAny(tgt.Features[i].Geometry, selGeoms)
	})
	if err != nil {
		return nil, eris.Wrap(err, "engine: select by location")
	}

	result := &model.Dataset{Name: out, Kind: model.KindFiltered, Fields: cloneFields(tgt.Fields)}
	for i, k := range keep {
		if k {
			result.Features = append(result.Features, tgt.Features[i])
		}
	}

	if err := l.ws.Put(ctx, result); err != nil {
		return nil, eris.Wrapf(err, "engine: save %s", out)
	}
	return result, nil
}

// Buffer implements Engine. Output features keep the source FIDs and
// attributes and gain BUFF_DIST (meters) and ORIG_FID.
func (l *Local) Buffer(ctx context.Context, source, out string, meters float64) (*model.Dataset, error) {
	src, err := l.ws.Get(ctx, source)
	if err != nil {
		return nil, eris.Wrapf(err, "engine: load %s", source)
	}

	result := &model.Dataset{Name: out, Kind: model.KindBuffer, Fields: cloneFields(src.Fields)}
	distField := result.AddField(BuffDistField, model.FieldReal)
	origField := result.AddField(OrigFIDField, model.FieldInteger)

	skipped := 0
	for _, feat := range src.Features {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "engine: buffer")
		}
		if feat.Geometry == nil {
			skipped++
			continue
		}
		poly, err := spatial.Buffer(feat.Geometry, meters, l.segments)
		if err != nil {
			return nil, eris.Wrapf(err, "engine: buffer %s/%d", source, feat.FID)
		}
		attrs := cloneAttrs(feat.Attributes)
		attrs[distField] = meters
		attrs[origField] = feat.FID
		result.Features = append(result.Features, model.Feature{FID: feat.FID, Geometry: poly, Attributes: attrs})
	}
	if skipped > 0 {
		zap.L().Debug("engine: skipped features without geometry", zap.String("dataset", source), zap.Int("count", skipped))
	}

	if err := l.ws.Put(ctx, result); err != nil {
		return nil, eris.Wrapf(err, "engine: save %s", out)
	}
	return result, nil
}

// SpatialJoin implements Engine.
func (l *Local) SpatialJoin(ctx context.Context, target, join, out string, op JoinOperation) (*JoinResult, error) {
	tgt, err := l.ws.Get(ctx, target)
	if err != nil {
		return nil, eris.Wrapf(err, "engine: load target %s", target)
	}
	jn, err := l.ws.Get(ctx, join)
	if err != nil {
		return nil, eris.Wrapf(err, "engine: load join %s", join)
	}

	matches := make([][]int, tgt.Len())
	joinGeoms := geometries(jn)
	joinBounds := make([]*geom.Bounds, len(joinGeoms))
	for i, g := range joinGeoms {
		if g != nil {
			joinBounds[i] = g.Bounds()
		}
	}
	grid := newBoundsGrid(joinBounds)
	err = l.parallel(ctx, tgt.Len(), func(i int) {
		g := tgt.Features[i].Geometry
		if g == nil {
			return
		}
		b := g.Bounds()
		for _, j := range grid.candidates(b) {
			if !b.Overlaps(geom.XY, joinBounds[j]) {
				continue
			}
			if spatial.Intersects(g, joinGeoms[j]) {
				matches[i] = append(matches[i], j)
			}
		}
	})
	if err != nil {
		return nil, eris.Wrap(err, "engine: spatial join")
	}

	result, err := joinRows(tgt, jn, matches, out, op)
	if err != nil {
		return nil, err
	}
	if err := l.ws.Put(ctx, result.Dataset); err != nil {
		return nil, eris.Wrapf(err, "engine: save %s", out)
	}
	return result, nil
}

// Load implements Engine.
func (l *Local) Load(ctx context.Context, name string) (*model.Dataset, error) {
	return l.ws.Get(ctx, name)
}

// Save implements Engine.
func (l *Local) Save(ctx context.Context, ds *model.Dataset) error {
	return l.ws.Put(ctx, ds)
}

// ExportTable implements Engine.
func (l *Local) ExportTable(ctx context.Context, name, path string, format export.Format) error {
	ds, err := l.ws.Get(ctx, name)
	if err != nil {
		return eris.Wrapf(err, "engine: load %s", name)
	}
	return export.Write(ds, path, format)
}

// LayerFile is the on-disk definition of a saved view.
type LayerFile struct {
	Version          int       `json:"version"`
	Name             string    `json:"name"`
	Dataset          string    `json:"dataset"`
	DefinitionQuery  string    `json:"definition_query"`
	Workspace        string    `json:"workspace"`
	FeatureCount     int       `json:"feature_count"`
	SelectedFeatures []int64   `json:"selected_features"`
	CreatedAt        time.Time `json:"created_at"`
}

// SaveLayerFile implements Engine. The file is JSON.
func (l *Local) SaveLayerFile(_ context.Context, view *View, path string) error {
	if view == nil {
		return eris.New("engine: save layer file: nil view")
	}
	lf := LayerFile{
		Version:          1,
		Name:             view.Name,
		Dataset:          view.Source,
		DefinitionQuery:  view.Where,
		Workspace:        l.ws.Path(),
		FeatureCount:     view.Len(),
		SelectedFeatures: view.FIDs,
		CreatedAt:        time.Now().UTC(),
	}
	data, err := json.MarshalIndent(lf, "", "  ")
	if err != nil {
		return eris.Wrap(err, "engine: marshal layer file")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "engine: create dir for %s", path)
	}
	return eris.Wrapf(os.WriteFile(path, data, 0o644), "engine: write layer file %s", path)
}

// ReadLayerFile loads a layer file written by SaveLayerFile.
func ReadLayerFile(path string) (*LayerFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "engine: read layer file %s", path)
	}
	var lf LayerFile
	if err := json.Unmarshal(data, &lf); err != nil {
		return nil, eris.Wrapf(err, "engine: decode layer file %s", path)
	}
	return &lf, nil
}

// parallel runs fn for every index in [0, n) on a bounded set of goroutines.
// fn must only write to state owned by its index.
func (l *Local) parallel(ctx context.Context, n int, fn func(i int)) error {
	if n == 0 {
		return nil
	}
	workers := l.concurrency
	if workers > n {
		workers = n
	}
	chunk := (n + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		g.Go(func() error {
			for i := start; i < end; i++ {
				if i%256 == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				fn(i)
			}
			return nil
		})
	}
	return g.Wait()
}

func geometries(ds *model.Dataset) []geom.T {
	out := make([]geom.T, len(ds.Features))
	for i, f := range ds.Features {
		out[i] = f.Geometry
	}
	return out
}

func cloneFields(fields []model.Field) []model.Field {
	return append([]model.Field(nil), fields...)
}

func cloneAttrs(attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs)+2)
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

var _ Engine = (*Local)(nil)
