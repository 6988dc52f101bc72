package enrich

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/wildfire-cli/internal/model"
	"github.com/sells-group/wildfire-cli/internal/source"
)

// Workspace dataset names the three inputs are loaded under.
const (
	InputEvents    = "input_events"
	InputRegions   = "input_regions"
	InputOwnership = "input_ownership"
)

// Inputs are the dataset references of a run: local paths, zip archives,
// or URLs.
type Inputs struct {
	Events    string
	Regions   string
	Ownership string
}

// Resolver maps a dataset reference to a local file.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// Saver stores a dataset in the workspace.
type Saver interface {
	Put(ctx context.Context, ds *model.Dataset) error
}

// LoadInputs resolves and parses the three inputs concurrently, then
// stores them one at a time. Loaded datasets are never modified by the
// pipeline afterwards.
func LoadInputs(ctx context.Context, r Resolver, ws Saver, in Inputs) (Params, error) {
	refs := []struct {
		ref  string
		name string
	}{
		{in.Events, InputEvents},
		{in.Regions, InputRegions},
		{in.Ownership, InputOwnership},
	}
	for _, x := range refs {
		if x.ref == "" {
			return Params{}, &StageError{Stage: StageInputs, Dataset: x.name, Err: errMissingInput}
		}
	}

	loaded := make([]*model.Dataset, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	for i, x := range refs {
		g.Go(func() error {
			path, err := r.Resolve(gctx, x.ref)
			if err != nil {
				return &StageError{Stage: StageInputs, Dataset: x.name, Err: err}
			}
			ds, err := source.Read(path, x.name)
			if err != nil {
				return &StageError{Stage: StageInputs, Dataset: x.name, Err: err}
			}
			ds.Kind = model.KindSource
			loaded[i] = ds
			zap.L().Info("enrich: input loaded",
				zap.String("dataset", x.name),
				zap.String("path", path),
				zap.Int("rows", ds.Len()),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Params{}, err
	}

	for _, ds := range loaded {
		if err := ws.Put(ctx, ds); err != nil {
			return Params{}, &StageError{Stage: StageInputs, Dataset: ds.Name, Err: eris.Wrap(err, "enrich: store input")}
		}
	}
	return Params{Events: InputEvents, Regions: InputRegions, Ownership: InputOwnership}, nil
}
