package enrich

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/wildfire-cli/internal/engine"
	"github.com/sells-group/wildfire-cli/internal/model"
	"github.com/sells-group/wildfire-cli/internal/workspace"
)

// SelectRegion returns the view of regions whose attributes satisfy
// predicate. Nothing is copied. An empty or unparseable predicate, or one
// naming an unknown field, yields *InvalidPredicateError.
func SelectRegion(ctx context.Context, eng engine.Engine, regions, predicate, viewName string) (*engine.View, error) {
	if strings.TrimSpace(predicate) == "" {
		return nil, &InvalidPredicateError{Predicate: predicate, Err: eris.New("predicate is empty")}
	}

	view, err := eng.MakeView(ctx, viewName, regions, predicate)
	if err != nil {
		var pe *workspace.PredicateError
		if errors.As(err, &pe) {
			return nil, &InvalidPredicateError{Predicate: predicate, Err: pe.Err}
		}
		return nil, eris.Wrapf(err, "select region from %s", regions)
	}
	return view, nil
}

// FilterEvents materializes the events intersecting any polygon of roi into
// out. Boundary contact counts as intersecting.
func FilterEvents(ctx context.Context, eng engine.Engine, events string, roi *engine.View, out string) (*model.Dataset, error) {
	ds, err := eng.SelectByLocation(ctx, events, roi, out)
	if err != nil {
		return nil, eris.Wrapf(err, "filter %s by %s", events, roi.Name)
	}
	return ds, nil
}
