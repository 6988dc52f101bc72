// Package present registers enriched datasets as map layers: in a YAML map
// project, in PostGIS, or both.
package present

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/sells-group/wildfire-cli/internal/model"
)

// Presenter registers a layer in a presentation context. Registering the
// same layer name twice replaces the earlier registration.
type Presenter interface {
	AddLayer(ctx context.Context, layer model.Layer) error
}

// Nop discards every layer.
type Nop struct{}

// AddLayer implements Presenter.
func (Nop) AddLayer(context.Context, model.Layer) error { return nil }

// Log writes every layer to the global logger.
type Log struct{}

// AddLayer implements Presenter.
func (Log) AddLayer(_ context.Context, l model.Layer) error {
	zap.L().Info("present: layer added",
		zap.String("layer", l.Name),
		zap.String("kind", string(l.Kind)),
		zap.String("dataset", l.Dataset),
		zap.String("path", l.Path),
	)
	return nil
}

// Multi registers each layer with every presenter, in order. A failing
// presenter does not stop the ones after it; all failures are returned
// together.
type Multi []Presenter

// AddLayer implements Presenter.
func (m Multi) AddLayer(ctx context.Context, l model.Layer) error {
	var errs []error
	for _, p := range m {
		if err := p.AddLayer(ctx, l); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
