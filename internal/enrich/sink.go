package enrich

import (
	"context"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/wildfire-cli/internal/engine"
	"github.com/sells-group/wildfire-cli/internal/export"
	"github.com/sells-group/wildfire-cli/internal/metrics"
	"github.com/sells-group/wildfire-cli/internal/model"
)

// DefaultLayerFile is the file the ROI view definition is saved to.
const DefaultLayerFile = "selected_ecoregions.lyrx"

// Presenter registers datasets as layers in a map presentation context.
type Presenter interface {
	AddLayer(ctx context.Context, layer model.Layer) error
}

// Sink exports enriched datasets and registers them with a Presenter.
type Sink struct {
	Engine    engine.Engine
	Presenter Presenter
	OutputDir string
	Formats   []export.Format
	LayerFile string
	Workspace string
}

// Published lists what a Sink wrote and registered.
type Published struct {
	Exports   []string
	LayerFile string
	Layers    []string
	Warnings  []string
}

func (s *Sink) formats() []export.Format {
	if len(s.Formats) == 0 {
		return []export.Format{export.FormatCSV}
	}
	return s.Formats
}

func (s *Sink) layerFile() string {
	name := s.LayerFile
	if name == "" {
		name = DefaultLayerFile
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(s.OutputDir, name)
}

// Publish exports every enriched dataset in order, saves the ROI layer
// file, then registers the ROI followed by each enriched dataset. Export
// and layer file failures abort with *ExportError. Registration failures
// are returned as warnings.
func (s *Sink) Publish(ctx context.Context, roi *engine.View, enriched []*Enriched) (*Published, error) {
	pub := &Published{}

	exported := make(map[string]string, len(enriched))
	for _, e := range enriched {
		paths, err := s.Export(ctx, e.Dataset.Name)
		pub.Exports = append(pub.Exports, paths...)
		if err != nil {
			return pub, err
		}
		exported[e.Dataset.Name] = paths[0]
	}

	if roi != nil {
		path := s.layerFile()
		if err := s.Engine.SaveLayerFile(ctx, roi, path); err != nil {
			return pub, &ExportError{Dataset: roi.Name, Path: path, Err: err}
		}
		pub.LayerFile = path
	}

	layers := make([]model.Layer, 0, len(enriched)+1)
	if roi != nil {
		layers = append(layers, model.Layer{
			Name:      roi.Name,
			Kind:      model.LayerROI,
			Dataset:   roi.Source,
			Workspace: s.Workspace,
			Path:      pub.LayerFile,
			Query:     roi.Where,
		})
	}
	for i, e := range enriched {
		kind := model.LayerBuffer
		if i == 0 {
			kind = model.LayerEvents
		}
		layers = append(layers, model.Layer{
			Name:      e.Dataset.Name,
			Kind:      kind,
			Dataset:   e.Dataset.Name,
			Workspace: s.Workspace,
			Path:      exported[e.Dataset.Name],
		})
	}

	pub.Layers, pub.Warnings = s.Register(ctx, layers)
	return pub, nil
}

// Export writes dataset once per configured format into the output
// directory and returns the paths in format order.
func (s *Sink) Export(ctx context.Context, dataset string) ([]string, error) {
	paths := make([]string, 0, len(s.formats()))
	for _, f := range s.formats() {
		path := filepath.Join(s.OutputDir, export.FileName(dataset, f))
		if err := s.Engine.ExportTable(ctx, dataset, path, f); err != nil {
			return paths, &ExportError{Dataset: dataset, Path: path, Err: err}
		}
		zap.L().Info("enrich: exported",
			zap.String("dataset", dataset),
			zap.String("format", string(f)),
			zap.String("path", path),
		)
		paths = append(paths, path)
	}
	return paths, nil
}

// Register adds each layer to the presenter in order. A failed layer is
// logged and reported as a warning; the remaining layers are still tried.
func (s *Sink) Register(ctx context.Context, layers []model.Layer) (registered, warnings []string) {
	if s.Presenter == nil {
		return nil, nil
	}
	for _, l := range layers {
		if err := ctx.Err(); err != nil {
			warnings = append(warnings, (&RegistrationError{Dataset: l.Name, Err: eris.Wrap(err, "enrich: register")}).Error())
			continue
		}
		if err := s.Presenter.AddLayer(ctx, l); err != nil {
			rerr := &RegistrationError{Dataset: l.Name, Err: err}
			zap.L().Warn("enrich: layer registration failed",
				zap.String("stage", string(StageRegister)),
				zap.String("layer", l.Name),
				zap.Error(err),
			)
			metrics.RegistrationWarnings.Inc()
			warnings = append(warnings, rerr.Error())
			continue
		}
		registered = append(registered, l.Name)
	}
	return registered, warnings
}
