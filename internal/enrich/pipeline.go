// Package enrich implements the wildfire enrichment pipeline: region
// selection, event filtering, buffer tiers, ownership joins with category
// backfill, and export and registration of the results.
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/wildfire-cli/internal/engine"
	"github.com/sells-group/wildfire-cli/internal/metrics"
	"github.com/sells-group/wildfire-cli/internal/model"
	"github.com/sells-group/wildfire-cli/internal/store"
)

// Default dataset names.
const (
	DefaultViewName     = "selected_ecoregions_layer"
	DefaultFilteredName = "wildfire_selected"
	DefaultPrefix       = "wildfire"
)

// Params are the inputs of one run. Events, Regions, and Ownership name
// datasets already stored in the workspace.
type Params struct {
	Events      string    `json:"events"`
	Regions     string    `json:"regions"`
	Ownership   string    `json:"ownership"`
	Predicate   string    `json:"predicate"`
	DistancesKM []float64 `json:"distances_km"`

	ViewName     string `json:"view_name,omitempty"`
	FilteredName string `json:"filtered_name,omitempty"`
	Prefix       string `json:"prefix,omitempty"`
}

func (p Params) withDefaults() Params {
	if p.ViewName == "" {
		p.ViewName = DefaultViewName
	}
	if p.FilteredName == "" {
		p.FilteredName = DefaultFilteredName
	}
	if p.Prefix == "" {
		p.Prefix = DefaultPrefix
	}
	if p.DistancesKM == nil {
		p.DistancesKM = DefaultDistancesKM
	}
	return p
}

// Pipeline runs the enrichment stages in order. Each stage runs once and
// only after the previous one succeeded; the first failure aborts the run.
// Datasets written before a failure are kept.
type Pipeline struct {
	engine engine.Engine
	store  store.Store
	joiner *Joiner
	sink   *Sink
}

// New creates a Pipeline. st may be nil, in which case runs are not recorded.
func New(eng engine.Engine, st store.Store, joiner *Joiner, sink *Sink) *Pipeline {
	return &Pipeline{engine: eng, store: st, joiner: joiner, sink: sink}
}

// Run executes every stage for params and returns the run summary. A
// failure is returned as *StageError naming the stage and dataset.
func (p *Pipeline) Run(ctx context.Context, params Params) (*model.RunSummary, error) {
	params = params.withDefaults()
	log := zap.L().With(zap.String("component", "enrich.pipeline"))

	summary := &model.RunSummary{}
	runID := p.startRun(ctx, params)
	summary.RunID = runID

	err := p.run(ctx, params, summary)
	if err != nil {
		metrics.RunSuccess.Set(0)
		log.Error("pipeline: run failed", zap.String("run_id", runID), zap.Error(err))
		if runID != "" {
			if ferr := p.store.FailRun(ctx, runID, err); ferr != nil {
				log.Warn("pipeline: failed to record run failure", zap.Error(ferr))
			}
		}
		return summary, err
	}

	metrics.RunSuccess.Set(1)
	if runID != "" {
		if cerr := p.store.CompleteRun(ctx, runID, summary); cerr != nil {
			log.Warn("pipeline: failed to record run completion", zap.Error(cerr))
		}
	}
	log.Info("all processing completed successfully",
		zap.String("run_id", runID),
		zap.Int("events", summary.Events),
		zap.Int("exports", len(summary.Exports)),
		zap.Int("warnings", len(summary.Warnings)),
	)
	return summary, nil
}

func (p *Pipeline) startRun(ctx context.Context, params Params) string {
	if p.store == nil {
		return ""
	}
	raw, err := json.Marshal(params)
	if err != nil {
		zap.L().Warn("pipeline: failed to encode run params", zap.Error(err))
	}
	run, err := p.store.CreateRun(ctx, string(raw))
	if err != nil {
		zap.L().Warn("pipeline: failed to create run record", zap.Error(err))
		return ""
	}
	return run.ID
}

func (p *Pipeline) run(ctx context.Context, params Params, summary *model.RunSummary) error {
	// Distances are checked before the engine is touched.
	tiers, err := PlanTiers(params.Prefix, params.DistancesKM)
	if err != nil {
		return &StageError{Stage: StageBuffer, Err: err}
	}

	var roi *engine.View
	err = trackStage(StageRegion, params.ViewName, func() error {
		roi, err = SelectRegion(ctx, p.engine, params.Regions, params.Predicate, params.ViewName)
		return err
	})
	if err != nil {
		return err
	}
	summary.ROI = roi.Name
	summary.Regions = roi.Len()

	var filtered *model.Dataset
	err = trackStage(StageFilter, params.FilteredName, func() error {
		filtered, err = FilterEvents(ctx, p.engine, params.Events, roi, params.FilteredName)
		return err
	})
	if err != nil {
		return err
	}
	summary.Filtered = filtered.Name
	summary.Events = filtered.Len()
	metrics.RowsTotal.WithLabelValues(filtered.Name).Add(float64(filtered.Len()))

	var buffers []*model.Dataset
	err = trackStage(StageBuffer, "", func() error {
		buffers, err = GenerateTiers(ctx, p.engine, filtered.Name, tiers)
		return err
	})
	if err != nil {
		return err
	}
	for i, b := range buffers {
		summary.Tiers = append(summary.Tiers, model.TierSummary{
			DistanceKM: tiers[i].DistanceKM,
			Buffer:     b.Name,
			Rows:       b.Len(),
		})
		metrics.RowsTotal.WithLabelValues(b.Name).Add(float64(b.Len()))
	}

	sources := make([]string, 0, len(buffers)+1)
	outputs := make([]string, 0, len(buffers)+1)
	sources = append(sources, filtered.Name)
	outputs = append(outputs, EnrichedName(params.Prefix))
	for _, b := range buffers {
		sources = append(sources, b.Name)
		outputs = append(outputs, EnrichedName(b.Name))
	}

	joiner := *p.joiner
	if params.Ownership != "" {
		joiner.Ownership = params.Ownership
	}
	enriched := make([]*Enriched, 0, len(sources))
	for i := range sources {
		var e *Enriched
		err = trackStage(StageJoin, outputs[i], func() error {
			e, err = joiner.Enrich(ctx, sources[i], outputs[i])
			return err
		})
		if err != nil {
			return err
		}
		enriched = append(enriched, e)
		summary.Enriched = append(summary.Enriched, e.Summary())
		metrics.RowsTotal.WithLabelValues(e.Dataset.Name).Add(float64(e.Dataset.Len()))
		metrics.MatchedRowsTotal.WithLabelValues(e.Dataset.Name).Add(float64(e.Matched))
	}

	var pub *Published
	err = trackStage(StageExport, "", func() error {
		pub, err = p.sink.Publish(ctx, roi, enriched)
		return err
	})
	if pub != nil {
		summary.Exports = pub.Exports
		summary.LayerFile = pub.LayerFile
		summary.Layers = pub.Layers
		summary.Warnings = pub.Warnings
	}
	return err
}

// trackStage runs fn, records its duration, and tags a failure with stage
// and dataset. Errors that already carry a stage are passed through.
func trackStage(stage Stage, dataset string, fn func() error) error {
	log := zap.L().With(zap.String("stage", string(stage)))
	if dataset != "" {
		log = log.With(zap.String("dataset", dataset))
	}

	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	metrics.StageDuration.WithLabelValues(string(stage)).Observe(elapsed.Seconds())

	if err != nil {
		log.Error("pipeline: stage failed", zap.Int64("duration_ms", elapsed.Milliseconds()), zap.Error(err))
		var se *StageError
		if errors.As(err, &se) {
			return err
		}
		var ee *ExportError
		if errors.As(err, &ee) {
			dataset = ee.Dataset
		}
		return &StageError{Stage: stage, Dataset: dataset, Err: err}
	}
	log.Info("pipeline: stage complete", zap.Int64("duration_ms", elapsed.Milliseconds()))
	return nil
}

// IsConfigError reports whether err stems from invalid run parameters
// rather than from the engine or I/O.
func IsConfigError(err error) bool {
	var pe *InvalidPredicateError
	var de *InvalidDistanceError
	return errors.As(err, &pe) || errors.As(err, &de) || errors.Is(err, errMissingInput)
}

var errMissingInput = eris.New("enrich: missing input dataset")
