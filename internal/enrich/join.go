package enrich

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/wildfire-cli/internal/engine"
	"github.com/sells-group/wildfire-cli/internal/model"
)

const (
	// DefaultCategoryField is the ownership attribute carried onto enriched rows.
	DefaultCategoryField = "Category"
	// NotInPADUS is the category given to rows no ownership polygon intersects.
	NotInPADUS = "NOT_IN_PADUS"
	// EnrichedSuffix is appended to a source dataset name to name its join output.
	EnrichedSuffix = "_with_padus"
)

// EnrichedName returns the name of the enriched dataset produced from source.
func EnrichedName(source string) string {
	return source + EnrichedSuffix
}

// Enriched is the outcome of one Joiner invocation.
type Enriched struct {
	Source        string
	Dataset       *model.Dataset
	CategoryField string
	Matched       int
	Unmatched     int
}

// Summary converts e for the run summary.
func (e *Enriched) Summary() model.EnrichedSummary {
	return model.EnrichedSummary{
		Source:    e.Source,
		Dataset:   e.Dataset.Name,
		Rows:      e.Dataset.Len(),
		Matched:   e.Matched,
		Unmatched: e.Unmatched,
	}
}

// Joiner spatially joins source datasets against one ownership dataset and
// backfills the category of unmatched rows. Invocations share no state.
type Joiner struct {
	Engine          engine.Engine
	Ownership       string
	Operation       engine.JoinOperation
	CategoryField   string
	DefaultCategory string
}

func (j *Joiner) categoryField() string {
	if j.CategoryField == "" {
		return DefaultCategoryField
	}
	return j.CategoryField
}

func (j *Joiner) defaultCategory() string {
	if j.DefaultCategory == "" {
		return NotInPADUS
	}
	return j.DefaultCategory
}

// Enrich joins source against the ownership dataset into out, keeping every
// source row, then applies Backfill and stores the result under out.
func (j *Joiner) Enrich(ctx context.Context, source, out string) (*Enriched, error) {
	log := zap.L().With(zap.String("component", "enrich.joiner"), zap.String("dataset", out))

	res, err := j.Engine.SpatialJoin(ctx, source, j.Ownership, out, j.Operation)
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: join %s with %s", source, j.Ownership)
	}

	// The output's own category column is backfilled. When the source
	// already carried that field, the ownership value sits under a
	// suffixed name and matched rows keep the source value.
	field := j.categoryField()
	if joined, ok := res.JoinField(field); ok && joined != field {
		log.Debug("enrich: ownership category renamed on join", zap.String("joined_field", joined))
	}

	matched, unmatched := Backfill(res.Dataset, engine.JoinCountField, field, j.defaultCategory())
	if err := j.Engine.Save(ctx, res.Dataset); err != nil {
		return nil, eris.Wrapf(err, "enrich: save %s", out)
	}

	log.Info("enrich: dataset enriched",
		zap.Int("rows", res.Dataset.Len()),
		zap.Int("matched", matched),
		zap.Int("unmatched", unmatched),
		zap.String("category_field", field),
	)
	return &Enriched{
		Source:        source,
		Dataset:       res.Dataset,
		CategoryField: field,
		Matched:       matched,
		Unmatched:     unmatched,
	}, nil
}

// Backfill sets categoryField to def on every row whose countField is zero
// or missing. Matched rows keep their joined category; a null one becomes
// the empty string so the column is never null. It returns the number of
// matched and unmatched rows.
func Backfill(ds *model.Dataset, countField, categoryField, def string) (matched, unmatched int) {
	categoryField = ds.AddField(categoryField, model.FieldText)
	for i := range ds.Features {
		f := &ds.Features[i]
		if f.Attributes == nil {
			f.Attributes = make(map[string]any, 2)
		}
		if joinCount(f.Attributes[countField]) == 0 {
			f.Attributes[categoryField] = def
			unmatched++
			continue
		}
		if f.Attributes[categoryField] == nil {
			f.Attributes[categoryField] = ""
		}
		matched++
	}
	return matched, unmatched
}

func joinCount(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
