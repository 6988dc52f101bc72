// Package engine defines the geoprocessing primitives the enrichment pipeline
// is built from, and a local implementation backed by a workspace store.
package engine

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/wildfire-cli/internal/export"
	"github.com/sells-group/wildfire-cli/internal/model"
)

// Fields added by SpatialJoin and Buffer.
const (
	JoinCountField = "Join_Count"
	TargetFIDField = "TARGET_FID"
	JoinFIDField   = "JOIN_FID"
	BuffDistField  = "BUFF_DIST"
	OrigFIDField   = "ORIG_FID"
)

// JoinOperation selects how SpatialJoin treats a target feature that
// intersects several join features.
type JoinOperation string

const (
	// JoinOneToOne emits one row per target feature. Join_Count is the
	// number of matches; joined attributes come from the lowest-FID match.
	JoinOneToOne JoinOperation = "one_to_one"
	// JoinOneToMany emits one row per (target, match) pair and one row for
	// each unmatched target feature.
	JoinOneToMany JoinOperation = "one_to_many"
)

// ParseJoinOperation validates a join operation name. Empty means one-to-one.
func ParseJoinOperation(s string) (JoinOperation, error) {
	switch op := JoinOperation(s); op {
	case "":
		return JoinOneToOne, nil
	case JoinOneToOne, JoinOneToMany:
		return op, nil
	default:
		return "", eris.Errorf("engine: unknown join operation %q", s)
	}
}

// JoinResult is the stored output of a spatial join.
type JoinResult struct {
	Dataset *model.Dataset
	// JoinFields maps each join dataset field to its name in the output,
	// which differs when the target already had a field of that name.
	JoinFields map[string]string
}

// JoinField returns the output name of the join dataset field name
// (case-insensitive) and whether the join dataset had it.
func (r *JoinResult) JoinField(name string) (string, bool) {
	if out, ok := r.JoinFields[name]; ok {
		return out, true
	}
	for in, out := range r.JoinFields {
		if strings.EqualFold(in, name) {
			return out, true
		}
	}
	return "", false
}

// View is a named, read-only selection over a stored dataset. It never
// copies or mutates the dataset it selects from.
type View struct {
	Name   string  `json:"name"`
	Source string  `json:"source"`
	Where  string  `json:"where"`
	FIDs   []int64 `json:"fids"`
}

// Len returns the number of selected features.
func (v *View) Len() int { return len(v.FIDs) }

// Engine is the set of geoprocessing operations the pipeline needs. Every
// operation that produces a dataset writes it to the workspace under out,
// replacing any dataset already stored under that name.
type Engine interface {
	// MakeView selects the features of source matching the attribute
	// predicate where.
	MakeView(ctx context.Context, name, source, where string) (*View, error)
	// SelectByLocation copies the features of target that intersect any
	// feature of selector into out.
	SelectByLocation(ctx context.Context, target string, selector *View, out string) (*model.Dataset, error)
	// Buffer writes one polygon per feature of source, meters around it,
	// into out. Overlapping buffers are not merged.
	Buffer(ctx context.Context, source, out string, meters float64) (*model.Dataset, error)
	// SpatialJoin joins the attributes of join onto every feature of
	// target by intersection, keeping unmatched target features.
	SpatialJoin(ctx context.Context, target, join, out string, op JoinOperation) (*JoinResult, error)
	// Load reads a stored dataset.
	Load(ctx context.Context, name string) (*model.Dataset, error)
	// Save stores ds under ds.Name.
	Save(ctx context.Context, ds *model.Dataset) error
	// ExportTable writes a stored dataset to a file.
	ExportTable(ctx context.Context, name, path string, format export.Format) error
	// SaveLayerFile persists a view definition to path.
	SaveLayerFile(ctx context.Context, view *View, path string) error
}
