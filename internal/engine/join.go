package engine

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/wildfire-cli/internal/model"
)

// joinSchema is the output layout of a spatial join: Join_Count and
// TARGET_FID (plus JOIN_FID for one-to-many), then the target fields, then
// the join fields renamed where they collide.
type joinSchema struct {
	fields     []model.Field
	countField string
	targetFID  string
	joinFID    string
	joinNames  []string // output name per join field, same order as join.Fields
}

func newJoinSchema(target, join *model.Dataset, op JoinOperation) joinSchema {
	out := &model.Dataset{}
	s := joinSchema{}
	s.countField = out.AddField(JoinCountField, model.FieldInteger)
	s.targetFID = out.AddField(TargetFIDField, model.FieldInteger)
	if op == JoinOneToMany {
		s.joinFID = out.AddField(JoinFIDField, model.FieldInteger)
	}
	for _, f := range target.Fields {
		if out.HasField(f.Name) {
			continue
		}
		out.Fields = append(out.Fields, f)
	}
	for _, f := range join.Fields {
		name := out.UniqueName(f.Name)
		out.Fields = append(out.Fields, model.Field{Name: name, Type: f.Type})
		s.joinNames = append(s.joinNames, name)
	}
	s.fields = out.Fields
	return s
}

// joinRows builds the join output from the per-target match lists. Each
// match list holds join feature indexes in ascending FID order.
func joinRows(target, join *model.Dataset, matches [][]int, out string, op JoinOperation) (*JoinResult, error) {
	if op == "" {
		op = JoinOneToOne
	}
	if op != JoinOneToOne && op != JoinOneToMany {
		return nil, eris.Errorf("engine: unknown join operation %q", op)
	}

	schema := newJoinSchema(target, join, op)
	result := &model.Dataset{Name: out, Kind: model.KindEnriched, Fields: schema.fields}

	var fid int64
	emit := func(t model.Feature, count int, j *model.Feature) {
		attrs := make(map[string]any, len(schema.fields))
		for _, f := range target.Fields {
			if strings.EqualFold(f.Name, schema.countField) || strings.EqualFold(f.Name, schema.targetFID) ||
				(schema.joinFID != "" && strings.EqualFold(f.Name, schema.joinFID)) {
				continue
			}
			attrs[f.Name] = t.Value(f.Name)
		}
		for i, f := range join.Fields {
			if j != nil {
				attrs[schema.joinNames[i]] = j.Value(f.Name)
			} else {
				attrs[schema.joinNames[i]] = nil
			}
		}
		attrs[schema.countField] = int64(count)
		attrs[schema.targetFID] = t.FID
		if schema.joinFID != "" {
			if j != nil {
				attrs[schema.joinFID] = j.FID
			} else {
				attrs[schema.joinFID] = int64(-1)
			}
		}
		fid++
		result.Features = append(result.Features, model.Feature{FID: fid, Geometry: t.Geometry, Attributes: attrs})
	}

	for i, t := range target.Features {
		m := matches[i]
		switch {
		case len(m) == 0:
			emit(t, 0, nil)
		case op == JoinOneToOne:
			emit(t, len(m), &join.Features[m[0]])
		default:
			for _, idx := range m {
				emit(t, len(m), &join.Features[idx])
			}
		}
	}
	fieldMap := make(map[string]string, len(join.Fields))
	for i, f := range join.Fields {
		fieldMap[f.Name] = schema.joinNames[i]
	}
	return &JoinResult{Dataset: result, JoinFields: fieldMap}, nil
}
