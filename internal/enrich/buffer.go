package enrich

import (
	"context"
	"fmt"
	"math"

	"github.com/sells-group/wildfire-cli/internal/engine"
	"github.com/sells-group/wildfire-cli/internal/model"
)

// DefaultDistancesKM are the buffer tiers used when none are configured.
var DefaultDistancesKM = []float64{0.1, 0.5, 1}

// Tier is one buffer distance and the dataset it produces.
type Tier struct {
	DistanceKM float64
	Meters     int64
	Name       string
}

// Radius returns the exact buffer radius in meters. Meters is only the
// rounded value used in the tier name.
func (t Tier) Radius() float64 {
	return t.DistanceKM * 1000
}

// TierName returns the dataset name for a buffer of meters around events
// from prefix, e.g. wildfire_buffer_100m.
func TierName(prefix string, meters int64) string {
	return fmt.Sprintf("%s_buffer_%dm", prefix, meters)
}

// PlanTiers validates distances (kilometers) and names one tier per
// distance, in input order. Every distance must be positive and finite and
// must round to a distinct whole number of meters.
func PlanTiers(prefix string, distances []float64) ([]Tier, error) {
	if len(distances) == 0 {
		return nil, &InvalidDistanceError{Index: -1, Reason: "no buffer distances"}
	}

	seen := make(map[int64]int, len(distances))
	tiers := make([]Tier, 0, len(distances))
	for i, km := range distances {
		if math.IsNaN(km) || math.IsInf(km, 0) {
			return nil, &InvalidDistanceError{Index: i, Distance: km, Reason: "not a finite number"}
		}
		if km <= 0 {
			return nil, &InvalidDistanceError{Index: i, Distance: km, Reason: "must be positive"}
		}
		meters := int64(math.Round(km * 1000))
		if meters == 0 {
			return nil, &InvalidDistanceError{Index: i, Distance: km, Reason: "rounds to 0 m"}
		}
		if prev, ok := seen[meters]; ok {
			return nil, &InvalidDistanceError{Index: i, Distance: km, Reason: fmt.Sprintf("same tier as position %d", prev)}
		}
		seen[meters] = i
		tiers = append(tiers, Tier{DistanceKM: km, Meters: meters, Name: TierName(prefix, meters)})
	}
	return tiers, nil
}

// GenerateTiers buffers source once per tier, in tier order, and returns
// the buffer datasets in the same order. Each buffer dataset has exactly
// one feature per source feature.
func GenerateTiers(ctx context.Context, eng engine.Engine, source string, tiers []Tier) ([]*model.Dataset, error) {
	out := make([]*model.Dataset, 0, len(tiers))
	for _, t := range tiers {
		ds, err := eng.Buffer(ctx, source, t.Name, t.Radius())
		if err != nil {
			return out, &StageError{Stage: StageBuffer, Dataset: t.Name, Err: err}
		}
		out = append(out, ds)
	}
	return out, nil
}
