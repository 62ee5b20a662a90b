// Package index turns normalized inputs into sub-index scores and composes
// the final vulnerability record. All combination rules are
// mean-of-present: missing components are excluded from numerator and
// denominator alike, never counted as zero.
package index

import (
	"github.com/urbanrisk-labs/climate-cli/internal/model"
	"github.com/urbanrisk-labs/climate-cli/internal/registry"
)

// Aggregate combines one sub-index's normalized inputs into a score. With
// zero present components the score propagates as missing, which the
// composer and exclusion reporting handle; it is never defaulted.
func Aggregate(def registry.SubIndexDef, inputs map[string]*float64) model.SubIndexScore {
	score := model.SubIndexScore{ComponentsExpected: len(def.Inputs)}

	var sum float64
	for _, in := range def.Inputs {
		v := inputs[in.Key]
		if v == nil {
			continue
		}
		sum += *v
		score.ComponentsUsed++
	}

	if score.ComponentsUsed > 0 {
		mean := sum / float64(score.ComponentsUsed)
		score.Value = &mean
	}
	return score
}

// AggregateAll runs every catalog sub-index over a city's inputs.
func AggregateAll(inputs map[string]*float64) map[model.SubIndexKey]model.SubIndexScore {
	subs := make(map[model.SubIndexKey]model.SubIndexScore, len(registry.Definitions()))
	for _, def := range registry.Definitions() {
		subs[def.Key] = Aggregate(def, inputs)
	}
	return subs
}
