package index

import (
	"github.com/rotisserie/eris"

	"github.com/urbanrisk-labs/climate-cli/internal/model"
)

// Thresholds are the upper cut points of the category buckets. Lower bounds
// are inclusive: a score equal to LowMax already falls in Moderate.
type Thresholds struct {
	LowMax      float64 `json:"low_max" mapstructure:"low_max"`
	ModerateMax float64 `json:"moderate_max" mapstructure:"moderate_max"`
	HighMax     float64 `json:"high_max" mapstructure:"high_max"`
}

// DefaultThresholds returns the reference bucket boundaries:
// [0,0.25) Low, [0.25,0.45) Moderate, [0.45,0.65) High, [0.65,1] Severe.
func DefaultThresholds() Thresholds {
	return Thresholds{LowMax: 0.25, ModerateMax: 0.45, HighMax: 0.65}
}

// Validate rejects cut points that do not partition [0,1].
func (t Thresholds) Validate() error {
	if !(0 < t.LowMax && t.LowMax < t.ModerateMax && t.ModerateMax < t.HighMax && t.HighMax <= 1) {
		return eris.Errorf("index: thresholds %v do not partition [0,1]", t)
	}
	return nil
}

// CategoryFor buckets a clamped score.
func (t Thresholds) CategoryFor(score float64) model.CategoryLabel {
	switch {
	case score < t.LowMax:
		return model.CategoryLow
	case score < t.ModerateMax:
		return model.CategoryModerate
	case score < t.HighMax:
		return model.CategoryHigh
	default:
		return model.CategorySevere
	}
}

// Compose assembles the vulnerability record for one city from its four
// sub-index scores, or returns the structured exclusion that kept it out of
// the ranking. Exactly one of the two results is non-nil.
//
// Climate risk is the mean of the present climate sub-indices and is a hard
// requirement: the index exists to compare climate risk, so a city without
// any climate signal cannot be scored. Adaptive capacity is
// optional-but-preferred: one present resilience sub-index scores the city
// with a reduced-confidence flag, zero excludes it.
func Compose(city model.City, subs map[model.SubIndexKey]model.SubIndexScore, th Thresholds) (*model.VulnerabilityRecord, *model.Exclusion) {
	cr, crN := meanOf(subs, model.SubIndexTemperature, model.SubIndexPrecipitation)
	if crN == 0 {
		return nil, &model.Exclusion{
			City:      city.Name,
			Reason:    model.ExclusionInsufficientComponents,
			Component: "climate_risk",
			Detail:    "no climate sub-index could be computed",
		}
	}

	ac, acN := meanOf(subs, model.SubIndexEconomic, model.SubIndexSocial)
	if acN == 0 {
		return nil, &model.Exclusion{
			City:      city.Name,
			Reason:    model.ExclusionInsufficientComponents,
			Component: "adaptive_capacity",
			Detail:    "no resilience sub-index could be computed",
		}
	}

	score := clamp(cr-ac+0.5, 0, 1)

	return &model.VulnerabilityRecord{
		City:              city.Name,
		CountryCode:       city.CountryCode,
		Score:             score,
		Category:          th.CategoryFor(score),
		ClimateRisk:       cr,
		AdaptiveCapacity:  ac,
		SubIndices:        subs,
		ReducedConfidence: acN == 1,
	}, nil
}

func meanOf(subs map[model.SubIndexKey]model.SubIndexScore, keys ...model.SubIndexKey) (float64, int) {
	var sum float64
	var n int
	for _, key := range keys {
		if s, ok := subs[key]; ok && s.Value != nil {
			sum += *s.Value
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}
