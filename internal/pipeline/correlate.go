package pipeline

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/urbanrisk-labs/climate-cli/internal/model"
)

// correlationSeries lists the named series of the summary in report order:
// the two composite factors first, then each sub-index.
var correlationSeries = []string{
	"climate_risk",
	"adaptive_capacity",
	string(model.SubIndexTemperature),
	string(model.SubIndexPrecipitation),
	string(model.SubIndexEconomic),
	string(model.SubIndexSocial),
}

// correlate builds the pairwise Pearson summary across the scored batch,
// used to validate which factors drive vulnerability. Each pair is computed
// over the cities where both series are present; pairs with fewer than two
// such cities, or with a zero-variance member, are reported as undefined
// rather than dropped.
func correlate(records []model.VulnerabilityRecord) []model.CorrelationPair {
	pairs := make([]model.CorrelationPair, 0, len(correlationSeries)*(len(correlationSeries)-1)/2)

	for i := 0; i < len(correlationSeries); i++ {
		for j := i + 1; j < len(correlationSeries); j++ {
			pairs = append(pairs, correlatePair(records, correlationSeries[i], correlationSeries[j]))
		}
	}
	return pairs
}

func correlatePair(records []model.VulnerabilityRecord, x, y string) model.CorrelationPair {
	var xs, ys []float64
	for _, rec := range records {
		xv := seriesValue(rec, x)
		yv := seriesValue(rec, y)
		if xv == nil || yv == nil {
			continue
		}
		xs = append(xs, *xv)
		ys = append(ys, *yv)
	}

	pair := model.CorrelationPair{X: x, Y: y, N: len(xs)}
	if len(xs) < 2 {
		return pair
	}
	r := stat.Correlation(xs, ys, nil)
	if math.IsNaN(r) {
		return pair
	}
	pair.R = r
	pair.Defined = true
	return pair
}

func seriesValue(rec model.VulnerabilityRecord, series string) *float64 {
	switch series {
	case "climate_risk":
		return &rec.ClimateRisk
	case "adaptive_capacity":
		return &rec.AdaptiveCapacity
	default:
		return rec.SubIndices[model.SubIndexKey(series)].Value
	}
}
