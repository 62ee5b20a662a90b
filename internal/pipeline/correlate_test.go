package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanrisk-labs/climate-cli/internal/model"
)

func scored(city string, cr, ac float64, temp *float64) model.VulnerabilityRecord {
	return model.VulnerabilityRecord{
		City:             city,
		ClimateRisk:      cr,
		AdaptiveCapacity: ac,
		SubIndices: map[model.SubIndexKey]model.SubIndexScore{
			model.SubIndexTemperature: {Value: temp},
		},
	}
}

func findPair(t *testing.T, pairs []model.CorrelationPair, x, y string) model.CorrelationPair {
	t.Helper()
	for _, p := range pairs {
		if p.X == x && p.Y == y {
			return p
		}
	}
	t.Fatalf("pair %s/%s not reported", x, y)
	return model.CorrelationPair{}
}

func TestCorrelateReportsAllPairs(t *testing.T) {
	pairs := correlate(nil)

	require.Len(t, pairs, 15)
	seen := make(map[string]bool)
	for _, p := range pairs {
		assert.NotEqual(t, p.X, p.Y)
		seen[p.X+"/"+p.Y] = true
		assert.False(t, p.Defined, "no records, nothing is defined")
		assert.Zero(t, p.N)
	}
	assert.Len(t, seen, 15, "pairs are distinct")
}

func TestCorrelateAntagonisticFactors(t *testing.T) {
	records := []model.VulnerabilityRecord{
		scored("A", 0.1, 0.9, fp(0.1)),
		scored("B", 0.5, 0.5, fp(0.5)),
		scored("C", 0.9, 0.1, fp(0.9)),
	}

	pairs := correlate(records)

	crAC := findPair(t, pairs, "climate_risk", "adaptive_capacity")
	require.True(t, crAC.Defined)
	assert.Equal(t, 3, crAC.N)
	assert.InDelta(t, -1.0, crAC.R, 1e-12)

	crTemp := findPair(t, pairs, "climate_risk", string(model.SubIndexTemperature))
	require.True(t, crTemp.Defined)
	assert.InDelta(t, 1.0, crTemp.R, 1e-12)
}

func TestCorrelateConstantSeriesUndefined(t *testing.T) {
	records := []model.VulnerabilityRecord{
		scored("A", 0.4, 0.2, nil),
		scored("B", 0.4, 0.8, nil),
		scored("C", 0.4, 0.5, nil),
	}

	pairs := correlate(records)

	crAC := findPair(t, pairs, "climate_risk", "adaptive_capacity")
	assert.False(t, crAC.Defined, "zero variance has no correlation")
	assert.Equal(t, 3, crAC.N, "sample size is still reported")
	assert.Zero(t, crAC.R)
}

func TestCorrelateSkipsCitiesMissingASeries(t *testing.T) {
	records := []model.VulnerabilityRecord{
		scored("A", 0.2, 0.7, fp(0.3)),
		scored("B", 0.6, 0.3, nil),
		scored("C", 0.8, 0.1, fp(0.9)),
	}

	pairs := correlate(records)

	crTemp := findPair(t, pairs, "climate_risk", string(model.SubIndexTemperature))
	assert.Equal(t, 2, crTemp.N, "only cities with both series present count")
	assert.True(t, crTemp.Defined)

	crAC := findPair(t, pairs, "climate_risk", "adaptive_capacity")
	assert.Equal(t, 3, crAC.N)
}

func TestCorrelateSinglePointUndefined(t *testing.T) {
	records := []model.VulnerabilityRecord{scored("A", 0.2, 0.7, fp(0.3))}

	pairs := correlate(records)

	crAC := findPair(t, pairs, "climate_risk", "adaptive_capacity")
	assert.False(t, crAC.Defined)
	assert.Equal(t, 1, crAC.N)
}
