package index

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanrisk-labs/climate-cli/internal/model"
)

func subScores(temp, precip, econ, social *float64) map[model.SubIndexKey]model.SubIndexScore {
	count := func(v *float64) int {
		if v == nil {
			return 0
		}
		return 1
	}
	return map[model.SubIndexKey]model.SubIndexScore{
		model.SubIndexTemperature:   {Value: temp, ComponentsUsed: count(temp), ComponentsExpected: 3},
		model.SubIndexPrecipitation: {Value: precip, ComponentsUsed: count(precip), ComponentsExpected: 3},
		model.SubIndexEconomic:      {Value: econ, ComponentsUsed: count(econ), ComponentsExpected: 3},
		model.SubIndexSocial:        {Value: social, ComponentsUsed: count(social), ComponentsExpected: 4},
	}
}

var testCity = model.City{Name: "Testville", CountryCode: "USA"}

func TestComposeFullData(t *testing.T) {
	rec, excl := Compose(testCity, subScores(f(0.8), f(0.9), f(0.3), f(0.2)), DefaultThresholds())

	require.Nil(t, excl)
	require.NotNil(t, rec)
	assert.InDelta(t, 0.85, rec.ClimateRisk, 1e-9)
	assert.InDelta(t, 0.25, rec.AdaptiveCapacity, 1e-9)
	assert.InDelta(t, 1.0, rec.Score, 1e-9, "0.85-0.25+0.5=1.1 clamps to 1.0")
	assert.Equal(t, model.CategorySevere, rec.Category)
	assert.False(t, rec.ReducedConfidence)
	assert.Equal(t, "USA", rec.CountryCode)
}

func TestComposeEqualRiskAndCapacityIsNeutral(t *testing.T) {
	for _, v := range []float64{0.05, 0.5, 0.95} {
		t.Run(fmt.Sprintf("level %.2f", v), func(t *testing.T) {
			rec, excl := Compose(testCity, subScores(f(v), f(v), f(v), f(v)), DefaultThresholds())
			require.Nil(t, excl)
			assert.Equal(t, 0.5, rec.Score, "identical risk and capacity must score exactly 0.5 at any magnitude")
		})
	}
}

func TestComposeClampBothEnds(t *testing.T) {
	rec, _ := Compose(testCity, subScores(f(1), f(1), f(0), f(0)), DefaultThresholds())
	require.NotNil(t, rec)
	assert.Equal(t, 1.0, rec.Score)

	rec, _ = Compose(testCity, subScores(f(0), f(0), f(1), f(1)), DefaultThresholds())
	require.NotNil(t, rec)
	assert.Equal(t, 0.0, rec.Score)
}

func TestComposeSingleClimateComponent(t *testing.T) {
	rec, excl := Compose(testCity, subScores(f(0.6), nil, f(0.4), f(0.4)), DefaultThresholds())

	require.Nil(t, excl)
	assert.InDelta(t, 0.6, rec.ClimateRisk, 1e-9, "one present climate sub-index carries climate risk alone")
	assert.False(t, rec.ReducedConfidence, "reduced confidence flags adaptive capacity, not climate risk")
}

func TestComposeSingleResilienceComponentFlagsConfidence(t *testing.T) {
	rec, excl := Compose(testCity, subScores(f(0.6), f(0.4), f(0.8), nil), DefaultThresholds())

	require.Nil(t, excl)
	assert.InDelta(t, 0.8, rec.AdaptiveCapacity, 1e-9)
	assert.True(t, rec.ReducedConfidence)
}

func TestComposeNoClimateDataExcludes(t *testing.T) {
	rec, excl := Compose(testCity, subScores(nil, nil, f(0.5), f(0.5)), DefaultThresholds())

	assert.Nil(t, rec)
	require.NotNil(t, excl)
	assert.Equal(t, model.ExclusionInsufficientComponents, excl.Reason)
	assert.Equal(t, "climate_risk", excl.Component)
}

func TestComposeNoAdaptiveCapacityExcludes(t *testing.T) {
	// Climate data only: CR=0.35 but the city must be excluded, not scored
	// with a zero adaptive capacity.
	rec, excl := Compose(testCity, subScores(f(0.4), f(0.3), nil, nil), DefaultThresholds())

	assert.Nil(t, rec)
	require.NotNil(t, excl)
	assert.Equal(t, model.ExclusionInsufficientComponents, excl.Reason)
	assert.Equal(t, "adaptive_capacity", excl.Component)
	assert.Equal(t, "Testville", excl.City)
}

func TestCategoryBoundaries(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		score float64
		want  model.CategoryLabel
	}{
		{0.0, model.CategoryLow},
		{0.2499, model.CategoryLow},
		{0.25, model.CategoryModerate},
		{0.4499, model.CategoryModerate},
		{0.45, model.CategoryHigh},
		{0.6499, model.CategoryHigh},
		{0.65, model.CategorySevere},
		{1.0, model.CategorySevere},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%.4f", tt.score), func(t *testing.T) {
			assert.Equal(t, tt.want, th.CategoryFor(tt.score))
		})
	}
}

func TestThresholdsValidate(t *testing.T) {
	assert.NoError(t, DefaultThresholds().Validate())
	assert.Error(t, Thresholds{LowMax: 0.5, ModerateMax: 0.4, HighMax: 0.9}.Validate())
	assert.Error(t, Thresholds{LowMax: 0, ModerateMax: 0.4, HighMax: 0.9}.Validate())
	assert.Error(t, Thresholds{LowMax: 0.2, ModerateMax: 0.4, HighMax: 1.1}.Validate())
}
