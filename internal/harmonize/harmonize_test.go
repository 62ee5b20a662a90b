package harmonize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanrisk-labs/climate-cli/internal/model"
)

func TestHarmonizeLong(t *testing.T) {
	tbl := model.Table{
		City:    "Lagos",
		Source:  model.SourceWorldBank,
		Columns: []string{"indicator_id", "year", "value"},
		Rows: [][]string{
			{"NY.GDP.PCAP.CD", "2021", "2065.7"},
			{"SP.DYN.LE00.IN", "2021", ".."},
			{"SL.TLF.CACT.FM.ZS", "2021", "81.3"},
			{"", "2021", "12"},
		},
	}

	out := Harmonize(tbl)

	assert.Equal(t, model.StatusSuccess, out.Status)
	assert.IsType(t, LongLayout{}, out.Layout)
	require.Len(t, out.Records, 2, "missing value and blank id rows are skipped")

	first := out.Records[0]
	assert.Equal(t, "Lagos", first.City)
	assert.Equal(t, "NY.GDP.PCAP.CD", first.IndicatorID)
	assert.Equal(t, model.CategoryEconomic, first.Category)
	assert.Equal(t, 2021, first.Year)
	assert.InDelta(t, 2065.7, first.Value, 1e-9)

	assert.Equal(t, model.CategoryEmployment, out.Records[1].Category)
}

func TestHarmonizeLongDuplicateRowLastWins(t *testing.T) {
	tbl := model.Table{
		City:    "Lagos",
		Source:  model.SourceWorldBank,
		Columns: []string{"indicator", "year", "value"},
		Rows: [][]string{
			{"NY.GDP.PCAP.CD", "2021", "1000"},
			{"NY.GDP.PCAP.CD", "2021", "2065.7"},
		},
	}

	out := Harmonize(tbl)

	require.Len(t, out.Records, 1)
	assert.InDelta(t, 2065.7, out.Records[0].Value, 1e-9)
}

func TestHarmonizeLongWithoutValueColumn(t *testing.T) {
	tbl := model.Table{
		City:    "Lagos",
		Source:  model.SourceWorldBank,
		Columns: []string{"indicator_id", "year", "amount"},
	}

	out := Harmonize(tbl)

	assert.Equal(t, model.StatusError, out.Status)
	assert.Empty(t, out.Records)
	assert.Contains(t, out.Detail, "value column")
	assert.Contains(t, out.Detail, "amount")
}

func TestHarmonizeWidePivot(t *testing.T) {
	tbl := model.Table{
		City:    "Jakarta",
		Source:  model.SourceWorldBank,
		Columns: []string{"year", "NY.GDP.PCAP.CD", "SE.ENR.PRSC.FM.ZS"},
		Rows: [][]string{
			{"2020", "3895.6", ".."},
			{"2021", "4292.7", "97.2"},
		},
	}

	out := Harmonize(tbl)

	assert.Equal(t, model.StatusNeedsConversion, out.Status)
	assert.IsType(t, WideLayout{}, out.Layout)
	require.Len(t, out.Records, 3, "missing cells are dropped, not zeroed")

	byKey := make(map[string]map[int]float64)
	for _, rec := range out.Records {
		assert.Equal(t, "Jakarta", rec.City)
		if byKey[rec.IndicatorID] == nil {
			byKey[rec.IndicatorID] = make(map[int]float64)
		}
		byKey[rec.IndicatorID][rec.Year] = rec.Value
	}
	assert.InDelta(t, 3895.6, byKey["NY.GDP.PCAP.CD"][2020], 1e-9)
	assert.InDelta(t, 4292.7, byKey["NY.GDP.PCAP.CD"][2021], 1e-9)
	assert.InDelta(t, 97.2, byKey["SE.ENR.PRSC.FM.ZS"][2021], 1e-9)
}

func TestHarmonizeWideSVIWithoutYearColumn(t *testing.T) {
	tbl := model.Table{
		City:    "Phoenix",
		Source:  model.SourceSVI,
		Columns: []string{"county", "EP_POV150", "EP_NOVEH"},
		Rows: [][]string{
			{"Maricopa", "14.2", "5.1"},
		},
	}

	out := Harmonize(tbl)

	assert.Equal(t, model.StatusNeedsConversion, out.Status)
	require.Len(t, out.Records, 2)
	assert.Equal(t, 0, out.Records[0].Year)
	assert.Equal(t, model.CategoryOther, out.Records[0].Category)
}

func TestHarmonizeUnknownLayout(t *testing.T) {
	tbl := model.Table{
		City:    "Lagos",
		Source:  model.SourceWorldBank,
		Columns: []string{"Temp", "Humidity"},
		Rows:    [][]string{{"31", "80"}},
	}

	out := Harmonize(tbl)

	assert.Equal(t, model.StatusError, out.Status)
	assert.IsType(t, UnknownLayout{}, out.Layout)
	assert.Contains(t, out.Detail, "Temp")
	assert.Contains(t, out.Detail, "Humidity")
}

func TestSelectPreferred(t *testing.T) {
	original := model.Table{City: "Lagos", Source: model.SourceWorldBank, Name: "indicators"}
	fixed := model.Table{City: "Lagos", Source: model.SourceWorldBank, Name: "indicators_fixed", Fixed: true}

	t.Run("fixed beats original regardless of order", func(t *testing.T) {
		got := SelectPreferred([]model.Table{original, fixed})
		require.NotNil(t, got)
		assert.True(t, got.Fixed)

		got = SelectPreferred([]model.Table{fixed, original})
		require.NotNil(t, got)
		assert.True(t, got.Fixed)
	})

	t.Run("first wins without a fixed copy", func(t *testing.T) {
		second := original
		second.Name = "indicators_v2"
		got := SelectPreferred([]model.Table{original, second})
		require.NotNil(t, got)
		assert.Equal(t, "indicators", got.Name)
	})

	t.Run("empty", func(t *testing.T) {
		assert.Nil(t, SelectPreferred(nil))
	})
}

func TestCategoryFor(t *testing.T) {
	tests := []struct {
		id   string
		want model.IndicatorCategory
	}{
		{"NY.GDP.PCAP.CD", model.CategoryEconomic},
		{"NV.SRV.TOTL.ZS", model.CategoryEconomic},
		{"FP.CPI.TOTL.ZG", model.CategoryEconomic},
		{"SL.TLF.CACT.FM.ZS", model.CategoryEmployment},
		{"SE.ENR.PRSC.FM.ZS", model.CategoryEducation},
		{"SH.MED.BEDS.ZS", model.CategoryHealth},
		{"SP.DYN.LE00.IN", model.CategoryHealth},
		{"SG.GEN.PARL.ZS", model.CategoryRights},
		{"AG.LND.PRCP.MM", model.CategoryOther},
		{"EP_POV150", model.CategoryOther},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, CategoryFor(tt.id))
		})
	}
}
