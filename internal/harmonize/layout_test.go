package harmonize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectLayoutLong(t *testing.T) {
	l := DetectLayout([]string{"city", "indicator_id", "year", "value"})

	long, ok := l.(LongLayout)
	require.True(t, ok, "got %T", l)
	assert.Equal(t, "indicator_id", long.IDColumn)
	assert.Equal(t, "value", long.ValueColumn)
	assert.Equal(t, "year", long.YearColumn)
}

func TestDetectLayoutLongBeatsWide(t *testing.T) {
	// A long table can mention code-shaped values in extra columns; the
	// identifier strategy runs first and must win.
	l := DetectLayout([]string{"indicator", "NY.GDP.PCAP.CD", "value"})
	assert.IsType(t, LongLayout{}, l)
}

func TestDetectLayoutWide(t *testing.T) {
	l := DetectLayout([]string{"country", "year", "NY.GDP.PCAP.CD", "SP.DYN.LE00.IN", "notes"})

	wide, ok := l.(WideLayout)
	require.True(t, ok, "got %T", l)
	assert.Equal(t, "year", wide.YearColumn)
	assert.Equal(t, []string{"NY.GDP.PCAP.CD", "SP.DYN.LE00.IN"}, wide.CodeColumns)
}

func TestDetectLayoutWideSVIVariables(t *testing.T) {
	l := DetectLayout([]string{"county", "fips", "EP_POV150", "EP_NOVEH", "RPL_THEMES"})

	wide, ok := l.(WideLayout)
	require.True(t, ok, "got %T", l)
	assert.Empty(t, wide.YearColumn)
	assert.Len(t, wide.CodeColumns, 3)
}

func TestDetectLayoutUnknown(t *testing.T) {
	cols := []string{"Temp", "Humidity"}
	l := DetectLayout(cols)

	unknown, ok := l.(UnknownLayout)
	require.True(t, ok, "got %T", l)
	assert.Equal(t, cols, unknown.Columns)
}

func TestWideCodePattern(t *testing.T) {
	accepted := []string{"EN.CLC.HEAT.XD", "AG.LND.PRCP.MM", "NY.GDP.PCAP.CD", "SL.TLF.CACT.FM.ZS"}
	for _, code := range accepted {
		assert.True(t, wbCodeRe.MatchString(code), code)
	}

	rejected := []string{"Temp", "en.clc.heat", "AB.C", "NY", "NY.GDP", "NY.GDP.PCAP.CD.TOOLONGSEG"}
	for _, code := range rejected {
		assert.False(t, wbCodeRe.MatchString(code), code)
	}
}

func TestLayoutNames(t *testing.T) {
	assert.Equal(t, "long", LongLayout{}.Name())
	assert.Equal(t, "wide", WideLayout{}.Name())
	assert.Equal(t, "unknown", UnknownLayout{}.Name())
}
