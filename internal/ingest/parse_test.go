package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNullableFloat(t *testing.T) {
	assert.Nil(t, nullableFloat(""))
	assert.Nil(t, nullableFloat("   "))
	assert.Nil(t, nullableFloat("n/a"))

	v := nullableFloat("3.5")
	require.NotNil(t, v)
	assert.Equal(t, 3.5, *v)

	v = nullableFloat(" -2.1 ")
	require.NotNil(t, v)
	assert.Equal(t, -2.1, *v)
}

func TestSVIFloat(t *testing.T) {
	assert.Nil(t, sviFloat("-999"))
	assert.Nil(t, sviFloat("-999.0"))
	assert.Nil(t, sviFloat(""))

	v := sviFloat("-998")
	require.NotNil(t, v)
	assert.Equal(t, -998.0, *v)

	v = sviFloat("21.4")
	require.NotNil(t, v)
	assert.Equal(t, 21.4, *v)
}

func TestMapColumnsAndGetCol(t *testing.T) {
	colIdx := mapColumns([]string{"FIPS", " County ", "EP_POV150"})

	rec := []string{"04013", "Maricopa", "21.4"}
	assert.Equal(t, "04013", getCol(rec, colIdx, "fips"))
	assert.Equal(t, "Maricopa", getCol(rec, colIdx, "COUNTY"))
	assert.Equal(t, "21.4", getCol(rec, colIdx, "ep_pov150"))
	assert.Equal(t, "", getCol(rec, colIdx, "ST_ABBR"))

	// Short record: mapped index past the row end reads as absent.
	short := []string{"04013"}
	assert.Equal(t, "", getCol(short, colIdx, "EP_POV150"))
}
