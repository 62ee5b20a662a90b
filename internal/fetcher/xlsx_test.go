package fetcher

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func createTestXLSX(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				cell := row.AddCell()
				cell.SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "test.xlsx")
	err := f.Save(path)
	require.NoError(t, err)
	return path
}

func TestReadXLSX_Basic(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"SVI2020_US": {
			{"COUNTY", "EP_POV150", "EP_NOVEH"},
			{"Maricopa", "13.2", "4.8"},
			{"Marin", "7.1", "5.9"},
		},
	})

	rows, err := ReadXLSX(path, XLSXOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"COUNTY", "EP_POV150", "EP_NOVEH"}, rows[0])
	assert.Equal(t, []string{"Maricopa", "13.2", "4.8"}, rows[1])
	assert.Equal(t, []string{"Marin", "7.1", "5.9"}, rows[2])
}

func TestReadXLSX_SkipRows(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"SVI2020_US": {
			{"COUNTY", "EP_POV150"},
			{"Maricopa", "13.2"},
			{"Marin", "7.1"},
		},
	})

	rows, err := ReadXLSX(path, XLSXOptions{SkipRows: 1})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Maricopa", rows[0][0])
}

func TestReadXLSX_HeaderChannel(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"SVI2020_US": {
			{"COUNTY", "EP_POV150"},
			{"Maricopa", "13.2"},
		},
	})

	headerCh := make(chan []string, 1)
	_, err := ReadXLSX(path, XLSXOptions{SkipRows: 1, HeaderCh: headerCh})
	require.NoError(t, err)
	assert.Equal(t, []string{"COUNTY", "EP_POV150"}, <-headerCh)
}

func TestReadXLSX_SheetByName(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Documentation": {{"See data dictionary"}},
		"SVI2020_US":    {{"COUNTY"}, {"Maricopa"}},
	})

	rows, err := ReadXLSX(path, XLSXOptions{SheetName: "SVI2020_US"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Maricopa", rows[1][0])
}

func TestReadXLSX_SheetNotFound(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"SVI2020_US": {{"COUNTY"}},
	})

	_, err := ReadXLSX(path, XLSXOptions{SheetName: "SVI2018_US"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `sheet "SVI2018_US" not found`)
}

func TestReadXLSX_SheetIndexOutOfRange(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"SVI2020_US": {{"COUNTY"}},
	})

	_, err := ReadXLSX(path, XLSXOptions{SheetIndex: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestReadXLSX_MissingFile(t *testing.T) {
	_, err := ReadXLSX(filepath.Join(t.TempDir(), "absent.xlsx"), XLSXOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open file")
}

func TestStreamXLSX(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"SVI2020_US": {
			{"COUNTY", "EP_POV150"},
			{"Maricopa", "13.2"},
			{"Marin", "7.1"},
		},
	})

	rowCh, errCh := StreamXLSX(context.Background(), path, XLSXOptions{SkipRows: 1})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Maricopa", "13.2"}, rows[0])
	assert.Equal(t, []string{"Marin", "7.1"}, rows[1])
}

func TestStreamXLSX_OpenError(t *testing.T) {
	rowCh, errCh := StreamXLSX(context.Background(), filepath.Join(t.TempDir(), "absent.xlsx"), XLSXOptions{})
	_, err := collectRows(t, rowCh, errCh)
	require.Error(t, err)
}
