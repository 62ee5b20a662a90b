package harmonize

import "github.com/urbanrisk-labs/climate-cli/internal/model"

// pivotWide unpivots a wide table into long records: one record per
// (row, code column) cell. Missing cells are dropped rather than recorded as
// zeros. When the same indicator appears for several periods the later
// period's record survives downstream selection; within a single period the
// last row wins, matching long-format dedup.
func pivotWide(tbl model.Table, l WideLayout) []model.RawIndicatorRecord {
	colIdx := MapColumns(tbl.Columns)
	records := make([]model.RawIndicatorRecord, 0, len(tbl.Rows)*len(l.CodeColumns))
	seen := make(map[recordKey]int)

	for _, row := range tbl.Rows {
		year := 0
		if l.YearColumn != "" {
			year = ParseYear(Col(row, colIdx, l.YearColumn))
		}
		for _, code := range l.CodeColumns {
			v := ParseValue(Col(row, colIdx, code))
			if v == nil {
				continue
			}
			records = appendDedup(records, seen, model.RawIndicatorRecord{
				City:        tbl.City,
				IndicatorID: code,
				Category:    CategoryFor(code),
				Year:        year,
				Value:       *v,
			})
		}
	}
	return records
}
